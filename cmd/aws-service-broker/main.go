// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gardener/aws-service-broker/pkg/core/config"
	slogutils "github.com/gardener/aws-service-broker/pkg/utils/slog"
	"github.com/gardener/aws-service-broker/pkg/version"
)

func main() {
	app := &cli.App{
		Name:                 "aws-service-broker",
		Version:              version.Version,
		EnableBashCompletion: true,
		Usage:                "open service broker for AWS IAM roles, S3 buckets and DynamoDB tables",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enables debug mode, if set",
				Value: false,
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to config file, defaults are used if not set",
				Aliases: []string{"file"},
				EnvVars: []string{"AWS_SERVICE_BROKER_CONFIG"},
			},
		},
		Before: func(ctx *cli.Context) error {
			conf := config.New()
			if configFile := ctx.String("config"); configFile != "" {
				parsed, err := config.Parse(configFile)
				if err != nil {
					return fmt.Errorf("Cannot parse config: %w", err)
				}
				conf = parsed
			}

			// Overrides from flags/options
			if ctx.IsSet("debug") {
				conf.Debug = ctx.Bool("debug")
			}
			if conf.Debug {
				conf.Logging.Level = string(slogutils.LevelDebug)
			}

			logger, err := slogutils.NewFromConfig(os.Stderr, conf.Logging)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx.Context = context.WithValue(ctx.Context, configKey{}, conf)
			return nil
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewCatalogCommand(),
			NewRoleCommand(),
			NewInstanceCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
