// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/urfave/cli/v2"

	"github.com/gardener/aws-service-broker/pkg/broker/catalog"
)

// Output formats of the catalog show command.
const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

// errUnknownOutput is an error, which is returned when an unsupported output
// format was requested.
var errUnknownOutput = errors.New("unknown output format")

// NewCatalogCommand returns a new command for interfacing with the catalog.
func NewCatalogCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "catalog",
		Usage:   "catalog operations",
		Aliases: []string{"c"},
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "display the effective catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Usage:   "output format, one of table, yaml or json",
						Aliases: []string{"o"},
						Value:   outputTable,
					},
				},
				Action: func(ctx *cli.Context) error {
					conf := getConfig(ctx)
					cat, err := catalog.Load(conf.Catalog.Path)
					if err != nil {
						return err
					}

					return printCatalog(os.Stdout, cat, ctx.String("output"))
				},
			},
			{
				Name:  "validate",
				Usage: "validate the catalog and the kinds of its services",
				Action: func(ctx *cli.Context) error {
					conf := getConfig(ctx)
					cat, err := loadCatalog(conf)
					if err != nil {
						return err
					}
					fmt.Printf("catalog is valid: %d services\n", len(cat.Services))

					return nil
				},
			},
		},
	}

	return cmd
}

// printCatalog writes the catalog to w in the given format.
func printCatalog(w io.Writer, cat *catalog.Catalog, output string) error {
	switch output {
	case outputYAML:
		data, err := yaml.Marshal(cat)
		if err != nil {
			return err
		}
		_, err = w.Write(data)

		return err
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(cat)
	case outputTable:
		headers := []string{
			"SERVICE-ID",
			"NAME",
			"KIND",
			"BINDABLE",
			"PLANS",
		}
		table := newTableWriter(w, headers)
		for _, svc := range cat.Services {
			kind := svc.Kind()
			if kind == "" {
				kind = na
			}
			plans := make([]string, 0, len(svc.Plans))
			for _, plan := range svc.Plans {
				plans = append(plans, plan.Name)
			}
			row := []string{
				svc.ID,
				svc.Name,
				kind,
				fmt.Sprintf("%t", svc.Bindable),
				strings.Join(plans, ","),
			}
			if err := table.Append(row); err != nil {
				return err
			}
		}

		return table.Render()
	default:
		return fmt.Errorf("%w: %s", errUnknownOutput, output)
	}
}
