// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/gardener/aws-service-broker/pkg/metrics"
	"github.com/gardener/aws-service-broker/pkg/server"
)

// shutdownTimeout is the time given to in-flight requests on shutdown.
const shutdownTimeout = 30 * time.Second

// NewServeCommand returns a new command for serving the broker API.
func NewServeCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "serve",
		Usage:   "start the broker API server",
		Aliases: []string{"s"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen-address",
				Usage:   "address on which the broker API is served",
				EnvVars: []string{"LISTEN_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "metrics-address",
				Usage:   "address on which metrics are served",
				EnvVars: []string{"METRICS_ADDRESS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			conf := getConfig(ctx)
			if ctx.IsSet("listen-address") {
				conf.Server.Address = ctx.String("listen-address")
			}
			if ctx.IsSet("metrics-address") {
				conf.Metrics.Address = ctx.String("metrics-address")
			}

			cat, err := loadCatalog(conf)
			if err != nil {
				return err
			}

			cs, err := newClientset(ctx.Context, conf)
			if err != nil {
				return err
			}

			dispatcher, err := newDispatcher(conf, cat, newAPIs(cs))
			if err != nil {
				return err
			}
			for _, svc := range dispatcher.Services() {
				slog.Info("registered service", "service_id", svc.ID, "kind", svc.Kind)
			}

			router := server.NewRouter(server.RouterOptions{
				Broker:            dispatcher,
				Catalog:           cat,
				Logger:            slog.Default(),
				Auth:              conf.Server.Auth,
				RequireAPIVersion: conf.Server.RequireAPIVersion,
				RequestTimeout:    conf.Server.RequestTimeout,
			})
			apiServer := server.New(conf.Server, router)
			metricsServer := metrics.NewServer(conf.Metrics.Address, conf.Metrics.Path)

			return runServers(apiServer, metricsServer)
		},
	}

	return cmd
}

// runServers starts the given servers and shuts them down when a signal is
// received, or when one of them fails.
func runServers(servers ...*http.Server) error {
	serverErrors := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			slog.Info("starting server", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var result error
	select {
	case err := <-serverErrors:
		result = err
	case sig := <-shutdown:
		slog.Info("shutting down gracefully", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("graceful shutdown failed", "address", srv.Addr, "reason", err)
			_ = srv.Close()
			result = errors.Join(result, err)
		}
	}
	slog.Info("servers stopped")

	return result
}
