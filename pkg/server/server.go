// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package server provides the HTTP server of the service broker API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/broker/catalog"
	"github.com/gardener/aws-service-broker/pkg/core/config"
)

// AuthRealm is the realm reported to clients failing basic auth.
const AuthRealm = "aws-service-broker"

// RouterOptions controls the construction of the broker API router.
type RouterOptions struct {
	// Broker serves the service instance and binding requests.
	Broker broker.Broker

	// Catalog is the catalog served on /v2/catalog.
	Catalog *catalog.Catalog

	// Logger is the base logger of the request-scoped loggers. Defaults
	// to [slog.Default].
	Logger *slog.Logger

	// Auth specifies the expected basic auth credentials.
	Auth config.BasicAuthConfig

	// RequireAPIVersion rejects requests without broker API version.
	RequireAPIVersion bool

	// RequestTimeout is the deadline of each broker API request. No
	// deadline is applied when zero.
	RequestTimeout time.Duration
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a [chi.Router] with the shared middleware and the
// broker API handlers mounted.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(NewMetricsMiddleware())
	r.Use(NewMeasuringMiddleware())

	r.Get("/healthz", healthHandler)

	handlers := NewHandlers(opts.Broker, opts.Catalog)
	r.Group(func(r chi.Router) {
		if opts.Auth.IsEnabled() {
			creds := map[string]string{opts.Auth.Username: opts.Auth.Password}
			r.Use(middleware.BasicAuth(AuthRealm, creds))
		}
		r.Use(NewAPIVersionMiddleware(opts.RequireAPIVersion))
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		handlers.Mount(r)
	})

	return r
}

// New returns a new [http.Server] serving the given handler with the settings
// from conf. Callers are responsible for starting up and shutting down the
// HTTP server.
func New(conf config.ServerConfig, handler http.Handler) *http.Server {
	server := &http.Server{
		Addr:              conf.Address,
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		Handler:           handler,
	}

	return server
}
