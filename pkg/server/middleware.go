// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gardener/aws-service-broker/pkg/broker"
	"github.com/gardener/aws-service-broker/pkg/metrics"
	slogutils "github.com/gardener/aws-service-broker/pkg/utils/slog"
)

// APIVersionHeader is the header carrying the broker API version of the
// platform.
const APIVersionHeader = "X-Broker-API-Version"

// SupportedAPIVersion is the major broker API version served.
const SupportedAPIVersion = "2"

// unmatchedRoute is the route label of requests not matching any route.
const unmatchedRoute = "unmatched"

// NewLoggerMiddleware returns a new middleware, which embeds a [slog.Logger]
// in the request context.
func NewLoggerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			// Add the request id, method and path as default
			// attributes to each log event.
			reqID := middleware.GetReqID(r.Context())
			if reqID == "" {
				reqID = uuid.NewString()
			}
			attrs := []slog.Attr{
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			}
			newLogger := slog.New(logger.Handler().WithAttrs(attrs))
			ctx := slogutils.WithLogger(r.Context(), newLogger)

			next.ServeHTTP(w, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}

// NewMeasuringMiddleware returns a new middleware, which logs the status and
// duration of requests.
func NewMeasuringMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			logger := slogutils.GetLogger(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request served", "status", ww.Status(), "duration", time.Since(start))
		}

		return http.HandlerFunc(fn)
	}
}

// NewMetricsMiddleware returns a new middleware, which provides metrics about
// the served requests.
func NewMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}

		return http.HandlerFunc(fn)
	}
}

// NewAPIVersionMiddleware returns a new middleware, which rejects requests
// for an unsupported broker API version. Requests without a version are
// rejected only if required is set.
func NewAPIVersionMiddleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			version := r.Header.Get(APIVersionHeader)
			switch {
			case version == "" && required:
				writeError(w, r, broker.Errorf(broker.ErrPrecondition, "The %s header is required", APIVersionHeader))
				return
			case version != "" && version != SupportedAPIVersion && !strings.HasPrefix(version, SupportedAPIVersion+"."):
				writeError(w, r, broker.Errorf(broker.ErrPrecondition, "Unsupported broker API version: %s", version))
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}
