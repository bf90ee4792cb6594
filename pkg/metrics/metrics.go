// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the namespace component of the fully qualified metric name
const Namespace = "aws_service_broker"

// DefaultRegistry is the default [prometheus.Registry] for metrics.
var DefaultRegistry = prometheus.NewPedanticRegistry()

// Results of broker operations.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	// HTTPRequestsTotal is a metric, which gets incremented each time an
	// HTTP request to the broker API has been served.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served by the broker API",
		},
		[]string{"method", "route", "code"},
	)

	// HTTPRequestDuration is a metric, which observes the latency of the
	// HTTP requests to the broker API.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests served by the broker API",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// BrokerOperationsTotal is a metric, which gets incremented each time a
	// broker operation has completed.
	BrokerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "broker_operations_total",
			Help:      "Total number of broker operations by kind and result",
		},
		[]string{"kind", "operation", "result"},
	)
)

// Result returns the result label value for the given error.
func Result(err error) string {
	if err != nil {
		return ResultError
	}

	return ResultSuccess
}

// NewServer returns a new [http.Server] which can serve the metrics from
// [DefaultRegistry] on the specified network address and HTTP path. Callers
// are responsible for starting up and shutting down the HTTP server.
func NewServer(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(
		path,
		promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{}),
	)

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: time.Second * 30,
		Handler:           mux,
	}

	return server
}

// init registers collectors with the [DefaultRegistry].
func init() {
	DefaultRegistry.MustRegister(
		// Broker metrics
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BrokerOperationsTotal,

		// Standard Go metrics
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}
