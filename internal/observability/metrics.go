// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the coach service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
//
// Tracked:
//   - Inbound invocation counts and outcomes
//   - Model stream duration
//   - Tool executions by tool and status
//   - Gateway calls by method and status bucket
//   - Errors by component
type Metrics struct {
	// InvocationCounter counts inbound requests.
	// Labels: status (success|validation_error|error)
	InvocationCounter *prometheus.CounterVec

	// StreamDuration measures the full model stream in seconds.
	// Labels: model
	StreamDuration *prometheus.HistogramVec

	// EventCounter counts outbound stream events.
	// Labels: type (text_delta|progress|error)
	EventCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// GatewayCallCounter counts JSON-RPC calls to the tool gateway.
	// Labels: method, status (ok|credentials|transport|decode or an
	// ErrorKind string)
	GatewayCallCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component.
	// Labels: component (server|gateway|tools), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors with the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return newMetrics(nil)
}

// NewMetricsWithRegistry registers into an explicit registry; tests use
// this to avoid duplicate registration in the default one.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}
	return &Metrics{
		InvocationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachai_invocations_total",
				Help: "Total inbound invocations by outcome",
			},
			[]string{"status"},
		),
		StreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coachai_stream_duration_seconds",
				Help:    "Duration of full model streams in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		EventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachai_stream_events_total",
				Help: "Total outbound stream events by type",
			},
			[]string{"type"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachai_tool_executions_total",
				Help: "Total tool executions by tool and status",
			},
			[]string{"tool_name", "status"},
		),
		GatewayCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachai_gateway_calls_total",
				Help: "Total JSON-RPC calls to the tool gateway by method and status",
			},
			[]string{"method", "status"},
		),
		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coachai_errors_total",
				Help: "Total errors by component and type",
			},
			[]string{"component", "error_type"},
		),
	}
}
