// ABOUTME: Prometheus collectors for query-server protocol traffic
// ABOUTME: Registered on a private registry and served by the management API

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codeql_relay"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsSent      *prometheus.CounterVec
	responses         *prometheus.CounterVec
	progress          *prometheus.CounterVec
	framingErrors     prometheus.Counter
	unmatched         prometheus.Counter
	pending           prometheus.Gauge
	requestDuration   *prometheus.HistogramVec
	toolCalls         *prometheus.CounterVec
	progressListeners prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		// Labels: method
		requestsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "requests_sent_total",
			Help:      "Requests written to the query server",
		}, []string{"method"}),

		// Labels: method, outcome (result, error)
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "responses_total",
			Help:      "Responses matched to pending requests",
		}, []string{"method", "outcome"}),

		// Labels: method (ql/progressUpdated, evaluation/progress)
		progress: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "progress_notifications_total",
			Help:      "Progress notifications received",
		}, []string{"method"}),

		framingErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "framing_errors_total",
			Help:      "Frames skipped because of malformed headers or bodies",
		}),

		unmatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "unmatched_responses_total",
			Help:      "Responses whose id had no pending request",
		}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response",
		}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "request_duration_seconds",
			Help:      "Time from send to response",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"method"}),

		// Labels: tool, status (ok, error)
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "MCP tool invocations",
		}, []string{"tool", "status"}),

		progressListeners: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "listeners",
			Help:      "Connected progress feed clients",
		}),
	}
}

func (m *Metrics) RequestSent(method string) {
	if m == nil {
		return
	}
	m.requestsSent.WithLabelValues(method).Inc()
	m.pending.Inc()
}

// ResponseReceived records a matched response and how long it took.
func (m *Metrics) ResponseReceived(method string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "result"
	if failed {
		outcome = "error"
	}
	m.responses.WithLabelValues(method, outcome).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	m.pending.Dec()
}

// RequestsAbandoned drops n requests from the pending gauge without a response.
func (m *Metrics) RequestsAbandoned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.pending.Sub(float64(n))
}

func (m *Metrics) ProgressReceived(method string) {
	if m == nil {
		return
	}
	m.progress.WithLabelValues(method).Inc()
}

func (m *Metrics) FramingError() {
	if m == nil {
		return
	}
	m.framingErrors.Inc()
}

func (m *Metrics) UnmatchedResponse() {
	if m == nil {
		return
	}
	m.unmatched.Inc()
}

func (m *Metrics) ToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ListenerConnected() {
	if m == nil {
		return
	}
	m.progressListeners.Inc()
}

func (m *Metrics) ListenerDisconnected() {
	if m == nil {
		return
	}
	m.progressListeners.Dec()
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
