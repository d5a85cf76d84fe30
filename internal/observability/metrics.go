package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the chat agent's Prometheus metrics.
//
// Every recording method is safe on a nil receiver, which records nothing.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordToolCall("getLocalTime", "auto", "success", time.Since(start))
type Metrics struct {
	// ToolCalls counts tool executions.
	// Labels: tool, mode (auto|confirm|unknown), outcome (success|error|timeout|denied)
	ToolCalls *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// Turns counts completed chat turns.
	// Labels: status (completed|awaiting_confirmation|error)
	Turns *prometheus.CounterVec

	// LLMRequests counts completion requests.
	// Labels: provider, model, status (success|error)
	LLMRequests *prometheus.CounterVec

	// LLMTokens tracks token consumption.
	// Labels: provider, model, type (input|output)
	LLMTokens *prometheus.CounterVec

	// ScheduledFires counts scheduled task executions.
	// Labels: outcome (success|error|unknown_callback)
	ScheduledFires *prometheus.CounterVec

	// HTTPRequests counts gateway requests.
	// Labels: route, code
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration measures gateway latency in seconds.
	// Labels: route
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg. A nil reg uses
// the Prometheus default registry, which may only be done once per process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatagent_tool_calls_total",
				Help: "Total number of tool calls by tool, mode, and outcome",
			},
			[]string{"tool", "mode", "outcome"},
		),

		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatagent_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),

		Turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatagent_turns_total",
				Help: "Total number of chat turns by final status",
			},
			[]string{"status"},
		),

		LLMRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatagent_llm_requests_total",
				Help: "Total number of completion requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatagent_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ScheduledFires: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatagent_scheduled_fires_total",
				Help: "Total number of scheduled task executions by outcome",
			},
			[]string{"outcome"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatagent_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatagent_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"route"},
		),

		gatherer: gatherer,
	}
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(tool, mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, mode, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordTurn records the final status of a chat turn.
func (m *Metrics) RecordTurn(status string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(status).Inc()
}

// RecordLLMRequest records a completion request and its token usage.
func (m *Metrics) RecordLLMRequest(provider, model, status string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(provider, model, status).Inc()
	if inputTokens > 0 {
		m.LLMTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordScheduledFire records a scheduled task execution.
func (m *Metrics) RecordScheduledFire(outcome string) {
	if m == nil {
		return
	}
	m.ScheduledFires.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records a gateway request.
func (m *Metrics) RecordHTTPRequest(route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
