// Package obsmetrics exposes the Prometheus metrics the CV wizard backend
// emits: LLM gateway call counts/latency/tokens, wizard action throughput,
// PDF render latency, and session store operation counts.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the centralized registry of this service's Prometheus
// instruments.
type Metrics struct {
	// LLMCallDuration measures call_schema latency in seconds.
	// Labels: provider (openai|anthropic), stage, phase (schema|schema_repair)
	LLMCallDuration *prometheus.HistogramVec

	// LLMCallCounter counts call_schema invocations.
	// Labels: provider, stage, status (success|provider_error); a provider
	// call that returns text is counted as success even if parsing fails.
	LLMCallCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption per call.
	// Labels: provider, stage, kind (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// WizardActionCounter counts dispatched UI actions.
	// Labels: action, status (ok|error)
	WizardActionCounter *prometheus.CounterVec

	// WizardActionDuration measures action dispatch latency in seconds.
	// Labels: action
	WizardActionDuration *prometheus.HistogramVec

	// PDFRenderDuration measures headless-render latency in seconds.
	// Labels: kind (cv|cover_letter)
	PDFRenderDuration *prometheus.HistogramVec

	// PDFRenderCounter counts render attempts.
	// Labels: kind, status (ok|error)
	PDFRenderCounter *prometheus.CounterVec

	// SessionStoreCounter counts session store operations.
	// Labels: op (create|get|update|cleanup_expired), status (ok|conflict|not_found|error)
	SessionStoreCounter *prometheus.CounterVec

	// HTTPRequestDuration measures /tool and /health latency.
	// Labels: tool, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers and returns a fresh Metrics instance against the default
// Prometheus registry.
func New() *Metrics {
	return &Metrics{
		LLMCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cvwizard_llm_call_duration_seconds",
			Help:    "Latency of LLM gateway call_schema invocations.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"provider", "stage", "phase"}),

		LLMCallCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cvwizard_llm_calls_total",
			Help: "Total LLM gateway call_schema invocations by outcome.",
		}, []string{"provider", "stage", "status"}),

		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cvwizard_llm_tokens_total",
			Help: "Tokens consumed by LLM gateway calls.",
		}, []string{"provider", "stage", "kind"}),

		WizardActionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cvwizard_wizard_actions_total",
			Help: "Total dispatched wizard UI actions.",
		}, []string{"action", "status"}),

		WizardActionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cvwizard_wizard_action_duration_seconds",
			Help:    "Latency of wizard action dispatch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),

		PDFRenderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cvwizard_pdf_render_duration_seconds",
			Help:    "Latency of headless PDF rendering.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"kind"}),

		PDFRenderCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cvwizard_pdf_renders_total",
			Help: "Total PDF render attempts.",
		}, []string{"kind", "status"}),

		SessionStoreCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cvwizard_session_store_ops_total",
			Help: "Total session store operations.",
		}, []string{"op", "status"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cvwizard_http_request_duration_seconds",
			Help:    "Latency of /tool and /health requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool", "status_code"}),
	}
}
