// Package metrics exposes the refresh pipeline's Prometheus
// instrumentation. Collectors register on the default registry; the CLI
// serves them via promhttp when --metrics-addr is set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshStarted counts refresh invocations.
	RefreshStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetpulse_refresh_started_total",
		Help: "Number of refresh runs started.",
	})

	// RefreshFailed counts refreshes that ended in error.
	RefreshFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetpulse_refresh_failed_total",
		Help: "Number of refresh runs that failed.",
	})

	// RefreshDuration observes wall time per refresh.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sheetpulse_refresh_duration_seconds",
		Help:    "Refresh run duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// ScopesProcessed counts analyzer dispatches by tag kind.
	ScopesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetpulse_scopes_processed_total",
		Help: "Scopes analyzed successfully, by tag kind.",
	}, []string{"kind"})

	// ScopesFailed counts analyzer failures by tag kind.
	ScopesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetpulse_scopes_failed_total",
		Help: "Scopes whose analyzer returned an error, by tag kind.",
	}, []string{"kind"})

	// WritebackConflicts counts optimistic-lock retries.
	WritebackConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetpulse_writeback_conflicts_total",
		Help: "Optimistic-lock conflicts detected during writeback.",
	})

	// LLMRequests counts summarization calls by provider.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetpulse_llm_requests_total",
		Help: "LLM summarization requests, by provider.",
	}, []string{"provider"})
)
