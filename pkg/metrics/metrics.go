// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesCachedTotal tracks messages written to the cache by role.
	MessagesCachedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_messages_total",
			Help: "Total messages written to the message cache",
		},
		[]string{"role"},
	)

	// PendingQueueDepth tracks the length of the global pending queue as
	// observed on the last cache write.
	PendingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_pending_queue_depth",
			Help: "Pending flush queue length at last observation",
		},
	)

	// CorruptEntriesTotal tracks cached entries dropped because they failed to
	// deserialize.
	CorruptEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_corrupt_entries_total",
			Help: "Cached entries skipped due to deserialization failure",
		},
	)

	// FlushRunsTotal tracks flush coordinator runs by outcome.
	FlushRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flush_runs_total",
			Help: "Total flush runs",
		},
		[]string{"outcome"},
	)

	// FlushedMessagesTotal tracks messages persisted by the flush coordinator.
	FlushedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flush_messages_total",
			Help: "Total messages flushed to durable storage",
		},
	)

	// FlushErrorsTotal tracks per-group errors recorded during flush runs.
	FlushErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flush_errors_total",
			Help: "Total isolated errors recorded during flush runs",
		},
	)

	// FlushDuration tracks flush run duration.
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flush_duration_seconds",
			Help:    "Flush run duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// LLMStreamDuration tracks LLM streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordFlush records metrics for a completed flush run.
func RecordFlush(flushed, errors int, duration float64) {
	outcome := "success"
	if errors > 0 {
		outcome = "partial"
	}
	FlushRunsTotal.WithLabelValues(outcome).Inc()
	FlushedMessagesTotal.Add(float64(flushed))
	FlushErrorsTotal.Add(float64(errors))
	FlushDuration.Observe(duration)
}

// RecordLLMStream records metrics for an LLM streaming response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
