// ABOUTME: Prometheus collectors shared across parleyd components
// ABOUTME: Covers token blocklist fail-open, pipeline queue, and realtime fanout

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocklistFailOpen counts token validations that proceeded without a
	// blocklist answer because the ephemeral store was unreachable.
	BlocklistFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_token_blocklist_failopen_total",
		Help: "Token validations accepted without a blocklist check due to ephemeral store failure.",
	})

	// TokensRevoked counts successful revocations.
	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_tokens_revoked_total",
		Help: "Tokens added to the revocation blocklist.",
	})

	// PipelineEnqueued counts messages accepted by the pipeline queue.
	PipelineEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_pipeline_enqueued_total",
		Help: "Messages accepted into the pipeline queue.",
	})

	// PipelineFallback counts messages processed synchronously because the
	// queue was full or the worker was stopped.
	PipelineFallback = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_pipeline_fallback_total",
		Help: "Messages processed on the producer goroutine after enqueue failure.",
	})

	// PipelineDepth tracks the current queue depth.
	PipelineDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_pipeline_queue_depth",
		Help: "Messages currently waiting in the pipeline queue.",
	})

	// LiveConnections tracks open realtime connections on this instance.
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_realtime_connections",
		Help: "Open realtime connections on this instance.",
	})

	// FanoutDropped counts frames dropped because a connection's send queue
	// was full.
	FanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_realtime_fanout_dropped_total",
		Help: "Outbound frames dropped for slow realtime connections.",
	})

	// MessagesPersisted counts messages durably written by the pipeline.
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_persisted_total",
		Help: "Messages written to the message store.",
	})

	// CleanupRemoved counts entities removed by the cleanup reconciler,
	// labelled by kind (orphan_message, tombstone_message, conversation).
	CleanupRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_cleanup_removed_total",
		Help: "Entities removed by the cleanup reconciler.",
	}, []string{"kind"})

	// ResetSuppressed counts password-reset requests silently dropped by the
	// rate limiter.
	ResetSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_password_reset_suppressed_total",
		Help: "Password reset requests suppressed by the rate limiter.",
	})
)
