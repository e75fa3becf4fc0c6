package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package telemetry exposes the node's Prometheus collectors behind small
// helper functions so the hot path never touches label plumbing directly.

var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshnode_ingest_messages_total",
		Help: "Candidates processed, by delivery source and outcome.",
	}, []string{"source", "outcome"})

	ingestRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshnode_ingest_retries_total",
		Help: "Deferred candidates re-queued for another validation attempt.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshnode_ingest_queue_depth",
		Help: "Current depth of the in-memory ingest queue.",
	})

	resolverFetch = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meshnode_resolver_fetch_seconds",
		Help:    "Blob store fetch latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	aggregateApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshnode_aggregate_applies_total",
		Help: "State transitions applied, by message type.",
	}, []string{"type"})

	confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshnode_confirmations_total",
		Help: "Confirmation events consumed, by match result.",
	}, []string{"result"})
)

// IncIngested records one processed candidate.
func IncIngested(source, outcome string) {
	ingestTotal.WithLabelValues(source, outcome).Inc()
}

// IncRetry records a deferred candidate going back on the retry schedule.
func IncRetry() { ingestRetries.Inc() }

// SetQueueDepth publishes the ingest queue depth.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// ObserveResolverFetch records one blob fetch attempt.
func ObserveResolverFetch(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	resolverFetch.WithLabelValues(result).Observe(d.Seconds())
}

// IncApplied records one aggregation state transition.
func IncApplied(msgType string) {
	aggregateApplies.WithLabelValues(msgType).Inc()
}

// IncConfirmation records a confirmation event consumption result:
// "matched", "buffered", "duplicate" or "miss".
func IncConfirmation(result string) {
	confirmations.WithLabelValues(result).Inc()
}
