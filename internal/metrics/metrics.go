// Package metrics holds the Prometheus collectors. Labels stay low-cardinality:
// no visitor, user or item ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamie_catalog_requests_total",
		Help: "Catalog calls by endpoint and outcome (ok, error, exhausted, stale).",
	}, []string{"endpoint", "outcome"})

	CatalogRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamie_catalog_retries_total",
		Help: "Catalog retry waits by endpoint.",
	}, []string{"endpoint"})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamie_catalog_cache_total",
		Help: "Catalog response cache lookups by result (hit, miss).",
	}, []string{"result"})

	CatalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamie_catalog_request_duration_seconds",
		Help:    "Latency of catalog calls including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RecentTouchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamie_recent_touches_total",
		Help: "Items recorded in recently watched lists.",
	})

	RecentCorruptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamie_recent_corrupt_total",
		Help: "Persisted lists discarded because they could not be decoded.",
	})

	SessionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamie_session_cache_total",
		Help: "Session status lookups by result (hit, miss).",
	}, []string{"result"})

	ActivityRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamie_activity_recorded_total",
		Help: "Activity log entries by action.",
	}, []string{"action"})
)
