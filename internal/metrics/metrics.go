// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsPublished tracks records successfully written per route
	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_records_published_total",
			Help: "Total number of records published",
		},
		[]string{"index", "source"},
	)

	// WriteAttempts tracks individual shard write attempts by outcome
	WriteAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_write_attempts_total",
			Help: "Total number of shard write attempts",
		},
		[]string{"index", "source", "outcome"}, // outcome: success/transient/permanent
	)

	// WriteLatency tracks shard write latency
	WriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_write_latency_seconds",
			Help:    "Shard write latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index", "source"},
	)

	// PublishFailures tracks batches that gave up after classification or exhaustion
	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_publish_failures_total",
			Help: "Total number of batches that failed to publish",
		},
		[]string{"index", "source", "kind"}, // kind: permanent/exhausted
	)

	// OpenShards tracks the number of open shards per route
	OpenShards = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_open_shards",
			Help: "Number of open shards in the routing table",
		},
		[]string{"index", "source"},
	)

	// ShardRefreshEmpty counts refreshes that reported no open shards
	ShardRefreshEmpty = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_shard_refresh_empty_total",
			Help: "Total number of shard refreshes rejected for having no open shards",
		},
		[]string{"index", "source"},
	)

	// OutboxBacklog tracks pending records per route
	OutboxBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_outbox_backlog",
			Help: "Number of pending records in the outbox",
		},
		[]string{"index", "source"},
	)

	// DeadLetters counts records parked in the dead-letter queue
	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dead_letters_total",
			Help: "Total number of records sent to the dead-letter queue",
		},
		[]string{"index", "source"},
	)

	// DBConnectionPoolUsage tracks database connection pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
