package health

import (
	"context"
	"sync"
	"time"

	"github.com/dvanle/relay/internal/infra/controlplane"
	"github.com/dvanle/relay/internal/infra/storage"
	"github.com/dvanle/relay/internal/ingest/shard"
)

// Monitor aggregates health status from the shard table and storage.
type Monitor struct {
	routes      []controlplane.Route
	table       *shard.Table
	outbox      storage.OutboxRepository
	deadLetters storage.DeadLetterRepository
	lastCheck   time.Time
	lastReport  map[string]RouteHealth
	mu          sync.RWMutex
}

// NewMonitor creates a new health monitor. deadLetters may be nil when no
// dead-letter store is configured.
func NewMonitor(
	routes []controlplane.Route,
	table *shard.Table,
	outbox storage.OutboxRepository,
	deadLetters storage.DeadLetterRepository,
) *Monitor {
	return &Monitor{
		routes:      routes,
		table:       table,
		outbox:      outbox,
		deadLetters: deadLetters,
		lastReport:  make(map[string]RouteHealth),
	}
}

// CheckHealth performs a health check for all routes.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]RouteHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid hammering storage
	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport) > 0 {
		return m.lastReport
	}

	var dead int64
	if m.deadLetters != nil {
		if count, err := m.deadLetters.Count(ctx); err == nil {
			dead = count
		}
	}

	report := make(map[string]RouteHealth)

	for _, route := range m.routes {
		health := RouteHealth{
			Index:       route.Index,
			Source:      route.Source,
			Status:      StatusHealthy,
			DeadLetters: dead,
		}

		// 1. Open shards for the route
		if entry, ok := m.table.FindEntry(route.Index, route.Source); ok {
			health.OpenShards = entry.Len()
		}

		// 2. Outbox backlog
		if backlog, err := m.outbox.CountPending(ctx, route.Index, route.Source); err == nil {
			health.Backlog = backlog
		}

		// Evaluate status
		if health.OpenShards == 0 || health.Backlog > 10000 {
			health.Status = StatusCritical
		} else if health.Backlog > 1000 || health.DeadLetters > 0 {
			health.Status = StatusDegraded
		}

		report[shard.Key{IndexID: route.Index, SourceID: route.Source}.String()] = health
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
