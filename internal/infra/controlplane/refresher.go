package controlplane

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
	"github.com/dvanle/relay/internal/metrics"
)

// Route names one (index, source) pair the refresher keeps up to date.
type Route struct {
	Index  string
	Source string
}

// Refresher periodically re-fetches each route's shard set and replaces the
// table entry wholesale. A fetch that yields no open shards keeps the
// previous entry in place so writers can continue against the last known set
// until the control plane reports new shards.
type Refresher struct {
	lister   ShardLister
	table    *shard.Table
	routes   []Route
	interval time.Duration
	retrier  *retry.Retrier
	log      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a refresher for the given routes.
func NewRefresher(lister ShardLister, table *shard.Table, routes []Route, interval time.Duration, retrier *retry.Retrier) *Refresher {
	return &Refresher{
		lister:   lister,
		table:    table,
		routes:   routes,
		interval: interval,
		retrier:  retrier,
		log:      slog.Default(),
	}
}

// Start performs an initial refresh of every route, then keeps refreshing in
// the background until Stop or ctx cancellation.
func (r *Refresher) Start(ctx context.Context) error {
	for _, route := range r.routes {
		if err := r.refreshRoute(ctx, route); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(runCtx)
	return nil
}

// Stop halts the background refresh loop.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, route := range r.routes {
				if err := r.refreshRoute(ctx, route); err != nil {
					if ctx.Err() != nil {
						return
					}
					r.log.Error("shard refresh failed",
						"index", route.Index,
						"source", route.Source,
						"error", err,
					)
				}
			}
		}
	}
}

// refreshRoute fetches the route's shard set through the retry executor and
// swaps it into the table.
func (r *Refresher) refreshRoute(ctx context.Context, route Route) error {
	shards, err := retry.Do(ctx, r.retrier, func(ctx context.Context) ([]shard.Shard, error) {
		return r.lister.ListShards(ctx, route.Index, route.Source)
	})
	if err != nil {
		return err
	}

	if err := r.table.InsertShards(route.Index, route.Source, shards); err != nil {
		if errors.Is(err, shard.ErrNoOpenShards) {
			// All shards closed upstream. Keep whatever entry we have and
			// wait for the control plane to open new shards.
			r.log.Warn("no open shards reported, keeping previous entry",
				"index", route.Index,
				"source", route.Source,
			)
			metrics.ShardRefreshEmpty.WithLabelValues(route.Index, route.Source).Inc()
			return nil
		}
		return err
	}

	if entry, ok := r.table.FindEntry(route.Index, route.Source); ok {
		metrics.OpenShards.WithLabelValues(route.Index, route.Source).Set(float64(entry.Len()))
	}
	r.log.Debug("refreshed shard table entry", "index", route.Index, "source", route.Source)
	return nil
}
