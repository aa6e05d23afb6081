// Package publisher implements the producer write path: resolve the target
// route's shard set, pick the next shard round-robin and write the batch,
// retrying transient failures with backoff.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dvanle/relay/internal/core/domain"
	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
	"github.com/dvanle/relay/internal/infra/transport"
	"github.com/dvanle/relay/internal/metrics"
)

// ErrNoRoute is returned when the shard table has no entry for the batch's
// (index, source) pair.
var ErrNoRoute = errors.New("no shard table entry for route")

// Publisher routes record batches to open shards.
type Publisher struct {
	table   *shard.Table
	writer  transport.Writer
	retrier *retry.Retrier
	log     *slog.Logger
}

// New creates a publisher over the given shard table and writer.
func New(table *shard.Table, writer transport.Writer, retrier *retry.Retrier) *Publisher {
	return &Publisher{
		table:   table,
		writer:  writer,
		retrier: retrier,
		log:     slog.Default(),
	}
}

// Publish writes the batch to the next shard of the (index, source) route.
// The shard is re-resolved on every attempt, so a refresh that lands between
// attempts steers the retry to the new shard set. Returns the writer's error
// (classified transient or permanent) once retries are exhausted or a
// permanent failure occurs.
func (p *Publisher) Publish(ctx context.Context, indexID, sourceID string, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	_, err := retry.Do(ctx, p.retrier, func(ctx context.Context) (struct{}, error) {
		entry, ok := p.table.FindEntry(indexID, sourceID)
		if !ok {
			return struct{}{}, retry.Permanent(fmt.Errorf("%w: %s/%s", ErrNoRoute, indexID, sourceID))
		}
		target := entry.NextShardRoundRobin()

		start := time.Now()
		werr := p.writer.WriteRecords(ctx, target, records)
		metrics.WriteLatency.WithLabelValues(indexID, sourceID).Observe(time.Since(start).Seconds())
		metrics.WriteAttempts.WithLabelValues(indexID, sourceID, outcome(werr)).Inc()

		if werr != nil {
			return struct{}{}, werr
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	metrics.RecordsPublished.WithLabelValues(indexID, sourceID).Add(float64(len(records)))
	p.log.Debug("published batch", "index", indexID, "source", sourceID, "records", len(records))
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case retry.IsRetryable(err):
		return "transient"
	default:
		return "permanent"
	}
}
