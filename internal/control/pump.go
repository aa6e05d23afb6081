package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dvanle/relay/internal/core/config"
	"github.com/dvanle/relay/internal/core/domain"
	"github.com/dvanle/relay/internal/infra/storage"
	"github.com/dvanle/relay/internal/ingest/publisher"
	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/metrics"
)

// Pump drains one route's outbox: claim a batch of pending records, publish
// it through the retrying publisher, and settle the outcome. Batches that
// fail permanently or exhaust their retries are parked in the dead-letter
// queue and marked failed.
type Pump struct {
	route       config.RouteConfig
	outbox      storage.OutboxRepository
	deadLetters storage.DeadLetterRepository
	publisher   *publisher.Publisher
	log         *slog.Logger
}

// NewPump creates a pump for one route. deadLetters may be nil, in which case
// failed records stay in the outbox with status failed.
func NewPump(
	route config.RouteConfig,
	outbox storage.OutboxRepository,
	deadLetters storage.DeadLetterRepository,
	pub *publisher.Publisher,
) *Pump {
	return &Pump{
		route:       route,
		outbox:      outbox,
		deadLetters: deadLetters,
		publisher:   pub,
		log:         slog.Default(),
	}
}

// Run drains the route until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.route.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.log.Error("outbox drain failed",
					"index", p.route.Index,
					"source", p.route.Source,
					"error", err,
				)
			}
			p.updateBacklog(ctx)
		}
	}
}

// drain claims and publishes batches until the outbox has nothing pending.
func (p *Pump) drain(ctx context.Context) error {
	for {
		records, err := p.outbox.ClaimBatch(ctx, p.route.Index, p.route.Source, p.route.BatchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		if err := p.publishBatch(ctx, records); err != nil {
			return err
		}

		if len(records) < p.route.BatchSize {
			return nil
		}
	}
}

func (p *Pump) publishBatch(ctx context.Context, records []*domain.Record) error {
	err := p.publisher.Publish(ctx, p.route.Index, p.route.Source, records)
	if err == nil {
		return p.outbox.MarkPublished(ctx, recordIDs(records))
	}
	if ctx.Err() != nil {
		// Cancelled mid-publish. Leave the batch in publishing; Requeue
		// picks it up on the next run.
		return err
	}

	kind := "permanent"
	if retry.IsRetryable(err) {
		kind = "exhausted"
	}
	metrics.PublishFailures.WithLabelValues(p.route.Index, p.route.Source, kind).Inc()
	p.log.Error("batch failed to publish",
		"index", p.route.Index,
		"source", p.route.Source,
		"records", len(records),
		"kind", kind,
		"error", err,
	)

	p.parkBatch(ctx, records, err.Error())
	return p.outbox.MarkFailed(ctx, recordIDs(records), err.Error())
}

// parkBatch moves the records into the dead-letter queue.
func (p *Pump) parkBatch(ctx context.Context, records []*domain.Record, reason string) {
	if p.deadLetters == nil {
		return
	}
	now := time.Now().UTC()
	for _, rec := range records {
		dead := &domain.DeadRecord{
			Record:   rec,
			Reason:   reason,
			FailedAt: now,
		}
		if err := p.deadLetters.Add(ctx, dead); err != nil {
			p.log.Warn("failed to park dead record", "id", rec.ID, "error", err)
			continue
		}
		metrics.DeadLetters.WithLabelValues(p.route.Index, p.route.Source).Inc()
	}
}

func (p *Pump) updateBacklog(ctx context.Context) {
	count, err := p.outbox.CountPending(ctx, p.route.Index, p.route.Source)
	if err != nil {
		return
	}
	metrics.OutboxBacklog.WithLabelValues(p.route.Index, p.route.Source).Set(float64(count))
}

func recordIDs(records []*domain.Record) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}
