package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dvanle/relay/internal/core/domain"
)

var (
	// ErrRecordNotFound is returned when a record doesn't exist
	ErrRecordNotFound = errors.New("record not found")
)

// OutboxRepository handles outbox record storage operations
type OutboxRepository interface {
	// Add inserts a pending record
	Add(ctx context.Context, record *domain.Record) error

	// ClaimBatch atomically claims up to limit pending records for a route,
	// marking them publishing so concurrent pumps don't pick them up
	ClaimBatch(ctx context.Context, indexID, sourceID string, limit int) ([]*domain.Record, error)

	// MarkPublished marks records as published
	MarkPublished(ctx context.Context, ids []uuid.UUID) error

	// MarkFailed marks records as failed with the final error
	MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error

	// Requeue moves failed and stuck publishing records back to pending.
	// Operator action: failed records were dead-lettered deliberately and
	// only come back through this call.
	Requeue(ctx context.Context, indexID, sourceID string) (int64, error)

	// RequeueStuck moves only publishing records back to pending, recovering
	// batches a crashed run claimed but never settled
	RequeueStuck(ctx context.Context, indexID, sourceID string) (int64, error)

	// CountPending returns the backlog size for a route
	CountPending(ctx context.Context, indexID, sourceID string) (int64, error)
}

// DeadLetterRepository parks records that exhausted retries or failed
// permanently
type DeadLetterRepository interface {
	// Add parks a record
	Add(ctx context.Context, dead *domain.DeadRecord) error

	// Pop removes and returns the oldest parked record, nil when empty
	Pop(ctx context.Context) (*domain.DeadRecord, error)

	// Count returns the number of parked records
	Count(ctx context.Context) (int64, error)
}
