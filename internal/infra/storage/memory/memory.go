// Package memory provides in-memory repositories used when no database is
// configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dvanle/relay/internal/core/domain"
)

type MemoryStorage struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.Record
	dead    []*domain.DeadRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[uuid.UUID]*domain.Record),
	}
}

// -----------------------------------------------------------------------------
// Outbox Repository
// -----------------------------------------------------------------------------

type OutboxRepo struct {
	store *MemoryStorage
}

func NewOutboxRepo(store *MemoryStorage) *OutboxRepo {
	return &OutboxRepo{store: store}
}

func (r *OutboxRepo) Add(ctx context.Context, record *domain.Record) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *record
	r.store.records[record.ID] = &clone
	return nil
}

func (r *OutboxRepo) ClaimBatch(ctx context.Context, indexID, sourceID string, limit int) ([]*domain.Record, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var pending []*domain.Record
	for _, rec := range r.store.records {
		if rec.IndexID == indexID && rec.SourceID == sourceID && rec.Status == domain.StatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]*domain.Record, len(pending))
	for i, rec := range pending {
		rec.Status = domain.StatusPublishing
		rec.Attempts++
		clone := *rec
		claimed[i] = &clone
	}
	return claimed, nil
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range ids {
		if rec, ok := r.store.records[id]; ok {
			rec.Status = domain.StatusPublished
		}
	}
	return nil
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range ids {
		if rec, ok := r.store.records[id]; ok {
			rec.Status = domain.StatusFailed
			rec.LastError = reason
		}
	}
	return nil
}

func (r *OutboxRepo) Requeue(ctx context.Context, indexID, sourceID string) (int64, error) {
	return r.requeue(indexID, sourceID, domain.StatusFailed, domain.StatusPublishing)
}

// RequeueStuck resets only records a previous run claimed but never settled;
// failed records stay parked until an explicit Requeue.
func (r *OutboxRepo) RequeueStuck(ctx context.Context, indexID, sourceID string) (int64, error) {
	return r.requeue(indexID, sourceID, domain.StatusPublishing)
}

func (r *OutboxRepo) requeue(indexID, sourceID string, statuses ...domain.RecordStatus) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, rec := range r.store.records {
		if rec.IndexID != indexID || rec.SourceID != sourceID {
			continue
		}
		for _, status := range statuses {
			if rec.Status == status {
				rec.Status = domain.StatusPending
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *OutboxRepo) CountPending(ctx context.Context, indexID, sourceID string) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var n int64
	for _, rec := range r.store.records {
		if rec.IndexID == indexID && rec.SourceID == sourceID && rec.Status == domain.StatusPending {
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Dead Letter Repository
// -----------------------------------------------------------------------------

type DeadLetterRepo struct {
	store *MemoryStorage
}

func NewDeadLetterRepo(store *MemoryStorage) *DeadLetterRepo {
	return &DeadLetterRepo{store: store}
}

func (r *DeadLetterRepo) Add(ctx context.Context, dead *domain.DeadRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.dead = append(r.store.dead, dead)
	return nil
}

func (r *DeadLetterRepo) Pop(ctx context.Context) (*domain.DeadRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if len(r.store.dead) == 0 {
		return nil, nil
	}
	dead := r.store.dead[0]
	r.store.dead = r.store.dead[1:]
	return dead, nil
}

func (r *DeadLetterRepo) Count(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.dead)), nil
}
