package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dvanle/relay/internal/core/domain"
)

func TestOutboxClaimBatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewOutboxRepo(store)

	older := domain.NewRecord("logs", "kafka", []byte("a"))
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer := domain.NewRecord("logs", "kafka", []byte("b"))
	other := domain.NewRecord("traces", "otel", []byte("c"))

	for _, rec := range []*domain.Record{newer, older, other} {
		if err := repo.Add(ctx, rec); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	claimed, err := repo.ClaimBatch(ctx, "logs", "kafka", 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed records, got %d", len(claimed))
	}
	// Oldest first.
	if claimed[0].ID != older.ID {
		t.Errorf("expected oldest record first, got %s", claimed[0].ID)
	}
	if claimed[0].Status != domain.StatusPublishing || claimed[0].Attempts != 1 {
		t.Errorf("claimed record not marked publishing: %+v", claimed[0])
	}

	// Claimed records stay invisible to the next claim.
	again, err := repo.ClaimBatch(ctx, "logs", "kafka", 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no records on second claim, got %d", len(again))
	}
}

func TestOutboxMarkAndRequeue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewOutboxRepo(store)

	rec := domain.NewRecord("logs", "kafka", []byte("a"))
	if err := repo.Add(ctx, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := repo.ClaimBatch(ctx, "logs", "kafka", 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.MarkFailed(ctx, []uuid.UUID{rec.ID}, "shard leader gone"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	n, err := repo.Requeue(ctx, "logs", "kafka")
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 requeued record, got %d", n)
	}

	count, err := repo.CountPending(ctx, "logs", "kafka")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected backlog 1, got %d", count)
	}
}

func TestOutboxRequeueStuck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewOutboxRepo(store)

	stuck := domain.NewRecord("logs", "kafka", []byte("a"))
	failed := domain.NewRecord("logs", "kafka", []byte("b"))
	for _, rec := range []*domain.Record{stuck, failed} {
		if err := repo.Add(ctx, rec); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := repo.ClaimBatch(ctx, "logs", "kafka", 2); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.MarkFailed(ctx, []uuid.UUID{failed.ID}, "payload rejected"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// Only the record still in publishing comes back; the failed one stays
	// parked until an explicit Requeue.
	n, err := repo.RequeueStuck(ctx, "logs", "kafka")
	if err != nil {
		t.Fatalf("requeue stuck: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 requeued record, got %d", n)
	}

	count, err := repo.CountPending(ctx, "logs", "kafka")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected backlog 1, got %d", count)
	}

	recs, err := repo.ClaimBatch(ctx, "logs", "kafka", 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != stuck.ID {
		t.Errorf("expected only the stuck record back, got %d records", len(recs))
	}
}

func TestDeadLetterQueue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewDeadLetterRepo(store)

	rec := domain.NewRecord("logs", "kafka", []byte("a"))
	dead := &domain.DeadRecord{Record: rec, Reason: "exhausted", FailedAt: time.Now()}
	if err := repo.Add(ctx, dead); err != nil {
		t.Fatalf("add: %v", err)
	}

	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}

	popped, err := repo.Pop(ctx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if popped == nil || popped.Record.ID != rec.ID {
		t.Errorf("unexpected popped record: %+v", popped)
	}

	empty, err := repo.Pop(ctx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if empty != nil {
		t.Errorf("expected nil on empty queue, got %+v", empty)
	}
}
