package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvanle/relay/internal/core/config"
	"github.com/dvanle/relay/internal/core/domain"
	"github.com/dvanle/relay/internal/infra/storage/memory"
	"github.com/dvanle/relay/internal/ingest/publisher"
	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
)

// =============================================================================
// Stubs
// =============================================================================

// scriptedWriter returns one scripted error per call, then succeeds.
type scriptedWriter struct {
	errs    []error
	calls   int
	batches [][]*domain.Record
}

func (w *scriptedWriter) WriteRecords(ctx context.Context, s shard.Shard, records []*domain.Record) error {
	w.calls++
	w.batches = append(w.batches, records)
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		return err
	}
	return nil
}

func (w *scriptedWriter) Close() error { return nil }

type noSleepClock struct{}

func (noSleepClock) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testRoute() config.RouteConfig {
	return config.RouteConfig{
		Index:        "wikipedia",
		Source:       "ingest",
		BatchSize:    10,
		PollInterval: time.Millisecond,
	}
}

func newTestPump(t *testing.T, store *memory.MemoryStorage, writer *scriptedWriter, maxAttempts int) *Pump {
	t.Helper()

	table := shard.NewTable()
	err := table.InsertShards("wikipedia", "ingest", []shard.Shard{
		{ShardID: 0, LeaderID: "ingester-0", State: shard.StateOpen},
	})
	if err != nil {
		t.Fatalf("insert shards: %v", err)
	}

	retrier := retry.New(retry.Params{
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		MaxAttempts: maxAttempts,
	}, retry.WithClock(noSleepClock{}))

	pub := publisher.New(table, writer, retrier)
	return NewPump(testRoute(), memory.NewOutboxRepo(store), memory.NewDeadLetterRepo(store), pub)
}

func addRecords(t *testing.T, store *memory.MemoryStorage, n int) {
	t.Helper()
	repo := memory.NewOutboxRepo(store)
	for i := 0; i < n; i++ {
		rec := domain.NewRecord("wikipedia", "ingest", []byte("doc"))
		if err := repo.Add(context.Background(), rec); err != nil {
			t.Fatalf("add record: %v", err)
		}
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestPump_PublishesPendingRecords(t *testing.T) {
	store := memory.NewMemoryStorage()
	writer := &scriptedWriter{}
	pump := newTestPump(t, store, writer, 3)
	addRecords(t, store, 3)

	if err := pump.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if writer.calls != 1 {
		t.Errorf("expected 1 write, got %d", writer.calls)
	}
	if len(writer.batches[0]) != 3 {
		t.Errorf("expected batch of 3, got %d", len(writer.batches[0]))
	}

	pending, err := memory.NewOutboxRepo(store).CountPending(context.Background(), "wikipedia", "ingest")
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 {
		t.Errorf("expected empty outbox, got %d pending", pending)
	}
}

func TestPump_DrainsInBatches(t *testing.T) {
	store := memory.NewMemoryStorage()
	writer := &scriptedWriter{}
	pump := newTestPump(t, store, writer, 3)
	pump.route.BatchSize = 2
	addRecords(t, store, 5)

	if err := pump.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if writer.calls != 3 {
		t.Errorf("expected 3 writes, got %d", writer.calls)
	}
}

func TestPump_RetriesTransientThenPublishes(t *testing.T) {
	store := memory.NewMemoryStorage()
	writer := &scriptedWriter{errs: []error{
		retry.Transient(errors.New("ingester unavailable")),
		retry.Transient(errors.New("ingester unavailable")),
	}}
	pump := newTestPump(t, store, writer, 3)
	addRecords(t, store, 1)

	if err := pump.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if writer.calls != 3 {
		t.Errorf("expected 3 writes, got %d", writer.calls)
	}
	dead, err := memory.NewDeadLetterRepo(store).Count(context.Background())
	if err != nil {
		t.Fatalf("count dead: %v", err)
	}
	if dead != 0 {
		t.Errorf("expected no dead letters, got %d", dead)
	}
}

func TestPump_ParksPermanentFailures(t *testing.T) {
	store := memory.NewMemoryStorage()
	writer := &scriptedWriter{errs: []error{
		retry.Permanent(errors.New("payload rejected")),
	}}
	pump := newTestPump(t, store, writer, 3)
	addRecords(t, store, 2)

	if err := pump.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if writer.calls != 1 {
		t.Errorf("expected 1 write, got %d", writer.calls)
	}

	deadRepo := memory.NewDeadLetterRepo(store)
	dead, err := deadRepo.Count(context.Background())
	if err != nil {
		t.Fatalf("count dead: %v", err)
	}
	if dead != 2 {
		t.Fatalf("expected 2 dead letters, got %d", dead)
	}
	rec, err := deadRepo.Pop(context.Background())
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if rec.Reason == "" {
		t.Error("expected dead record to carry a reason")
	}
}

func TestPump_ParksExhaustedRetries(t *testing.T) {
	store := memory.NewMemoryStorage()
	writer := &scriptedWriter{errs: []error{
		retry.Transient(errors.New("ingester unavailable")),
		retry.Transient(errors.New("ingester unavailable")),
	}}
	pump := newTestPump(t, store, writer, 2)
	addRecords(t, store, 1)

	if err := pump.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if writer.calls != 2 {
		t.Errorf("expected 2 writes, got %d", writer.calls)
	}
	dead, err := memory.NewDeadLetterRepo(store).Count(context.Background())
	if err != nil {
		t.Fatalf("count dead: %v", err)
	}
	if dead != 1 {
		t.Errorf("expected 1 dead letter, got %d", dead)
	}
}

func TestPump_FailedRecordsStayParkedAfterRestart(t *testing.T) {
	store := memory.NewMemoryStorage()
	writer := &scriptedWriter{errs: []error{
		retry.Permanent(errors.New("payload rejected")),
	}}
	pump := newTestPump(t, store, writer, 3)
	addRecords(t, store, 1)

	if err := pump.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// The startup sweep resets only stuck publishing records; a record the
	// pump marked failed and dead-lettered must not be resurrected.
	outbox := memory.NewOutboxRepo(store)
	n, err := outbox.RequeueStuck(context.Background(), "wikipedia", "ingest")
	if err != nil {
		t.Fatalf("requeue stuck: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no requeued records, got %d", n)
	}

	pending, err := outbox.CountPending(context.Background(), "wikipedia", "ingest")
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 {
		t.Errorf("expected failed record to stay parked, got %d pending", pending)
	}
	dead, err := memory.NewDeadLetterRepo(store).Count(context.Background())
	if err != nil {
		t.Fatalf("count dead: %v", err)
	}
	if dead != 1 {
		t.Errorf("expected 1 dead letter, got %d", dead)
	}
}

func TestPump_RunStopsOnCancel(t *testing.T) {
	store := memory.NewMemoryStorage()
	writer := &scriptedWriter{}
	pump := newTestPump(t, store, writer, 3)
	addRecords(t, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx) }()

	// Give the pump a few ticks to drain, then stop it.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after cancel")
	}

	if writer.calls != 1 {
		t.Errorf("expected 1 write, got %d", writer.calls)
	}
}
