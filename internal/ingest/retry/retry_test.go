package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock records requested sleeps and returns immediately.
type fakeClock struct {
	sleeps []time.Duration
	err    error
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return c.err
}

// simulateRetries runs Do over a scripted sequence of results.
func simulateRetries(t *testing.T, results []error) (calls int, err error) {
	t.Helper()

	i := 0
	r := New(DefaultParams(), WithClock(&fakeClock{}))
	_, err = Do(context.Background(), r, func(ctx context.Context) (struct{}, error) {
		if i >= len(results) {
			t.Fatalf("operation invoked %d times, only %d results scripted", i+1, len(results))
		}
		res := results[i]
		i++
		return struct{}{}, res
	})
	return i, err
}

func TestDoAcceptsOk(t *testing.T) {
	calls, err := simulateRetries(t, []error{nil})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransient(t *testing.T) {
	calls, err := simulateRetries(t, []error{
		Transient(errors.New("unavailable")),
		nil,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	permanent := Permanent(errors.New("bad request"))
	calls, err := simulateRetries(t, []error{
		Transient(errors.New("unavailable")),
		Transient(errors.New("unavailable")),
		permanent,
		nil,
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	results := make([]error, 0, 31)
	for i := 0; i < 30; i++ {
		results = append(results, Transient(errLabeled(i)))
	}
	results = append(results, nil)

	calls, err := simulateRetries(t, results)
	if calls != 30 {
		t.Errorf("expected 30 calls, got %d", calls)
	}
	// The error from the final attempt comes back unmodified.
	var l labeledError
	if !errors.As(err, &l) || int(l) != 29 {
		t.Errorf("expected error from attempt 29, got %v", err)
	}
}

func TestDoSucceedsOnFinalAttempt(t *testing.T) {
	results := make([]error, 0, 30)
	for i := 0; i < 29; i++ {
		results = append(results, Transient(errLabeled(i)))
	}
	results = append(results, nil)

	calls, err := simulateRetries(t, results)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 30 {
		t.Errorf("expected 30 calls, got %d", calls)
	}
}

type labeledError int

func (e labeledError) Error() string { return "failure" }

func errLabeled(i int) error { return labeledError(i) }

func TestDoNoSleepOnPermanent(t *testing.T) {
	clock := &fakeClock{}
	r := New(DefaultParams(), WithClock(clock))
	_, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		return 0, Permanent(errors.New("forbidden"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", clock.sleeps)
	}
}

func TestDoSleepsBetweenAttempts(t *testing.T) {
	clock := &fakeClock{}
	r := New(Params{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5}, WithClock(clock))

	calls := 0
	_, _ = Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, Transient(errors.New("unavailable"))
	})

	if calls != 5 {
		t.Fatalf("expected 5 calls, got %d", calls)
	}
	// One sleep per retry, none after the final attempt.
	if len(clock.sleeps) != 4 {
		t.Fatalf("expected 4 sleeps, got %d", len(clock.sleeps))
	}
	for i, d := range clock.sleeps {
		attempt := i + 1
		ceiling := min(50<<uint(attempt), 1000)
		if d < 0 || d >= time.Duration(ceiling)*time.Millisecond {
			t.Errorf("sleep %d: delay %v outside [0, %dms)", i, d, ceiling)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	r := New(Params{BaseDelay: 250 * time.Millisecond, MaxDelay: 20 * time.Second, MaxAttempts: 30})

	for attempt := 1; attempt < 30; attempt++ {
		ceilingMs := int64(250) << uint(attempt)
		if ceilingMs > 20_000 || ceilingMs <= 0 {
			ceilingMs = 20_000
		}
		for i := 0; i < 100; i++ {
			d := r.backoff(attempt)
			if d < 0 || d >= time.Duration(ceilingMs)*time.Millisecond {
				t.Fatalf("attempt %d: delay %v outside [0, %dms)", attempt, d, ceilingMs)
			}
		}
	}
}

func TestBackoffShiftOverflowKeepsCeiling(t *testing.T) {
	r := New(Params{BaseDelay: 250 * time.Millisecond, MaxDelay: 20 * time.Second, MaxAttempts: 70})

	// Around attempt 56 the doubled base delay overflows int64 and goes
	// negative; the ceiling must stay pinned at MaxDelay, never collapse to
	// zero.
	for attempt := 50; attempt < 70; attempt++ {
		var max time.Duration
		for i := 0; i < 100; i++ {
			d := r.backoff(attempt)
			if d < 0 || d >= 20*time.Second {
				t.Fatalf("attempt %d: delay %v outside [0, 20s)", attempt, d)
			}
			if d > max {
				max = d
			}
		}
		if max < time.Second {
			t.Fatalf("attempt %d: 100 samples all below 1s, ceiling collapsed (max %v)", attempt, max)
		}
	}
}

func TestDoCancelledDuringSleep(t *testing.T) {
	clock := &fakeClock{err: context.Canceled}
	r := New(DefaultParams(), WithClock(clock))

	calls := 0
	_, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, Transient(errors.New("unavailable"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestSystemClockHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SystemClock{}.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
