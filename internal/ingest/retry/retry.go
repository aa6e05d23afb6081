// Package retry wraps fallible operations with exponential backoff and full
// jitter. Errors are classified as transient or permanent; only transient
// failures are retried, up to a bounded number of attempts.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Retrier executes operations under a backoff schedule. The zero value is not
// usable; construct with New.
type Retrier struct {
	params Params
	clock  Clock
	log    *slog.Logger
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithClock overrides the sleep source, used by tests to avoid real delays.
func WithClock(c Clock) Option {
	return func(r *Retrier) { r.clock = c }
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retrier) { r.log = l }
}

// New creates a Retrier with the given schedule.
func New(params Params, opts ...Option) *Retrier {
	if params.MaxAttempts < 1 {
		params.MaxAttempts = 1
	}
	r := &Retrier{
		params: params,
		clock:  SystemClock{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Params returns the schedule the Retrier was built with.
func (r *Retrier) Params() Params { return r.params }

// Do invokes op until it succeeds, fails permanently, or MaxAttempts is
// reached. The operation's error is forwarded unmodified; on exhaustion the
// last transient error is returned. Context cancellation aborts a pending
// backoff sleep and returns the context error.
func Do[U any](ctx context.Context, r *Retrier, op func(context.Context) (U, error)) (U, error) {
	var zero U

	attempts := 0
	for {
		v, err := op(ctx)
		attempts++

		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempts >= r.params.MaxAttempts {
			r.log.Warn("request failed, giving up", "attempts", attempts)
			return zero, err
		}

		delay := r.backoff(attempts)
		r.log.Debug("request failed, retrying",
			"attempts", attempts,
			"delay", delay,
			"error", err,
		)
		if serr := r.clock.Sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

// backoff returns a delay drawn uniformly from [0, ceiling) where the ceiling
// doubles with every attempt until it hits MaxDelay. Arithmetic is done in
// integer milliseconds.
func (r *Retrier) backoff(attempts int) time.Duration {
	baseMs := r.params.BaseDelay.Milliseconds()
	maxMs := r.params.MaxDelay.Milliseconds()

	ceilingMs := maxMs
	// Guard the shift: past 62 bits the doubling has long exceeded any
	// practical MaxDelay.
	if attempts < 62 {
		// The shift overflows to a negative value well before 62 bits for
		// non-trivial base delays; only a positive doubling may lower the
		// ceiling.
		if doubled := baseMs << uint(attempts); doubled > 0 && doubled < maxMs {
			ceilingMs = doubled
		}
	}
	if ceilingMs <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(ceilingMs)) * time.Millisecond
}
