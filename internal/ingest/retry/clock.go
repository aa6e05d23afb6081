package retry

import (
	"context"
	"time"
)

// Clock abstracts the backoff sleep so tests can run without wall-clock delays.
type Clock interface {
	// Sleep blocks for d or until ctx is cancelled, in which case it returns
	// the context error.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock sleeps on the real timer.
type SystemClock struct{}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
