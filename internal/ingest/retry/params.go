package retry

import "time"

// Params controls the exponential backoff schedule.
type Params struct {
	// BaseDelay is doubled after every failed attempt to form the jitter ceiling.
	BaseDelay time.Duration
	// MaxDelay caps the jitter ceiling.
	MaxDelay time.Duration
	// MaxAttempts is the total number of invocations, including the first one.
	MaxAttempts int
}

// DefaultParams returns the production backoff schedule. The shape follows the
// AWS full-jitter recommendation: delays are drawn uniformly from zero up to an
// exponentially growing ceiling.
func DefaultParams() Params {
	return Params{
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    20 * time.Second,
		MaxAttempts: 30,
	}
}

// TestParams returns an accelerated schedule for tests and local runs.
func TestParams() Params {
	return Params{
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
		MaxAttempts: 30,
	}
}
