package retry

import "errors"

// Retryable is implemented by errors that know whether retrying the failed
// operation could plausibly succeed. Errors without the capability are treated
// as non-retryable.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is retryable, unwrapping through the error
// chain to find the Retryable capability. A nil or unclassified error is not
// retryable.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// TransientError marks an error as worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Retryable() bool { return true }

// PermanentError marks an error as certain to fail again unchanged.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Classify wraps err as Transient or Permanent according to its Retryable
// capability. Errors that already carry a classification keep it.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var t *TransientError
	var p *PermanentError
	if errors.As(err, &t) || errors.As(err, &p) {
		return err
	}
	if IsRetryable(err) {
		return Transient(err)
	}
	return Permanent(err)
}
