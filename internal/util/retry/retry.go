// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retry loop. Retries counts attempts after the first, so
// Retries=2 means at most three calls.
type Policy struct {
	Retries int
	Delay   time.Duration
}

// Attempts returns the total number of calls the policy allows.
func (p Policy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// ErrStop wraps an error that should end the loop immediately.
type ErrStop struct{ Err error }

func (e *ErrStop) Error() string { return e.Err.Error() }
func (e *ErrStop) Unwrap() error { return e.Err }

// Stop marks err as permanent.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &ErrStop{Err: err}
}

// Do calls fn until it succeeds, returns a Stop error, the attempts run out,
// or ctx is cancelled. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 0; attempt < p.Attempts(); attempt++ {
		if attempt > 0 && p.Delay > 0 {
			t := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		var stop *ErrStop
		if errors.As(err, &stop) {
			return stop.Err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
