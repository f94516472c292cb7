// Package retry runs remote write calls with bounded exponential backoff.
//
// The delay after failed attempt i (0-indexed) is BaseDelay * 2^i. There is no
// delay before the first attempt, no delay after the last one and no jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second

	// NoDelay as BaseDelay retries immediately. A zero BaseDelay means DefaultBaseDelay.
	NoDelay time.Duration = -1
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures Do. The zero value is usable and means the defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep is replaced in tests to observe the backoff schedule
	Sleep SleepFunc
}

// DefaultPolicy returns 3 attempts with a 2s base delay
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Delay returns the wait after failed attempt i (0-indexed)
func (p Policy) Delay(attempt int) time.Duration {
	return p.baseDelay() << attempt
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay < 0 {
		return 0
	}
	if p.BaseDelay == 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

// Error is returned once every attempt failed
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as final, Do returns it (unwrapped) without further attempts
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Do calls fn until it succeeds, the attempts are exhausted or ctx is done.
// The returned error is an *Error wrapping the last attempt's error, or the context error.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.maxAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var stop *stopError
		if errors.As(err, &stop) {
			return zero, stop.err
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}

		if attempt == attempts-1 {
			break
		}

		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, err
		}
	}

	return zero, &Error{Attempts: attempts, Err: lastErr}
}

// Run is Do for calls without a result
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
