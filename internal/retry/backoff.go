// Package retry provides exponential backoff for reconnecting the SSH
// reverse tunnel and a circuit breaker guarding canvas calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is wrapped by the error Do returns once MaxAttempts
// attempts have failed.
var ErrExhausted = errors.New("retries exhausted")

// PermanentError marks an error that retrying cannot fix, such as a
// rejected SSH key.  Do stops at the first one.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing pauses.
// Zero fields fall back to the defaults noted on each.
type Backoff struct {
	InitialDelay time.Duration // first pause; default 1s
	MaxDelay     time.Duration // cap on any pause; default 60s
	Multiplier   float64       // growth per retry; default 2
	// MaxAttempts bounds the total number of tries including the
	// first.  0 retries until ctx is cancelled.
	MaxAttempts int
	// Jitter spreads each pause by ±25% so that many tunnels dropped
	// at once do not reconnect in lockstep.
	Jitter bool
	// OnRetry, if set, is called after a failed attempt with the
	// pause before the next one.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff returns ten attempts, 1s doubling to at most 60s,
// with jitter.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// Delay returns the un-jittered pause after failed attempt n (1-based).
func (b *Backoff) Delay(n int) time.Duration {
	initial, maxDelay, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if initial <= 0 {
		initial = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	if mult <= 0 {
		mult = 2
	}
	if n < 1 {
		n = 1
	}
	d := float64(initial) * math.Pow(mult, float64(n-1))
	if d >= float64(maxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		return maxDelay
	}
	return time.Duration(d)
}

// Do calls fn until it returns nil, returns a [Permanent] error, the
// attempt budget runs out or ctx is cancelled.  The attempt number
// passed to fn is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		wait := b.Delay(attempt)
		if b.Jitter {
			wait = jitter(wait)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter moves d by a random amount within ±25%, never below 1ms.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 4
	out := float64(d) + (rand.Float64()*2-1)*spread
	return time.Duration(math.Max(out, float64(time.Millisecond)))
}
