package retry

import (
	"fmt"
	"sync"
	"time"

	perrors "pxflut/internal/errors"
)

// State is the position of a [CircuitBreaker].
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected without running
	StateHalfOpen              // probe calls decide whether to close again
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a [CircuitBreaker].  Zero fields take
// the defaults of [DefaultCircuitBreakerConfig].
type CircuitBreakerConfig struct {
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// ResetTimeout is how long an open breaker rejects calls before
	// letting probes through.
	ResetTimeout time.Duration
	// HalfOpenMax consecutive probe successes close it again.
	HalfOpenMax int
	// Ignore reports errors that are passed back to the caller but
	// neither count as failures nor reset the count, such as
	// canvas.ErrOutOfBounds.
	Ignore func(error) bool
	// OnStateChange runs under the breaker's lock on every transition.
	OnStateChange func(from, to State)
}

const (
	defaultMaxFailures  = 8
	defaultResetTimeout = 5 * time.Second
	defaultHalfOpenMax  = 2
)

// DefaultCircuitBreakerConfig returns the settings used for a
// session's canvas calls.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  defaultMaxFailures,
		ResetTimeout: defaultResetTimeout,
		HalfOpenMax:  defaultHalfOpenMax,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = defaultMaxFailures
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = defaultResetTimeout
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = defaultHalfOpenMax
	}
	return c
}

// OpenError is returned instead of running a call while the breaker is
// open.  It matches [perrors.ErrCircuitOpen] under errors.Is.
type OpenError struct {
	Failures int
	RetryIn  time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%v: %d consecutive failures, retry in %v",
		perrors.ErrCircuitOpen, e.Failures, e.RetryIn.Truncate(time.Millisecond))
}

func (e *OpenError) Unwrap() error { return perrors.ErrCircuitOpen }

// CircuitBreaker stops calling a backend that keeps failing.  Every
// session owns one around its canvas calls, so a broken canvas ends
// sessions instead of having them spin on errors.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker returns a closed breaker.  A nil cfg uses the
// defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Execute runs fn unless the breaker is open, in which case it returns
// an [*OpenError] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// Call is [CircuitBreaker.Execute] for functions that return a value.
func Call[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := cb.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// CurrentState returns the breaker's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current run of consecutive failures.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.successes = 0, 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	elapsed := cb.now().Sub(cb.openedAt)
	if elapsed > cb.cfg.ResetTimeout {
		cb.successes = 0
		cb.setState(StateHalfOpen)
		return nil
	}
	return &OpenError{Failures: cb.failures, RetryIn: cb.cfg.ResetTimeout - elapsed}
}

func (cb *CircuitBreaker) record(err error) {
	if err != nil && cb.cfg.Ignore != nil && cb.cfg.Ignore(err) {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.now()
			cb.setState(StateOpen)
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		if cb.successes++; cb.successes >= cb.cfg.HalfOpenMax {
			cb.failures = 0
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
