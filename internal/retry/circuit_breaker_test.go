package retry

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	perrors "pxflut/internal/errors"
)

var errCanvas = errors.New("canvas backend unavailable")

// scripted drives a breaker on a fake clock.  Steps:
//
//	ok      fn succeeds
//	fail    fn returns errCanvas
//	reject  Execute must refuse without calling fn
//	+<dur>  advance the clock
//	reset   call Reset
func scripted(t *testing.T, cb *CircuitBreaker, steps string) {
	t.Helper()
	now := time.Unix(0, 0)
	cb.now = func() time.Time { return now }

	for i, step := range strings.Fields(steps) {
		switch {
		case step == "ok" || step == "fail":
			var want error
			if step == "fail" {
				want = errCanvas
			}
			if err := cb.Execute(func() error { return want }); err != want {
				t.Fatalf("step %d %s: err = %v", i, step, err)
			}
		case step == "reject":
			called := false
			err := cb.Execute(func() error { called = true; return nil })
			if !errors.Is(err, perrors.ErrCircuitOpen) || called {
				t.Fatalf("step %d: err = %v, called = %v; want rejection", i, err, called)
			}
		case step == "reset":
			cb.Reset()
		case strings.HasPrefix(step, "+"):
			d, err := time.ParseDuration(step[1:])
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			now = now.Add(d)
		default:
			t.Fatalf("step %d: unknown %q", i, step)
		}
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		halfOpen  int
		steps     string
		wantState State
		wantFails int
	}{
		{"healthy", 1, "ok ok ok", StateClosed, 0},
		{"below threshold", 1, "fail fail", StateClosed, 2},
		{"opens at threshold", 1, "fail fail fail", StateOpen, 3},
		{"success clears run", 1, "fail fail ok fail", StateClosed, 1},
		{"rejects while open", 1, "fail fail fail reject +5s reject", StateOpen, 3},
		{"probe closes", 1, "fail fail fail +11s ok", StateClosed, 0},
		{"half-open needs quorum", 2, "fail fail fail +11s ok", StateHalfOpen, 3},
		{"half-open quorum closes", 2, "fail fail fail +11s ok ok", StateClosed, 0},
		{"probe failure reopens", 2, "fail fail fail +11s ok fail reject", StateOpen, 4},
		{"reopen restarts timer", 1, "fail fail fail +11s fail +5s reject +6s ok", StateClosed, 0},
		{"reset", 1, "fail fail fail reset ok", StateClosed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(&CircuitBreakerConfig{
				MaxFailures:  3,
				ResetTimeout: 10 * time.Second,
				HalfOpenMax:  tt.halfOpen,
			})
			scripted(t, cb, tt.steps)
			if got := cb.CurrentState(); got != tt.wantState {
				t.Errorf("state = %s, want %s", got, tt.wantState)
			}
			if got := cb.Failures(); got != tt.wantFails {
				t.Errorf("failures = %d, want %d", got, tt.wantFails)
			}
		})
	}
}

func TestCircuitBreaker_StateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s>%s", from, to))
		},
	})
	scripted(t, cb, "fail reject +2s fail +2s ok reset")

	want := "closed>open open>half-open half-open>open open>half-open half-open>closed"
	if got := strings.Join(transitions, " "); got != want {
		t.Errorf("transitions = %q\nwant          %q", got, want)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCircuitBreaker_NilConfig(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	if cb.cfg.MaxFailures != defaultMaxFailures {
		t.Errorf("expected default MaxFailures=%d, got %d", defaultMaxFailures, cb.cfg.MaxFailures)
	}
	if cb.cfg.ResetTimeout != defaultResetTimeout {
		t.Errorf("expected default ResetTimeout=%v, got %v", defaultResetTimeout, cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMax != defaultHalfOpenMax {
		t.Errorf("expected default HalfOpenMax=%d, got %d", defaultHalfOpenMax, cb.cfg.HalfOpenMax)
	}
}

// TestCircuitBreaker_OpenError checks the rejection carries the
// failure count and the remaining wait, measured on a fake clock.
func TestCircuitBreaker_OpenError(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	cb.Execute(func() error { return fmt.Errorf("fail") }) //nolint:errcheck
	cb.Execute(func() error { return fmt.Errorf("fail") }) //nolint:errcheck

	now = now.Add(4 * time.Second)
	err := cb.Execute(func() error { return nil })
	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want *OpenError", err)
	}
	if oe.Failures != 2 || oe.RetryIn != 6*time.Second {
		t.Errorf("OpenError = %+v", oe)
	}

	now = now.Add(7 * time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("probe after timeout: %v", err)
	}
	if cb.CurrentState() != StateHalfOpen {
		t.Errorf("state = %s, want half-open", cb.CurrentState())
	}
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	errMiss := errors.New("miss")
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
		Ignore:       func(err error) bool { return errors.Is(err, errMiss) },
	})

	cb.Execute(func() error { return fmt.Errorf("fail") }) //nolint:errcheck
	for i := 0; i < 10; i++ {
		if err := cb.Execute(func() error { return errMiss }); !errors.Is(err, errMiss) {
			t.Fatalf("ignored error not passed through: %v", err)
		}
	}

	if cb.Failures() != 1 {
		t.Errorf("failures = %d, want 1 (ignored errors neither count nor reset)", cb.Failures())
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.CurrentState())
	}
}

func TestCall(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	v, err := Call(cb, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("Call = %d, %v; want 42, nil", v, err)
	}

	Call(cb, func() (int, error) { return 0, fmt.Errorf("fail") }) //nolint:errcheck

	v, err = Call(cb, func() (int, error) { return 7, nil })
	if !errors.Is(err, perrors.ErrCircuitOpen) || v != 0 {
		t.Errorf("Call on open circuit = %d, %v", v, err)
	}
}
