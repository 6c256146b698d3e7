package util

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
)

func newTestLogger(verbosity int) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(verbosity)
	l.SetOutput(&buf)
	l.SetTimestamps(false)
	return l, &buf
}

// emitAll writes one line per level, in a fixed order.
func emitAll(l *Logger) {
	l.Error("accept failed")
	l.Warn("session ended")
	l.Info("listening")
	l.Verbose("client connected")
	l.Debug("parse error")
}

func TestLogger_Verbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		want      []string
	}{
		{0, []string{"[ERR] accept failed"}},
		{1, []string{"[ERR] accept failed", "[WRN] session ended", "[INF] listening"}},
		{2, []string{"[ERR] accept failed", "[WRN] session ended", "[INF] listening", "[DBG] client connected"}},
		{3, []string{"[ERR] accept failed", "[WRN] session ended", "[INF] listening", "[DBG] client connected", "[DBG] parse error"}},
	}
	for _, tt := range tests {
		l, buf := newTestLogger(tt.verbosity)
		emitAll(l)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != len(tt.want) {
			t.Errorf("-v %d: got %d lines:\n%s", tt.verbosity, len(lines), buf.String())
			continue
		}
		for i, want := range tt.want {
			if got := strings.TrimSpace(lines[i]); got != want {
				t.Errorf("-v %d line %d = %q, want %q", tt.verbosity, i, got, want)
			}
		}
	}
}

func TestLogger_Timestamps(t *testing.T) {
	l, buf := newTestLogger(1)
	l.SetTimestamps(true)
	l.Info("listening")

	if !regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} \[INF\] listening`).MatchString(buf.String()) {
		t.Errorf("expected HH:MM:SS.mmm prefix, got %q", buf.String())
	}
}

// Debug verbosity turns timestamps on by default.
func TestLogger_DebugTimestamps(t *testing.T) {
	if !NewLogger(3).timestamps || NewLogger(2).timestamps {
		t.Error("timestamps should default on only at debug verbosity")
	}
}

func TestLogger_With(t *testing.T) {
	l, buf := newTestLogger(1)

	child := l.With("session", "abc").With("remote", "10.0.0.1:5000")
	child.Info("connected")
	l.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "session=abc") || !strings.Contains(lines[0], "remote=10.0.0.1:5000") {
		t.Errorf("child line missing fields: %q", lines[0])
	}
	if strings.Contains(lines[1], "session=") {
		t.Errorf("parent line should not carry child fields: %q", lines[1])
	}
}

// Session loggers are derived before tests or main redirect output.
func TestLogger_SetOutputReachesChildren(t *testing.T) {
	parent := NewLogger(1)
	parent.SetTimestamps(false)
	child := parent.With("session", "0f8c")

	var buf bytes.Buffer
	parent.SetOutput(&buf)
	child.Info("connected")
	if !strings.Contains(buf.String(), "session=0f8c") {
		t.Fatalf("child wrote elsewhere; got %q", buf.String())
	}

	var other bytes.Buffer
	child.SetOutput(&other)
	parent.Info("listening")
	if !strings.Contains(other.String(), "listening") {
		t.Errorf("parent not redirected by child; got %q", other.String())
	}
}

func TestBufPool_RoundTrip(t *testing.T) {
	buf := GetBuf()
	if buf == nil {
		t.Fatal("GetBuf returned nil")
	}
	if len(*buf) != DefaultBufSize {
		t.Errorf("buffer size = %d, want %d", len(*buf), DefaultBufSize)
	}

	// Write some data and return.
	(*buf)[0] = 0xFF
	PutBuf(buf)

	// Get another buffer; may or may not be the same one.
	buf2 := GetBuf()
	if buf2 == nil {
		t.Fatal("second GetBuf returned nil")
	}
	PutBuf(buf2)
}

func TestPutBuf_Nil(t *testing.T) {
	// Should not panic.
	PutBuf(nil)
}

func TestPutBuf_DropsResliced(t *testing.T) {
	short := make([]byte, 16)
	PutBuf(&short)
	for i := 0; i < 4; i++ {
		buf := GetBuf()
		if len(*buf) != DefaultBufSize {
			t.Fatalf("GetBuf returned %d bytes", len(*buf))
		}
		defer PutBuf(buf)
	}
}
