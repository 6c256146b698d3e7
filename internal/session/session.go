// Package session holds the per-connection state of a pixel client:
// the connection itself, its line framer, the shared canvas handle and
// the circuit breaker guarding that canvas.
//
// A Session lives exactly as long as its connection.  Capabilities
// operate on sessions rather than raw connections, which keeps them
// testable over net.Pipe.
package session

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"pxflut/internal/canvas"
	"pxflut/internal/metrics"
	"pxflut/internal/pixel"
	"pxflut/internal/retry"
	"pxflut/util"
)

// DefaultMaxLineLength bounds a single protocol line, newline excluded.
const DefaultMaxLineLength = 1024

// Options tune a new Session.  Zero values pick defaults.
type Options struct {
	MaxLineLength     int
	MaxCanvasFailures int
	Metrics           *metrics.Collector
}

// Session encapsulates the runtime context for a single connection.
type Session struct {
	ID      string
	Conn    net.Conn
	Canvas  canvas.Canvas
	Logger  *util.Logger
	Metrics *metrics.Collector
	Breaker *retry.CircuitBreaker
	Framer  *Framer
	Started time.Time
}

// New creates a Session for conn drawing on cv.  The logger is derived
// from logger with the session id and remote address attached.
func New(conn net.Conn, cv canvas.Canvas, logger *util.Logger, opts Options) *Session {
	maxLine := opts.MaxLineLength
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	id := uuid.NewString()
	remote := RemoteAddr(conn)

	bc := retry.DefaultCircuitBreakerConfig()
	if opts.MaxCanvasFailures > 0 {
		bc.MaxFailures = opts.MaxCanvasFailures
	}
	bc.Ignore = func(err error) bool { return errors.Is(err, canvas.ErrOutOfBounds) }

	return &Session{
		ID:      id,
		Conn:    conn,
		Canvas:  cv,
		Logger:  logger.With("session", id[:8]).With("remote", remote),
		Metrics: opts.Metrics,
		Breaker: retry.NewCircuitBreaker(bc),
		Framer:  NewFramer(maxLine),
		Started: time.Now(),
	}
}

// RemoteAddr returns the peer address of conn, or "-" when unknown.
func RemoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return "-"
	}
	return conn.RemoteAddr().String()
}

// Size returns the canvas dimensions.
func (s *Session) Size() (int, int) { return s.Canvas.Size() }

// GetPixel reads one pixel through the session's breaker.
func (s *Session) GetPixel(x, y int) (pixel.Color, error) {
	return retry.Call(s.Breaker, func() (pixel.Color, error) {
		return s.Canvas.Get(x, y)
	})
}

// SetPixel writes one pixel through the session's breaker, blending
// when c is translucent.
func (s *Session) SetPixel(x, y int, c pixel.Color) error {
	return s.Breaker.Execute(func() error {
		_, err := canvas.Apply(s.Canvas, x, y, c)
		return err
	})
}

// Lifetime returns how long the session has been open.
func (s *Session) Lifetime() time.Duration { return time.Since(s.Started) }
