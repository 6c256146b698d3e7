// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a pxflut server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"pxflut/internal/protocol"
)

// Slot counts for the per-kind arrays; index 0 collects unknown kinds.
const (
	commandSlots = int(protocol.KindSetPixel) + 1
	parseSlots   = int(protocol.ErrLineTooLong) + 1
)

// Collector tracks runtime metrics for a pxflut server.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	commands          [commandSlots]atomic.Int64
	parseErrors       [parseSlots]atomic.Int64
	pixelsWritten     atomic.Int64
	outOfBounds       atomic.Int64
	canvasErrors      atomic.Int64
	tunnelReconnects  atomic.Int64
	errorsTotal       atomic.Int64

	sessionSeconds sessionHistogram

	mu              sync.RWMutex
	startTime       time.Time
	lastHealthCheck time.Time
	lastError       time.Time
	lastErrorMsg    string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{
		startTime:      time.Now(),
		sessionSeconds: newSessionHistogram(),
	}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter and
// records how long the session lasted.
func (c *Collector) ConnectionClosed(lifetime time.Duration) {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
	c.sessionSeconds.observe(lifetime)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from clients.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes of replies written to clients.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Protocol metrics ─────────────────────────────────────────────────

// CommandProcessed counts one executed command of the given kind.
func (c *Collector) CommandProcessed(k protocol.Kind) {
	if c == nil {
		return
	}
	c.commands[slot(int(k), commandSlots)].Add(1)
}

// Commands returns how many commands of kind k were executed.
func (c *Collector) Commands(k protocol.Kind) int64 {
	if c == nil {
		return 0
	}
	return c.commands[slot(int(k), commandSlots)].Load()
}

// ParseError counts one rejected line.
func (c *Collector) ParseError(k protocol.ErrorKind) {
	if c == nil {
		return
	}
	c.parseErrors[slot(int(k), parseSlots)].Add(1)
}

// ParseErrors returns the number of rejected lines of kind k.
func (c *Collector) ParseErrors(k protocol.ErrorKind) int64 {
	if c == nil {
		return 0
	}
	return c.parseErrors[slot(int(k), parseSlots)].Load()
}

// PixelWritten counts one write applied to the canvas.
func (c *Collector) PixelWritten() {
	if c == nil {
		return
	}
	c.pixelsWritten.Add(1)
}

// PixelsWritten returns the number of writes applied to the canvas.
func (c *Collector) PixelsWritten() int64 {
	if c == nil {
		return 0
	}
	return c.pixelsWritten.Load()
}

// OutOfBounds counts one pixel command outside the canvas.
func (c *Collector) OutOfBounds() {
	if c == nil {
		return
	}
	c.outOfBounds.Add(1)
}

// CanvasError counts one failed canvas call.
func (c *Collector) CanvasError() {
	if c == nil {
		return
	}
	c.canvasErrors.Add(1)
}

func slot(i, n int) int {
	if i <= 0 || i >= n {
		return 0
	}
	return i
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelReconnect records a tunnel reconnection event.
func (c *Collector) TunnelReconnect() {
	if c == nil {
		return
	}
	c.tunnelReconnects.Add(1)
}

// TunnelReconnects returns the total tunnel reconnection count.
func (c *Collector) TunnelReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.tunnelReconnects.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Health ───────────────────────────────────────────────────────────

// RecordHealthCheck updates the last tunnel keepalive timestamp.
func (c *Collector) RecordHealthCheck() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastHealthCheck = time.Now()
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string           `json:"uptime"`
	ConnectionsActive int64            `json:"connections_active"`
	ConnectionsTotal  int64            `json:"connections_total"`
	BytesIn           int64            `json:"bytes_in"`
	BytesOut          int64            `json:"bytes_out"`
	Commands          map[string]int64 `json:"commands"`
	ParseErrors       map[string]int64 `json:"parse_errors,omitempty"`
	PixelsWritten     int64            `json:"pixels_written"`
	OutOfBounds       int64            `json:"out_of_bounds"`
	CanvasErrors      int64            `json:"canvas_errors"`
	TunnelReconnects  int64            `json:"tunnel_reconnects"`
	ErrorsTotal       int64            `json:"errors_total"`
	LastHealthCheck   string           `json:"last_health_check,omitempty"`
	LastError         string           `json:"last_error,omitempty"`
	LastErrorMessage  string           `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		Commands:          make(map[string]int64, commandSlots-1),
		PixelsWritten:     c.pixelsWritten.Load(),
		OutOfBounds:       c.outOfBounds.Load(),
		CanvasErrors:      c.canvasErrors.Load(),
		TunnelReconnects:  c.tunnelReconnects.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	for k := 1; k < commandSlots; k++ {
		s.Commands[protocol.Kind(k).String()] = c.commands[k].Load()
	}
	for k := 1; k < parseSlots; k++ {
		if n := c.parseErrors[k].Load(); n > 0 {
			if s.ParseErrors == nil {
				s.ParseErrors = make(map[string]int64)
			}
			s.ParseErrors[protocol.ErrorKind(k).String()] = n
		}
	}
	if !c.lastHealthCheck.IsZero() {
		s.LastHealthCheck = c.lastHealthCheck.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
