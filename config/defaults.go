package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultListen is the pixel protocol listen address.
	DefaultListen = ":1337"

	// DefaultWidth and DefaultHeight size the canvas.
	DefaultWidth  = 1024
	DefaultHeight = 768

	// DefaultBackground is the initial color of every pixel.
	DefaultBackground = "000000"

	// DefaultMaxLineLength bounds one protocol line.
	DefaultMaxLineLength = 1024

	// DefaultMaxCanvasFailures is how many consecutive canvas errors
	// end a session.
	DefaultMaxCanvasFailures = 8

	// DefaultFeedBuffer is the per-viewer queue of the live feed.
	DefaultFeedBuffer = 4096

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH keepalive interval in seconds.
	DefaultKeepAliveInterval = 30

	// DefaultConnTimeout is the SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second
)
