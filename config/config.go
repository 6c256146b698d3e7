// Package config defines the runtime configuration for pxflut and
// provides helpers for parsing tunnel specifications and validating
// the result.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	perrors "pxflut/internal/errors"
	"pxflut/internal/pixel"
	"pxflut/internal/protocol"
	"pxflut/util"
)

// Config holds every tuneable of a pxflut server.
type Config struct {
	// ── Canvas ───────────────────────────────────────────────────────
	Width      int
	Height     int
	Background string // rrggbb

	// ── Pixel protocol ───────────────────────────────────────────────
	Listen            string // host:port; "" disables the plain TCP listener
	MaxLineLength     int
	IdleTimeout       time.Duration // 0 disables
	ReplyErrors       bool
	MaxCanvasFailures int

	// ── Telemetry ────────────────────────────────────────────────────
	HTTPAddr   string // "" disables
	FeedBuffer int

	// ── SSH reverse tunnel ───────────────────────────────────────────
	ReverseTunnelSpec    string // raw user@host[:port]
	ReverseTunnelEnabled bool
	ReverseTunnelUser    string
	ReverseTunnelHost    string
	ReverseTunnelPort    int
	RemotePort           int
	RemoteBindAddress    string
	SSHKeyPath           string
	SSHPassword          bool // true → prompt interactively
	UseSSHAgent          bool
	StrictHostKey        bool
	KnownHostsPath       string
	KeepAliveInterval    int // seconds; 0 disables
	MaxReconnectAttempts int // 0 retries forever

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// Default returns a Config populated with the defaults from defaults.go.
func Default() *Config {
	return &Config{
		Width:             DefaultWidth,
		Height:            DefaultHeight,
		Background:        DefaultBackground,
		Listen:            DefaultListen,
		MaxLineLength:     DefaultMaxLineLength,
		MaxCanvasFailures: DefaultMaxCanvasFailures,
		FeedBuffer:        DefaultFeedBuffer,
		KeepAliveInterval: DefaultKeepAliveInterval,
		Verbose:           1,
	}
}

// BackgroundColor parses Background.  An empty value means black.
func (c *Config) BackgroundColor() (pixel.Color, error) {
	if c.Background == "" {
		return pixel.Black, nil
	}
	return pixel.ParseColor(c.Background)
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses ReverseTunnelSpec into the ReverseTunnel*
// fields.  An empty spec disables the tunnel.
func (c *Config) ApplyTunnelSpec() error {
	if c.ReverseTunnelSpec == "" {
		c.ReverseTunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.ReverseTunnelSpec)
	if err != nil {
		return &perrors.ConfigError{
			Field:   "reverse-tunnel",
			Value:   c.ReverseTunnelSpec,
			Message: err.Error(),
			Hint:    "use -R user@gateway.example.com[:22]",
		}
	}
	c.ReverseTunnelEnabled = true
	c.ReverseTunnelUser = user
	c.ReverseTunnelHost = host
	c.ReverseTunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// maxSide is the largest canvas side whose coordinates still fit the
// protocol's coordinate range.
const maxSide = protocol.MaxCoordinate + 1

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.Width < 1 || c.Width > maxSide {
		return &perrors.ConfigError{Field: "width", Value: c.Width,
			Message: fmt.Sprintf("must be between 1 and %d", maxSide)}
	}
	if c.Height < 1 || c.Height > maxSide {
		return &perrors.ConfigError{Field: "height", Value: c.Height,
			Message: fmt.Sprintf("must be between 1 and %d", maxSide)}
	}
	if _, err := c.BackgroundColor(); err != nil {
		return &perrors.ConfigError{Field: "background", Value: c.Background,
			Message: "not a hex color", Hint: "use six hex digits, e.g. 000000"}
	}

	if c.Listen == "" && !c.ReverseTunnelEnabled {
		return &perrors.ConfigError{Field: "listen",
			Message: "no way for clients to connect",
			Hint:    "set --listen :1337 or publish through --reverse-tunnel"}
	}
	if c.Listen != "" {
		if _, _, err := util.SplitAddr(c.Listen); err != nil {
			return &perrors.ConfigError{Field: "listen", Value: c.Listen,
				Message: err.Error(), Hint: "expected host:port, e.g. :1337"}
		}
	}
	if c.MaxLineLength < 16 {
		return &perrors.ConfigError{Field: "max-line", Value: c.MaxLineLength,
			Message: "must be at least 16 bytes"}
	}
	if c.IdleTimeout < 0 {
		return &perrors.ConfigError{Field: "idle-timeout", Value: c.IdleTimeout,
			Message: "must not be negative"}
	}
	if c.MaxCanvasFailures < 0 {
		return &perrors.ConfigError{Field: "max-canvas-failures", Value: c.MaxCanvasFailures,
			Message: "must not be negative"}
	}

	if c.HTTPAddr != "" {
		if _, _, err := util.SplitAddr(c.HTTPAddr); err != nil {
			return &perrors.ConfigError{Field: "http", Value: c.HTTPAddr,
				Message: err.Error(), Hint: "expected host:port, e.g. 127.0.0.1:8080"}
		}
	}

	if c.ReverseTunnelEnabled {
		if c.ReverseTunnelHost == "" {
			return &perrors.ConfigError{Field: "reverse-tunnel",
				Message: "gateway host is required"}
		}
		if c.RemotePort < 0 || c.RemotePort > 65535 {
			return &perrors.ConfigError{Field: "remote-port", Value: c.RemotePort,
				Message: "must be between 0 and 65535",
				Hint:    "0 lets the gateway pick a port"}
		}
		if c.KeepAliveInterval < 0 {
			return &perrors.ConfigError{Field: "keep-alive", Value: c.KeepAliveInterval,
				Message: "must not be negative"}
		}
		if c.MaxReconnectAttempts < 0 {
			return &perrors.ConfigError{Field: "max-reconnects", Value: c.MaxReconnectAttempts,
				Message: "must not be negative"}
		}
	} else if c.RemotePort != 0 {
		return &perrors.ConfigError{Field: "remote-port", Value: c.RemotePort,
			Message: "has no effect without a reverse tunnel",
			Hint:    "add -R user@gateway"}
	}
	return nil
}
