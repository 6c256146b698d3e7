package config

// loader.go - configuration loading from environment variables and
// TOML files.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile, --config)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the PXFLUT_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("90s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v, ok := os.LookupEnv("PXFLUT_LISTEN"); ok {
		cfg.Listen = v
	}
	if v := envInt("PXFLUT_WIDTH"); v > 0 {
		cfg.Width = v
	}
	if v := envInt("PXFLUT_HEIGHT"); v > 0 {
		cfg.Height = v
	}
	if v := os.Getenv("PXFLUT_BACKGROUND"); v != "" {
		cfg.Background = v
	}
	if v := envInt("PXFLUT_MAX_LINE"); v > 0 {
		cfg.MaxLineLength = v
	}
	if v := envDuration("PXFLUT_IDLE_TIMEOUT"); v > 0 {
		cfg.IdleTimeout = v
	}
	if envBool("PXFLUT_REPLY_ERRORS") {
		cfg.ReplyErrors = true
	}
	if v := envInt("PXFLUT_MAX_CANVAS_FAILURES"); v > 0 {
		cfg.MaxCanvasFailures = v
	}

	// Telemetry
	if v := os.Getenv("PXFLUT_HTTP"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := envInt("PXFLUT_FEED_BUFFER"); v > 0 {
		cfg.FeedBuffer = v
	}

	// Reverse tunnel
	if v := os.Getenv("PXFLUT_REVERSE_TUNNEL"); v != "" {
		cfg.ReverseTunnelSpec = v
	}
	if v := envInt("PXFLUT_REMOTE_PORT"); v > 0 {
		cfg.RemotePort = v
	}
	if v := os.Getenv("PXFLUT_REMOTE_BIND_ADDRESS"); v != "" {
		cfg.RemoteBindAddress = v
	}
	if v := os.Getenv("PXFLUT_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("PXFLUT_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("PXFLUT_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("PXFLUT_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("PXFLUT_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envInt("PXFLUT_KEEP_ALIVE"); v > 0 {
		cfg.KeepAliveInterval = v
	}
	if v := envInt("PXFLUT_MAX_RECONNECTS"); v > 0 {
		cfg.MaxReconnectAttempts = v
	}

	// Output
	if v := envInt("PXFLUT_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── TOML file ────────────────────────────────────────────────────────

type fileConfig struct {
	Listen            string `toml:"listen"`
	Width             int    `toml:"width"`
	Height            int    `toml:"height"`
	Background        string `toml:"background"`
	MaxLineLength     int    `toml:"max_line_length"`
	IdleTimeout       string `toml:"idle_timeout"`
	ReplyErrors       bool   `toml:"reply_errors"`
	MaxCanvasFailures int    `toml:"max_canvas_failures"`
	HTTP              string `toml:"http"`
	FeedBuffer        int    `toml:"feed_buffer"`
	Verbose           int    `toml:"verbose"`

	Tunnel struct {
		Gateway       string `toml:"gateway"`
		RemotePort    int    `toml:"remote_port"`
		RemoteBind    string `toml:"remote_bind_address"`
		KeyPath       string `toml:"key"`
		Password      bool   `toml:"password"`
		Agent         bool   `toml:"agent"`
		StrictHostKey bool   `toml:"strict_host_key"`
		KnownHosts    string `toml:"known_hosts"`
		KeepAlive     string `toml:"keep_alive"`
		MaxReconnects int    `toml:"max_reconnects"`
	} `toml:"tunnel"`
}

// LoadFile overlays the keys present in the TOML file at path onto
// cfg.  Keys absent from the file leave cfg untouched.
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("width") {
		cfg.Width = raw.Width
	}
	if meta.IsDefined("height") {
		cfg.Height = raw.Height
	}
	if meta.IsDefined("background") {
		cfg.Background = strings.TrimPrefix(strings.TrimSpace(raw.Background), "#")
	}
	if meta.IsDefined("max_line_length") {
		cfg.MaxLineLength = raw.MaxLineLength
	}
	if meta.IsDefined("idle_timeout") {
		d, err := parseDuration(raw.IdleTimeout)
		if err != nil {
			return fmt.Errorf("parse idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if meta.IsDefined("reply_errors") {
		cfg.ReplyErrors = raw.ReplyErrors
	}
	if meta.IsDefined("max_canvas_failures") {
		cfg.MaxCanvasFailures = raw.MaxCanvasFailures
	}
	if meta.IsDefined("http") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTP)
	}
	if meta.IsDefined("feed_buffer") {
		cfg.FeedBuffer = raw.FeedBuffer
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	if meta.IsDefined("tunnel", "gateway") {
		cfg.ReverseTunnelSpec = strings.TrimSpace(raw.Tunnel.Gateway)
	}
	if meta.IsDefined("tunnel", "remote_port") {
		cfg.RemotePort = raw.Tunnel.RemotePort
	}
	if meta.IsDefined("tunnel", "remote_bind_address") {
		cfg.RemoteBindAddress = raw.Tunnel.RemoteBind
	}
	if meta.IsDefined("tunnel", "key") {
		cfg.SSHKeyPath = raw.Tunnel.KeyPath
	}
	if meta.IsDefined("tunnel", "password") {
		cfg.SSHPassword = raw.Tunnel.Password
	}
	if meta.IsDefined("tunnel", "agent") {
		cfg.UseSSHAgent = raw.Tunnel.Agent
	}
	if meta.IsDefined("tunnel", "strict_host_key") {
		cfg.StrictHostKey = raw.Tunnel.StrictHostKey
	}
	if meta.IsDefined("tunnel", "known_hosts") {
		cfg.KnownHostsPath = raw.Tunnel.KnownHosts
	}
	if meta.IsDefined("tunnel", "keep_alive") {
		d, err := parseDuration(raw.Tunnel.KeepAlive)
		if err != nil {
			return fmt.Errorf("parse tunnel.keep_alive: %w", err)
		}
		cfg.KeepAliveInterval = int(d / time.Second)
	}
	if meta.IsDefined("tunnel", "max_reconnects") {
		cfg.MaxReconnectAttempts = raw.Tunnel.MaxReconnects
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	d, err := parseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}
	return d
}

// parseDuration accepts "1m30s" or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
