package core

import (
	"context"
	"fmt"
	"time"

	"pxflut/config"
	"pxflut/internal/canvas"
	"pxflut/internal/capability"
	"pxflut/internal/feed"
	"pxflut/internal/metrics"
	"pxflut/internal/pixel"
	"pxflut/internal/retry"
	"pxflut/internal/session"
	"pxflut/internal/telemetry"
	"pxflut/internal/transport"
	"pxflut/tunnel"
	"pxflut/util"
)

// Server is a fully assembled pxflut instance: the shared canvas, the
// pixel listener and, when configured, the telemetry endpoint.
type Server struct {
	Grid      *canvas.Grid
	Canvas    canvas.Canvas // Grid wrapped to report writes
	Metrics   *metrics.Collector
	Feed      *feed.Hub
	Pixels    *ListenMode
	Telemetry *telemetry.Server // nil when disabled
}

// Run serves until ctx is cancelled or a mode fails.
func (s *Server) Run(ctx context.Context) error {
	g := Group{s.Pixels}
	if s.Telemetry != nil {
		g = append(g, s.Telemetry)
	}
	return g.Run(ctx)
}

// Build assembles a Server from a validated configuration.  This is
// the single place where configuration turns into running parts.
func Build(cfg *config.Config, logger *util.Logger) (*Server, error) {
	bg, err := cfg.BackgroundColor()
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}

	s := &Server{
		Grid:    canvas.NewGrid(cfg.Width, cfg.Height, bg),
		Metrics: metrics.New(),
	}
	if cfg.HTTPAddr != "" {
		s.Feed = feed.New(cfg.FeedBuffer)
	}
	s.Canvas = canvas.Observe(s.Grid, s.observer())

	sources, err := buildSources(cfg, logger, s.Metrics)
	if err != nil {
		return nil, err
	}
	s.Pixels = &ListenMode{
		Sources: sources,
		Capability: &capability.Pixelflut{
			IdleTimeout: cfg.IdleTimeout,
			ReplyErrors: cfg.ReplyErrors,
		},
		Canvas: s.Canvas,
		Session: session.Options{
			MaxLineLength:     cfg.MaxLineLength,
			MaxCanvasFailures: cfg.MaxCanvasFailures,
			Metrics:           s.Metrics,
		},
		Logger:  logger,
		Metrics: s.Metrics,
	}

	if cfg.HTTPAddr != "" {
		s.Telemetry, err = telemetry.New(cfg.HTTPAddr, s.Canvas, s.Metrics, s.Feed, logger)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// observer counts applied writes and publishes them to the feed.
func (s *Server) observer() canvas.WriteFunc {
	if s.Feed == nil {
		return func(int, int, pixel.Color) { s.Metrics.PixelWritten() }
	}
	return func(x, y int, c pixel.Color) {
		s.Metrics.PixelWritten()
		s.Feed.Observer(x, y, c)
	}
}

func buildSources(cfg *config.Config, logger *util.Logger, m *metrics.Collector) ([]transport.Source, error) {
	var sources []transport.Source
	if cfg.Listen != "" {
		sources = append(sources, &transport.TCPSource{
			Address:   cfg.Listen,
			KeepAlive: 30 * time.Second,
		})
	}
	if cfg.ReverseTunnelEnabled {
		sources = append(sources, &transport.SSHSource{
			Config:  buildReverseConfig(cfg),
			Logger:  logger.With("tunnel", cfg.ReverseTunnelHost),
			Metrics: m,
		})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no listeners configured")
	}
	return sources, nil
}

func buildReverseConfig(cfg *config.Config) *tunnel.ReverseConfig {
	var keepAlive time.Duration
	if cfg.KeepAliveInterval > 0 {
		keepAlive = time.Duration(cfg.KeepAliveInterval) * time.Second
	}
	return &tunnel.ReverseConfig{
		SSH: &tunnel.SSHConfig{
			User:                     cfg.ReverseTunnelUser,
			Host:                     cfg.ReverseTunnelHost,
			Port:                     cfg.ReverseTunnelPort,
			KeyPath:                  cfg.SSHKeyPath,
			PromptPass:               cfg.SSHPassword,
			UseAgent:                 cfg.UseSSHAgent,
			StrictHostKey:            cfg.StrictHostKey,
			KnownHosts:               cfg.KnownHostsPath,
			ConnTimeout:              config.DefaultConnTimeout,
			AllowKeyboardInteractive: true,
		},
		RemoteBindAddress: cfg.RemoteBindAddress,
		RemotePort:        cfg.RemotePort,
		KeepAliveInterval: keepAlive,
		Reconnect: &retry.Backoff{
			InitialDelay: time.Second,
			MaxDelay:     config.DefaultMaxReconnectBackoff,
			Multiplier:   2,
			MaxAttempts:  cfg.MaxReconnectAttempts,
			Jitter:       true,
		},
	}
}
