// Package telemetry serves the HTTP side channel of the pixel server:
// Prometheus metrics, a JSON stats snapshot, a PNG rendering of the
// canvas and a WebSocket feed of live pixel writes.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pxflut/internal/canvas"
	"pxflut/internal/feed"
	"pxflut/internal/metrics"
	"pxflut/util"
)

const shutdownGrace = 5 * time.Second

// Server is the telemetry HTTP endpoint.  It implements core.Mode.
type Server struct {
	Addr     string
	Canvas   canvas.Canvas
	Metrics  *metrics.Collector
	Feed     *feed.Hub
	Logger   *util.Logger
	Gatherer prometheus.Gatherer

	// Ready, if set, receives the bound address once listening.
	Ready func(net.Addr)
}

// New returns a Server exposing m through a fresh registry that also
// carries the Go runtime and process collectors.
func New(addr string, cv canvas.Canvas, m *metrics.Collector, hub *feed.Hub, logger *util.Logger) (*Server, error) {
	reg, err := metrics.NewRegistry(m)
	if err != nil {
		return nil, fmt.Errorf("metrics registry: %w", err)
	}
	return &Server{
		Addr:     addr,
		Canvas:   cv,
		Metrics:  m,
		Feed:     hub,
		Logger:   logger,
		Gatherer: reg,
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/canvas.png", s.handleCanvas)
	mux.HandleFunc("/feed", s.handleFeed)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n")) //nolint:errcheck
	})
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("telemetry listen on %s: %w", s.Addr, err)
	}
	s.Logger.Info("telemetry on http://%s", ln.Addr())
	if s.Ready != nil {
		s.Ready(ln.Addr())
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("telemetry: %w", err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		srv.Close()
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// Stats is the /stats document.
type Stats struct {
	metrics.Snapshot
	Width   int `json:"width"`
	Height  int `json:"height"`
	Viewers int `json:"viewers"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := Stats{Snapshot: s.Metrics.Snapshot()}
	st.Width, st.Height = s.Canvas.Size()
	if s.Feed != nil {
		st.Viewers = s.Feed.Subscribers()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		s.Logger.Debug("stats: %v", err)
	}
}
