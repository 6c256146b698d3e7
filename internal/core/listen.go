package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"pxflut/internal/canvas"
	"pxflut/internal/capability"
	perrors "pxflut/internal/errors"
	"pxflut/internal/metrics"
	"pxflut/internal/session"
	"pxflut/internal/transport"
	"pxflut/util"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ListenMode accepts pixel clients on every source and runs the
// capability on each connection in its own goroutine.  A slow or
// failing session never holds up accept.
type ListenMode struct {
	Sources    []transport.Source
	Capability capability.Capability
	Canvas     canvas.Canvas
	Session    session.Options
	Logger     *util.Logger
	Metrics    *metrics.Collector

	// Ready, if set, is called with the bound addresses once every
	// source is listening.
	Ready func([]net.Addr)
}

// Run opens all sources and serves until ctx is cancelled.  On
// cancellation it closes the listeners and every live connection,
// then waits for the sessions to finish.  It returns an error if a
// source cannot be opened or if every listener fails.
func (m *ListenMode) Run(ctx context.Context) error {
	if len(m.Sources) == 0 {
		return errors.New("no listeners configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listeners := make([]net.Listener, 0, len(m.Sources))
	closeAll := func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}
	for _, src := range m.Sources {
		ln, err := src.Listen(ctx)
		if err != nil {
			closeAll()
			return fmt.Errorf("%s: %w", src, err)
		}
		m.Logger.Info("accepting pixel clients on %s (%s)", ln.Addr(), src)
		listeners = append(listeners, ln)
	}
	stop := context.AfterFunc(ctx, closeAll)
	defer stop()

	if m.Ready != nil {
		addrs := make([]net.Addr, len(listeners))
		for i, ln := range listeners {
			addrs[i] = ln.Addr()
		}
		m.Ready(addrs)
	}

	var (
		sessions sync.WaitGroup
		loops    sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for _, ln := range listeners {
		loops.Add(1)
		go func(ln net.Listener) {
			defer loops.Done()
			if err := m.acceptLoop(ctx, ln, &sessions); err != nil {
				m.Logger.Error("listener %s stopped: %v", ln.Addr(), err)
				m.Metrics.RecordError(err.Error())
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}(ln)
	}
	loops.Wait()
	closeAll()

	// Every loop has returned; without cancellation that means every
	// listener failed.
	if ctx.Err() == nil {
		cancel()
		sessions.Wait()
		return fmt.Errorf("all listeners failed: %w", errors.Join(failures...))
	}
	sessions.Wait()
	m.Logger.Verbose("all sessions closed")
	m.Logger.Debug("final metrics: %s", m.Metrics.JSON())
	return nil
}

// acceptLoop accepts until ln is closed.  Temporary accept errors are
// retried with a growing delay.
func (m *ListenMode) acceptLoop(ctx context.Context, ln net.Listener, sessions *sync.WaitGroup) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !perrors.IsRetryable(err) {
				return perrors.Wrap("accept", ln.Addr().String(), err)
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			m.Logger.Warn("accept on %s: %v; retrying in %v", ln.Addr(), err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		sessions.Add(1)
		go func() {
			defer sessions.Done()
			m.serveConn(ctx, conn)
		}()
	}
}

// serveConn runs the capability on one connection and always closes it.
func (m *ListenMode) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	opts := m.Session
	if opts.Metrics == nil {
		opts.Metrics = m.Metrics
	}
	sess := session.New(conn, m.Canvas, m.Logger, opts)

	m.Metrics.ConnectionOpened()
	defer func() { m.Metrics.ConnectionClosed(sess.Lifetime()) }()
	sess.Logger.Verbose("connected")

	if err := m.Capability.Handle(ctx, sess); err != nil {
		sess.Logger.Warn("session ended: %v", err)
		m.Metrics.RecordError(err.Error())
		return
	}
	sess.Logger.Verbose("disconnected after %v", sess.Lifetime().Truncate(time.Millisecond))
}
