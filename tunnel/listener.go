package tunnel

// listener.go - the ReverseListener lifecycle: connect, accept,
// keepalive and reconnect.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	perrors "pxflut/internal/errors"
	"pxflut/internal/metrics"
	"pxflut/internal/retry"
	"pxflut/util"
)

// ReverseListener is a [net.Listener] whose connections arrive through
// a remote port forward on an SSH gateway.  It survives gateway
// outages: when the SSH connection drops it reconnects with backoff
// and requests the forward again, while Accept keeps blocking.
type ReverseListener struct {
	cfg     *ReverseConfig
	logger  *util.Logger
	metrics *metrics.Collector

	conns chan net.Conn
	ctx   context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup

	mu     sync.Mutex
	client *ssh.Client
	fwd    *forwardListener
	err    error // why the listener gave up, set before conns closes
}

// Listen connects to the gateway and requests the remote forward.  The
// first connection attempt is not retried, so configuration mistakes
// fail fast.  The listener stops when ctx is cancelled or Close is
// called.  The metrics collector is optional (nil-safe).
func Listen(ctx context.Context, cfg *ReverseConfig, logger *util.Logger, m *metrics.Collector) (*ReverseListener, error) {
	cfg.applyDefaults()
	l := &ReverseListener{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		conns:   make(chan net.Conn),
	}
	l.ctx, l.stop = context.WithCancel(ctx)

	if err := l.connect(l.ctx); err != nil {
		l.stop()
		return nil, err
	}

	// Unblock a pending forward Accept on shutdown.
	context.AfterFunc(l.ctx, l.teardown)

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Accept waits for the next client forwarded by the gateway.
func (l *ReverseListener) Accept() (net.Conn, error) {
	conn, ok := <-l.conns
	if !ok {
		l.mu.Lock()
		err := l.err
		l.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", perrors.ErrTunnelClosed, err)
		}
		return nil, net.ErrClosed
	}
	return conn, nil
}

// Close cancels the remote forward, closes the SSH connection and
// waits for the background goroutines.
func (l *ReverseListener) Close() error {
	l.stop()
	l.teardown()
	l.wg.Wait()
	return nil
}

// Addr reports the gateway and the bound remote address.
func (l *ReverseListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := forwardAddr{gateway: util.FormatAddr(l.cfg.SSH.Host, l.cfg.SSH.Port)}
	if l.fwd != nil {
		a.bind = util.FormatAddr(l.fwd.bindAddr, int(l.fwd.bindPort))
	} else {
		a.bind = util.FormatAddr(l.cfg.RemoteBindAddress, l.cfg.RemotePort)
	}
	return a
}

// forwardAddr is the net.Addr of a ReverseListener.
type forwardAddr struct {
	gateway string
	bind    string
}

func (a forwardAddr) Network() string { return "ssh" }
func (a forwardAddr) String() string  { return "ssh://" + a.gateway + "/" + a.bind }

// ── lifecycle ────────────────────────────────────────────────────────

// connect dials the gateway and requests the forward.
func (l *ReverseListener) connect(ctx context.Context) error {
	client, err := dialSSH(ctx, l.cfg.SSH, l.logger)
	if err != nil {
		return err
	}
	fwd, err := listenRemoteForward(client, l.cfg.RemoteBindAddress, l.cfg.RemotePort)
	if err != nil {
		client.Close()
		return perrors.WrapSSH("forward", l.cfg.SSH.Host, l.cfg.SSH.Port,
			fmt.Errorf("remote listen on %s: %w",
				util.FormatAddr(l.cfg.RemoteBindAddress, l.cfg.RemotePort), err))
	}

	l.mu.Lock()
	l.client, l.fwd = client, fwd
	l.mu.Unlock()

	// Close raced with the dial.
	if ctx.Err() != nil {
		l.teardown()
		return ctx.Err()
	}

	l.logger.Info("reverse tunnel established: %s", l.Addr())
	l.wg.Add(1)
	go l.gatewayMessages(client)
	return nil
}

// gatewayMessages logs what the gateway prints on a shell session.
// Public tunnel services announce the assigned address there.  It
// ends with client, or at shutdown, and is a no-op on gateways that
// refuse sessions.
func (l *ReverseListener) gatewayMessages(client *ssh.Client) {
	defer l.wg.Done()

	sess, err := client.NewSession()
	if err != nil {
		l.logger.Debug("reverse tunnel: no gateway session: %v", err)
		return
	}
	stop := context.AfterFunc(l.ctx, func() { sess.Close() })
	defer stop()
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return
	}
	if err := sess.Shell(); err != nil {
		l.logger.Debug("reverse tunnel: gateway shell: %v", err)
		return
	}

	gw := l.logger.With("gateway", l.cfg.SSH.Host)
	var streams sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		streams.Add(1)
		go func(r io.Reader) {
			defer streams.Done()
			sc := bufio.NewScanner(r)
			for sc.Scan() {
				if line := strings.TrimSpace(sc.Text()); line != "" {
					gw.Info("%s", line)
				}
			}
		}(r)
	}
	streams.Wait()
}

// teardown closes the current forward and SSH connection.  The client
// goes first so the forward's cancel request cannot block on a dead
// connection.
func (l *ReverseListener) teardown() {
	l.mu.Lock()
	client, fwd := l.client, l.fwd
	l.client, l.fwd = nil, nil
	l.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if fwd != nil {
		fwd.Close()
	}
}

// run serves forwards until the listener is closed, reconnecting
// whenever the current one fails.
func (l *ReverseListener) run() {
	defer l.wg.Done()
	defer close(l.conns)

	for {
		err := l.serve()
		if l.ctx.Err() != nil {
			return
		}
		l.logger.Error("reverse tunnel lost: %v", err)
		l.metrics.RecordError(fmt.Sprintf("tunnel: %v", err))
		l.teardown()

		if err := l.reconnect(); err != nil {
			if l.ctx.Err() == nil {
				l.logger.Error("reverse tunnel: giving up: %v", err)
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
			}
			return
		}
	}
}

// serve hands connections from the current forward to Accept until
// the forward fails.
func (l *ReverseListener) serve() error {
	l.mu.Lock()
	client, fwd := l.client, l.fwd
	l.mu.Unlock()
	if fwd == nil {
		return perrors.ErrTunnelClosed
	}

	kaCtx, stopKeepalive := context.WithCancel(l.ctx)
	defer stopKeepalive()
	if l.cfg.KeepAliveInterval > 0 {
		l.wg.Add(1)
		go l.keepalive(kaCtx, client, fwd)
	}

	for {
		conn, err := fwd.Accept()
		if err != nil {
			return err
		}
		l.logger.Verbose("reverse tunnel: connection from %s", conn.RemoteAddr())
		select {
		case l.conns <- conn:
		case <-l.ctx.Done():
			conn.Close()
			return l.ctx.Err()
		}
	}
}

// keepalive probes the gateway every interval.  A failed or unanswered
// probe closes the connection, which ends serve's Accept.
func (l *ReverseListener) keepalive(ctx context.Context, client *ssh.Client, fwd *forwardListener) {
	defer l.wg.Done()

	interval := l.cfg.KeepAliveInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		errc := make(chan error, 1)
		go func() {
			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			errc <- err
		}()

		var err error
		select {
		case <-ctx.Done():
			return
		case err = <-errc:
		case <-time.After(interval):
			err = fmt.Errorf("no reply within %v", interval)
		}

		if err != nil {
			l.logger.Error("SSH keepalive failed: %v", err)
			client.Close()
			fwd.Close()
			return
		}
		l.metrics.RecordHealthCheck()
		l.logger.Debug("SSH keepalive OK")
	}
}

// reconnect re-establishes the tunnel using the configured backoff.
func (l *ReverseListener) reconnect() error {
	b := *l.cfg.Reconnect
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		l.logger.Error("reverse tunnel: reconnect attempt %d: %v (next in %v)",
			attempt, err, wait.Truncate(time.Millisecond))
		l.metrics.RecordError(fmt.Sprintf("reconnect attempt %d: %v", attempt, err))
	}

	l.logger.Info("reverse tunnel: reconnecting...")
	err := b.Do(l.ctx, func(_ int) error {
		l.metrics.TunnelReconnect()
		err := l.connect(l.ctx)
		if err != nil && isPermanent(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return err
	}
	l.logger.Info("reverse tunnel: reconnected")
	return nil
}
