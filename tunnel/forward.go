package tunnel

// forward.go - SSH forwarded-tcpip listener.
//
// ssh.Client.Listen registers forwarded-tcpip channels keyed by the
// exact bind address string it sent.  Many public tunnel services
// (serveo.net, localhost.run) echo back a *different* address (e.g.
// "0.0.0.0" when we sent ""), and the library then rejects every
// incoming channel with "no forward for address".
//
// The types below bypass Client.Listen: we register our own handler
// for forwarded-tcpip, send the tcpip-forward global request ourselves
// and accept all channels unconditionally.

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

// ── Wire format structs (RFC 4254) ──────────────────────────────────

// channelForwardMsg is the payload of the "tcpip-forward" and
// "cancel-tcpip-forward" global requests (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// channelForwardReply carries the port the server picked when the
// request asked for port 0.
type channelForwardReply struct {
	Port uint32
}

// forwardedTCPPayload is the channel-open payload for
// "forwarded-tcpip" (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// ── forwardListener ─────────────────────────────────────────────────

// forwardListener implements [net.Listener] over SSH forwarded-tcpip
// channels of one SSH connection.
type forwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// Accept waits for the next forwarded connection.  It returns io.EOF
// once the listener is closed or the SSH connection is gone.
func (l *forwardListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, io.EOF
	case newCh, ok := <-l.incoming:
		if !ok {
			return nil, io.EOF
		}
		ch, reqs, err := newCh.Accept()
		if err != nil {
			return nil, fmt.Errorf("channel accept: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		var raddr net.Addr = &net.TCPAddr{}
		var payload forwardedTCPPayload
		if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
			raddr = &net.TCPAddr{
				IP:   net.ParseIP(payload.OriginAddr),
				Port: int(payload.OriginPort),
			}
		}
		return newChanConn(ch, raddr, l.Addr()), nil
	}
}

// Close cancels the remote port forward and unblocks Accept.  The
// cancel request does not wait for a reply, so a hung gateway cannot
// stall shutdown.
func (l *forwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", false, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

// Addr returns the bound address on the gateway.
func (l *forwardListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// ── chanConn ─────────────────────────────────────────────────────────

// chanConn wraps an [ssh.Channel] to satisfy [net.Conn].  SSH channels
// have no deadlines, so a read deadline is emulated with a timer that
// closes the channel when it fires; the pending Read then fails with
// os.ErrDeadlineExceeded.  Write deadlines are not supported.
type chanConn struct {
	ssh.Channel
	laddr, raddr net.Addr

	mu      sync.Mutex
	timer   *time.Timer
	expired atomic.Bool
}

func newChanConn(ch ssh.Channel, raddr, laddr net.Addr) *chanConn {
	return &chanConn{Channel: ch, raddr: raddr, laddr: laddr}
}

func (c *chanConn) LocalAddr() net.Addr  { return c.laddr }
func (c *chanConn) RemoteAddr() net.Addr { return c.raddr }

func (c *chanConn) Read(p []byte) (int, error) {
	n, err := c.Channel.Read(p)
	if err != nil && c.expired.Load() {
		return n, os.ErrDeadlineExceeded
	}
	return n, err
}

func (c *chanConn) SetDeadline(t time.Time) error { return c.SetReadDeadline(t) }

func (c *chanConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	if t.IsZero() || c.expired.Load() {
		return nil
	}
	d := time.Until(t)
	if c.timer == nil {
		c.timer = time.AfterFunc(d, c.expire)
	} else {
		c.timer.Reset(d)
	}
	return nil
}

func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }

func (c *chanConn) expire() {
	c.expired.Store(true)
	c.Channel.Close()
}

func (c *chanConn) Close() error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	return c.Channel.Close()
}

// ── Constructor ──────────────────────────────────────────────────────

// listenRemoteForward sends a tcpip-forward request and returns a
// [net.Listener] that receives forwarded connections via SSH channels.
// When bindPort is 0 the port chosen by the server is reported by Addr.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (*forwardListener, error) {
	// Register our channel handler BEFORE the library can.
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{
		Addr: bindAddr,
		Port: uint32(bindPort),
	}
	ok, reply, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward request denied by peer")
	}

	port := uint32(bindPort)
	if port == 0 {
		var r channelForwardReply
		if err := ssh.Unmarshal(reply, &r); err == nil {
			port = r.Port
		}
	}

	return &forwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: port,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}
