package transport

import (
	"context"
	"net"
	"time"

	perrors "pxflut/internal/errors"
)

// TCPSource listens on a local TCP address.
type TCPSource struct {
	Address   string        // "host:port"; ":1337" listens on all interfaces
	KeepAlive time.Duration // TCP keepalive period; 0 uses the OS default
}

// Listen opens the TCP listener.
func (s *TCPSource) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: s.KeepAlive}
	ln, err := lc.Listen(ctx, "tcp", s.Address)
	if err != nil {
		return nil, perrors.Wrap("listen", s.Address, err)
	}
	return ln, nil
}

func (s *TCPSource) String() string { return "tcp " + s.Address }
