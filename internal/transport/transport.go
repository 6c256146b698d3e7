// Package transport provides the sources of client connections.
// Transports handle the "how" of connection arrival (a plain TCP
// socket or a remote forward on an SSH gateway) independent of what
// happens over the connection, which is the capability layer's job.
package transport

import (
	"context"
	"net"
)

// Source opens a listener for inbound pixel clients.  Implementations
// include a plain TCP source and an SSH reverse-tunnel source.
type Source interface {
	// Listen opens the listener.  It stays open until closed or ctx
	// is cancelled.
	Listen(ctx context.Context) (net.Listener, error)

	// String describes the source for logs.
	String() string
}
