// Package capability defines what happens over an established
// connection.  A Capability operates on a Session rather than a raw
// net.Conn, which keeps it testable and decoupled from whether the
// client arrived over plain TCP or an SSH remote forward.
package capability

import (
	"context"

	"pxflut/internal/session"
)

// Capability handles a single connection according to a specific
// behaviour.  The server runs [Pixelflut] on every accepted client.
type Capability interface {
	// Handle runs the capability against the given session.
	// It blocks until the connection is done or the context is
	// cancelled.
	Handle(ctx context.Context, sess *session.Session) error
}
