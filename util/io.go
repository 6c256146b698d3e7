package util

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// DefaultBufSize is the read chunk size for client connections (32 KiB).
const DefaultBufSize = 32 * 1024

// IsHarmless reports whether err is an expected way for a client
// connection to end: EOF, a closed socket, a reset by the peer or an
// expired idle deadline.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if IsTimeout(err) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// IsTimeout reports whether err came from an expired read or write
// deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
