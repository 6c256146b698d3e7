package capability

import (
	"context"
	"errors"
	"time"

	"pxflut/internal/canvas"
	perrors "pxflut/internal/errors"
	"pxflut/internal/protocol"
	"pxflut/internal/session"
	"pxflut/util"
)

// Pixelflut speaks the line protocol on a session: every complete line
// received in one read is parsed and executed in order, and the
// replies it produced are written back in a single flush before the
// next read.
type Pixelflut struct {
	// IdleTimeout closes clients that send nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// ReplyErrors answers rejected lines and out-of-bounds reads with
	// "ERR <reason>".  By default they are dropped silently.
	ReplyErrors bool
}

// Handle serves sess until the client disconnects, idles out, the
// canvas breaker opens, or ctx is cancelled.  A clean end returns nil.
func (p *Pixelflut) Handle(ctx context.Context, sess *session.Session) error {
	stop := context.AfterFunc(ctx, func() {
		sess.Conn.SetDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	var out []byte
	for {
		if p.IdleTimeout > 0 {
			sess.Conn.SetReadDeadline(time.Now().Add(p.IdleTimeout)) //nolint:errcheck
		}
		n, rerr := sess.Conn.Read(buf)
		if n > 0 {
			sess.Metrics.BytesReceived(int64(n))

			var fatal error
			sess.Framer.Feed(buf[:n], func(line []byte, tooLong bool) {
				if fatal == nil {
					out, fatal = p.serveLine(sess, out, line, tooLong)
				}
			})
			if len(out) > 0 {
				if err := p.flush(sess, out); err != nil {
					return err
				}
				out = out[:0]
			}
			if fatal != nil {
				return &perrors.SessionError{ID: sess.ID, Remote: session.RemoteAddr(sess.Conn), Err: fatal}
			}
		}
		if rerr != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case util.IsTimeout(rerr):
				sess.Logger.Verbose("idle for %v, closing", p.IdleTimeout)
				return nil
			case util.IsHarmless(rerr):
				if sess.Framer.Pending() > 0 {
					sess.Logger.Debug("discarding %d byte partial line", sess.Framer.Pending())
				}
				return nil
			}
			return perrors.Wrap("read", session.RemoteAddr(sess.Conn), rerr)
		}
	}
}

func (p *Pixelflut) flush(sess *session.Session, out []byte) error {
	if p.IdleTimeout > 0 {
		sess.Conn.SetWriteDeadline(time.Now().Add(p.IdleTimeout)) //nolint:errcheck
	}
	n, err := sess.Conn.Write(out)
	sess.Metrics.BytesSent(int64(n))
	if err != nil {
		if util.IsHarmless(err) {
			return nil
		}
		return perrors.Wrap("write", session.RemoteAddr(sess.Conn), err)
	}
	return nil
}

// serveLine parses and executes one line, appending any reply to out.
// The returned error is non-nil only when the session must end.
func (p *Pixelflut) serveLine(sess *session.Session, out, line []byte, tooLong bool) ([]byte, error) {
	var (
		cmd protocol.Command
		err error
	)
	if tooLong {
		err = &protocol.ParseError{Kind: protocol.ErrLineTooLong}
	} else {
		cmd, err = protocol.Parse(line)
	}
	if err != nil {
		pe, ok := protocol.IsParseError(err)
		if ok && pe.Silent() {
			return out, nil
		}
		if ok {
			sess.Metrics.ParseError(pe.Kind)
		}
		sess.Logger.Debug("rejected line: %v", err)
		if p.ReplyErrors {
			out = protocol.AppendError(out, err)
		}
		return out, nil
	}
	return p.execute(sess, out, cmd)
}

func (p *Pixelflut) execute(sess *session.Session, out []byte, cmd protocol.Command) ([]byte, error) {
	sess.Metrics.CommandProcessed(cmd.Kind)

	switch cmd.Kind {
	case protocol.KindHelp:
		return protocol.AppendHelp(out), nil

	case protocol.KindSize:
		w, h := sess.Size()
		return protocol.AppendSize(out, w, h), nil

	case protocol.KindGetPixel:
		x, y := cmd.Point.X, cmd.Point.Y
		if !canvas.InBounds(sess.Canvas, x, y) {
			sess.Metrics.OutOfBounds()
			if p.ReplyErrors {
				out = protocol.AppendError(out, canvas.ErrOutOfBounds)
			}
			return out, nil
		}
		c, err := sess.GetPixel(x, y)
		if err != nil {
			return out, p.canvasFailure(sess, err)
		}
		return protocol.AppendPixel(out, x, y, c), nil

	case protocol.KindSetPixel:
		x, y := cmd.Point.X, cmd.Point.Y
		if !canvas.InBounds(sess.Canvas, x, y) {
			sess.Metrics.OutOfBounds()
			return out, nil
		}
		if err := sess.SetPixel(x, y, cmd.Color); err != nil {
			return out, p.canvasFailure(sess, err)
		}
		return out, nil
	}
	return out, nil
}

// canvasFailure drops the failed command.  It ends the session only
// once the breaker has opened.
func (p *Pixelflut) canvasFailure(sess *session.Session, err error) error {
	if errors.Is(err, canvas.ErrOutOfBounds) {
		sess.Metrics.OutOfBounds()
		return nil
	}
	if errors.Is(err, perrors.ErrCircuitOpen) {
		return err
	}
	sess.Metrics.CanvasError()
	sess.Logger.Warn("canvas: %v", err)
	return nil
}
