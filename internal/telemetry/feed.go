package telemetry

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pxflut/internal/feed"
	"pxflut/internal/protocol"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
	feedPongWait   = feedPingPeriod + 10*time.Second
	// feedBatch is the most updates packed into one message.
	feedBatch = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	// The feed is read-only; any page may watch the canvas.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleFeed streams applied pixel writes to a WebSocket viewer.  The
// first message is "SIZE <w> <h>"; every following text message holds
// one or more "PX <x> <y> <rrggbb>" lines.  Viewers that fall behind
// miss updates instead of slowing down the pixel clients.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.Feed == nil {
		http.Error(w, "feed disabled", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Debug("feed upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := s.Feed.Subscribe()
	defer sub.Close()
	log := s.Logger.With("viewer", conn.RemoteAddr().String())
	log.Verbose("feed viewer connected")

	// Reader: handles pongs and notices the viewer leaving.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(feedPongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	width, height := s.Canvas.Size()
	if err := s.writeFeed(conn, protocol.AppendSize(nil, width, height)); err != nil {
		return
	}

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	buf := make([]byte, 0, 4096)
	for {
		select {
		case <-gone:
			log.Verbose("feed viewer left (%d updates dropped)", sub.Dropped())
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			buf = appendUpdates(buf[:0], u, sub.C)
			if err := s.writeFeed(conn, buf); err != nil {
				log.Debug("feed write: %v", err)
				return
			}
		}
	}
}

// appendUpdates encodes first plus whatever is already queued, up to
// feedBatch updates.
func appendUpdates(buf []byte, first feed.Update, more <-chan feed.Update) []byte {
	buf = protocol.AppendPixel(buf, first.X, first.Y, first.Color)
	for i := 1; i < feedBatch; i++ {
		select {
		case u, ok := <-more:
			if !ok {
				return buf
			}
			buf = protocol.AppendPixel(buf, u.X, u.Y, u.Color)
		default:
			return buf
		}
	}
	return buf
}

func (s *Server) writeFeed(conn *websocket.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(feedWriteWait)) //nolint:errcheck
	return conn.WriteMessage(websocket.TextMessage, msg)
}
