// Package feed fans applied pixel writes out to live subscribers such
// as WebSocket viewers.
//
// Publishing never blocks: a subscriber whose buffer is full misses
// updates and has its drop counter incremented.
package feed

import (
	"sync"
	"sync/atomic"

	"pxflut/internal/pixel"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 4096

// Update is one stored pixel.
type Update struct {
	X, Y  int
	Color pixel.Color
}

// Subscription receives updates until Close is called.
type Subscription struct {
	C       <-chan Update
	ch      chan Update
	hub     *Hub
	dropped atomic.Int64
	once    sync.Once
}

// Dropped returns the number of updates discarded because the
// subscriber fell behind.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Hub is a set of subscriptions.  The zero value is not usable; call
// New.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// New returns a hub whose subscribers buffer up to buffer updates.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Update, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers u to every subscriber that has room for it.
func (h *Hub) Publish(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.ch <- u:
		default:
			s.dropped.Add(1)
		}
	}
}

// Observer adapts Publish to canvas.WriteFunc's signature.
func (h *Hub) Observer(x, y int, c pixel.Color) {
	h.Publish(Update{X: x, Y: y, Color: c})
}
