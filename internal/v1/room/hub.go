package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lhalley/roomcast/internal/v1/metrics"
)

// ErrClosed is returned by Subscription.Next once the hub has shut
// down and the backlog is drained.
var ErrClosed = errors.New("broadcast hub closed")

// LaggedError reports that a subscriber fell behind and Count
// messages were dropped from its backlog. The subscription stays
// usable; the next call resumes from the oldest retained message.
type LaggedError struct {
	Count uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged, %d messages dropped", e.Count)
}

// Hub fans messages out to subscribers without ever blocking the
// publisher. Each subscriber owns a bounded backlog; when it is full
// the oldest backlog entry is dropped in favour of the new message
// and the drop is surfaced to the subscriber as a LaggedError.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	backlog int
	closed  bool
}

// Subscription is a single receiver attached to a Hub. It is owned by
// exactly one reader goroutine.
type Subscription struct {
	hub    *Hub
	ch     chan string
	missed atomic.Uint64
}

// NewHub creates a hub whose subscribers buffer up to backlog
// messages each.
func NewHub(backlog int) *Hub {
	if backlog < 1 {
		backlog = 1
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		backlog: backlog,
	}
}

// Subscribe attaches a new receiver. Subscribing to a closed hub
// yields a subscription whose Next immediately reports ErrClosed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		hub: h,
		ch:  make(chan string, h.backlog),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(s.ch)
		return s
	}

	h.subs[s] = struct{}{}
	return s
}

// Publish delivers msg to every subscriber and returns how many
// subscribers there were. It never blocks: a full backlog loses its
// oldest entry to make room, and the owning subscriber is told how
// much it missed on its next receive.
func (h *Hub) Publish(msg string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}

	for s := range h.subs {
		select {
		case s.ch <- msg:
			continue
		default:
		}

		// Backlog full: drop the oldest entry and retry.
		select {
		case <-s.ch:
			s.missed.Add(1)
			metrics.MessagesDropped.Inc()
		default:
		}

		select {
		case s.ch <- msg:
		default:
			// The reader raced us and the backlog refilled; the new
			// message is the one lost.
			s.missed.Add(1)
			metrics.MessagesDropped.Inc()
		}
	}

	return len(h.subs)
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches all subscribers. Their pending backlogs remain
// readable; once drained, Next reports ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for s := range h.subs {
		close(s.ch)
	}
	h.subs = make(map[*Subscription]struct{})
}

// Next blocks until a message arrives, the subscriber is found to
// have lagged, the hub closes, or ctx is cancelled. After a
// LaggedError the subscription keeps delivering from the oldest
// retained message.
func (s *Subscription) Next(ctx context.Context) (string, error) {
	if n := s.missed.Swap(0); n > 0 {
		return "", &LaggedError{Count: n}
	}

	select {
	case msg, ok := <-s.ch:
		if !ok {
			return "", ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close detaches the subscription from its hub. Safe to call more
// than once and safe to call concurrently with Publish.
func (s *Subscription) Close() {
	h := s.hub

	h.mu.Lock()
	defer h.mu.Unlock()

	// Already detached, either by an earlier call or by Hub.Close.
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
}
