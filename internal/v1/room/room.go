// Package room implements the chat room core: per-room message
// history, non-blocking broadcast fan-out, and the registry that
// tracks room lifecycles.
package room

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lhalley/roomcast/internal/v1/logging"
	"github.com/lhalley/roomcast/internal/v1/metrics"
)

// removalHandle identifies one scheduled removal. The registry only
// honours a removal request carrying the handle it still expects, so
// a timer that lost a race against a reactivating join becomes a
// no-op.
type removalHandle struct {
	timer *time.Timer
}

// Room is a single named chat room. A room is either active (zero or
// more connections, counted explicitly) or pending removal (no
// connections, grace timer running). All transitions happen under mu.
type Room struct {
	name    string
	history *HistoryRing
	hub     *Hub

	mu      sync.Mutex
	conns   uint64
	pending *removalHandle

	// pubMu serializes Publish so the history order and the broadcast
	// order are the same, and an append is visible before its fan-out.
	pubMu sync.Mutex

	grace time.Duration
	evict func(name string, h *removalHandle)
}

// newRoom creates an active room with no connections. evict is called
// from the grace timer once the room has sat empty for the full
// grace period.
func newRoom(name string, historySize int, grace time.Duration, evict func(string, *removalHandle)) *Room {
	return &Room{
		name:    name,
		history: NewHistoryRing(historySize),
		hub:     NewHub(historySize),
		grace:   grace,
		evict:   evict,
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// ConnectionOpened registers a new connection. Joining a room that is
// pending removal cancels the removal and reactivates it. Returns the
// new connection count.
func (r *Room) ConnectionOpened(ctx context.Context) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		r.pending.timer.Stop()
		r.pending = nil
		metrics.RoomsReactivated.Inc()
		logging.Info(ctx, "Room reactivated during grace period", zap.String("room", r.name))
	}

	if r.conns == math.MaxUint64 {
		logging.Warn(ctx, "Connection counter saturated", zap.String("room", r.name))
		return r.conns
	}

	r.conns++
	metrics.RoomConnections.WithLabelValues(r.name).Set(float64(r.conns))
	return r.conns
}

// ConnectionClosed unregisters a connection. The decrement and the
// decision to schedule removal happen in one critical section, so two
// racing disconnects cannot both miss the room going empty. When the
// count reaches zero a grace timer is armed; the room is only removed
// if the timer fires with no join in between.
func (r *Room) ConnectionClosed(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil || r.conns == 0 {
		logging.Warn(ctx, "Connection closed on an idle room", zap.String("room", r.name))
		return
	}

	r.conns--
	metrics.RoomConnections.WithLabelValues(r.name).Set(float64(r.conns))

	if r.conns > 0 {
		return
	}

	h := &removalHandle{}
	h.timer = time.AfterFunc(r.grace, func() {
		r.evict(r.name, h)
	})
	r.pending = h
	logging.Info(ctx, "Room empty, removal scheduled",
		zap.String("room", r.name),
		zap.Duration("after", r.grace),
	)
}

// Connections returns the current connection count.
func (r *Room) Connections() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns
}

// Publish appends msg to the room history and fans it out to every
// subscriber. The append completes before the fan-out starts, so a
// history read racing a broadcast never misses a message a subscriber
// already saw. Returns the number of subscribers the message reached.
func (r *Room) Publish(ctx context.Context, msg string) int {
	r.pubMu.Lock()
	r.history.Append(msg)
	n := r.hub.Publish(msg)
	r.pubMu.Unlock()

	metrics.MessagesBroadcast.WithLabelValues(r.name).Inc()
	if n == 0 {
		logging.Debug(ctx, "Broadcast reached no subscribers", zap.String("room", r.name))
	}
	return n
}

// History returns a copy of the retained messages, oldest first.
func (r *Room) History() []string {
	return r.history.Snapshot()
}

// Subscribe attaches a new broadcast receiver to the room.
func (r *Room) Subscribe() *Subscription {
	return r.hub.Subscribe()
}
