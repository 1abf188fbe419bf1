package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lhalley/roomcast/internal/v1/logging"
	"github.com/lhalley/roomcast/internal/v1/metrics"
)

// ErrRegistryClosed is returned by GetOrCreate once the registry has
// shut down.
var ErrRegistryClosed = errors.New("room registry closed")

// Registry owns every live room, keyed by name. Lock order is always
// registry before room, which is also the order the grace timers use
// when they come back asking for a removal.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	closed bool

	historySize int
	removeAfter time.Duration
}

// Info is one row of the room listing.
type Info struct {
	Name        string `json:"name"`
	Connections uint64 `json:"connections"`
}

// NewRegistry creates an empty registry. Rooms created through it
// retain historySize messages and linger for removeAfter once empty.
func NewRegistry(historySize int, removeAfter time.Duration) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		historySize: historySize,
		removeAfter: removeAfter,
	}
}

// GetOrCreate returns the room with the given name, creating it if
// absent. An existing room that is pending removal is reactivated
// before it is handed out, so the caller can never receive a room
// whose removal timer is still live.
func (reg *Registry) GetOrCreate(ctx context.Context, name string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.closed {
		return nil, ErrRegistryClosed
	}

	r, ok := reg.rooms[name]
	if !ok {
		r = newRoom(name, reg.historySize, reg.removeAfter, reg.remove)
		reg.rooms[name] = r
		metrics.ActiveRooms.Set(float64(len(reg.rooms)))
		logging.Info(ctx, "Room created", zap.String("room", name))
		return r, nil
	}

	r.mu.Lock()
	if r.pending != nil {
		r.pending.timer.Stop()
		r.pending = nil
		metrics.RoomsReactivated.Inc()
		logging.Info(ctx, "Room reactivated during grace period", zap.String("room", name))
	}
	r.mu.Unlock()

	return r, nil
}

// Get returns the room with the given name without creating it.
func (reg *Registry) Get(name string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[name]
	return r, ok
}

// List returns a snapshot of all rooms sorted by name.
func (reg *Registry) List() []Info {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]Info, 0, len(reg.rooms))
	for name, r := range reg.rooms {
		out = append(out, Info{
			Name:        name,
			Connections: r.Connections(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of rooms currently held.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Ready reports whether the registry still accepts new rooms.
func (reg *Registry) Ready() bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return !reg.closed
}

// remove is the grace timer callback. It removes the room only when
// the handle still matches the room's pending removal; a join that
// reactivated the room in the meantime leaves a stale handle behind
// and the removal becomes a no-op.
func (reg *Registry) remove(name string, h *removalHandle) {
	reg.mu.Lock()

	if reg.closed {
		reg.mu.Unlock()
		return
	}

	r, ok := reg.rooms[name]
	if !ok {
		reg.mu.Unlock()
		return
	}

	r.mu.Lock()
	if r.pending != h {
		r.mu.Unlock()
		reg.mu.Unlock()
		return
	}
	r.pending = nil
	delete(reg.rooms, name)
	roomsLeft := len(reg.rooms)
	r.mu.Unlock()
	reg.mu.Unlock()

	r.hub.Close()
	metrics.ActiveRooms.Set(float64(roomsLeft))
	metrics.RoomRemoved(name)
	metrics.RoomsReaped.Inc()
	logging.Info(context.Background(), "Idle room removed", zap.String("room", name))
}

// Close shuts the registry down: pending removal timers are stopped,
// every hub is closed so sessions drain out, and later GetOrCreate
// calls fail with ErrRegistryClosed. Timer callbacks that fire during
// shutdown see the closed flag and give up.
func (reg *Registry) Close() {
	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return
	}
	reg.closed = true
	rooms := reg.rooms
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		if r.pending != nil {
			r.pending.timer.Stop()
			r.pending = nil
		}
		r.mu.Unlock()

		r.hub.Close()
		metrics.RoomRemoved(r.name)
	}

	metrics.ActiveRooms.Set(0)
	logging.Info(context.Background(), "Registry closed", zap.Int("rooms", len(rooms)))
}
