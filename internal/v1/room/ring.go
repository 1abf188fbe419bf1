package room

import "sync"

// HistoryRing is a bounded FIFO of the most recent chat messages.
// Once the ring is full, appending a new message evicts the oldest
// one. All methods are safe for concurrent use.
type HistoryRing struct {
	mu   sync.RWMutex
	buf  []string
	head int // index of the oldest message
	size int
}

// NewHistoryRing creates a ring that retains at most capacity messages.
func NewHistoryRing(capacity int) *HistoryRing {
	if capacity < 1 {
		capacity = 1
	}
	return &HistoryRing{
		buf: make([]string, capacity),
	}
}

// Append adds a message, evicting the oldest one when the ring is full.
func (h *HistoryRing) Append(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = msg
		h.size++
		return
	}

	// Full: overwrite the oldest slot and advance the head.
	h.buf[h.head] = msg
	h.head = (h.head + 1) % len(h.buf)
}

// Snapshot returns a copy of the retained messages, oldest first.
func (h *HistoryRing) Snapshot() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of retained messages.
func (h *HistoryRing) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the maximum number of retained messages.
func (h *HistoryRing) Cap() int {
	return len(h.buf)
}
