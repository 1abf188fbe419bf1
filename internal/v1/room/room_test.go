package room

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEvict is a placeholder for tests that never let a room go idle
// long enough to be removed.
func noEvict(string, *removalHandle) {}

func TestRoom_ConnectionCounting(t *testing.T) {
	ctx := context.Background()
	r := newRoom("lobby", 10, time.Minute, noEvict)

	assert.Equal(t, uint64(0), r.Connections())
	assert.Equal(t, uint64(1), r.ConnectionOpened(ctx))
	assert.Equal(t, uint64(2), r.ConnectionOpened(ctx))

	r.ConnectionClosed(ctx)
	assert.Equal(t, uint64(1), r.Connections())
}

func TestRoom_RemovalScheduledWhenLastConnectionCloses(t *testing.T) {
	ctx := context.Background()
	evicted := make(chan string, 1)
	r := newRoom("lobby", 10, 30*time.Millisecond, func(name string, h *removalHandle) {
		evicted <- name
	})

	r.ConnectionOpened(ctx)
	r.ConnectionClosed(ctx)

	select {
	case name := <-evicted:
		assert.Equal(t, "lobby", name)
	case <-time.After(2 * time.Second):
		t.Fatal("removal timer never fired")
	}
}

func TestRoom_ReactivationCancelsRemoval(t *testing.T) {
	ctx := context.Background()
	evicted := make(chan string, 1)
	r := newRoom("lobby", 10, 30*time.Millisecond, func(name string, h *removalHandle) {
		evicted <- name
	})

	r.ConnectionOpened(ctx)
	r.ConnectionClosed(ctx)

	// Rejoin within the grace period cancels the pending removal.
	assert.Equal(t, uint64(1), r.ConnectionOpened(ctx))

	select {
	case <-evicted:
		t.Fatal("removal fired despite reactivation")
	case <-time.After(120 * time.Millisecond):
	}

	r.ConnectionClosed(ctx)
}

func TestRoom_CloseOnIdleRoomIsANoOp(t *testing.T) {
	ctx := context.Background()
	evicted := make(chan string, 1)
	r := newRoom("lobby", 10, 30*time.Millisecond, func(name string, h *removalHandle) {
		evicted <- name
	})

	// Never opened: nothing to decrement, nothing scheduled.
	r.ConnectionClosed(ctx)
	assert.Equal(t, uint64(0), r.Connections())

	select {
	case <-evicted:
		t.Fatal("removal scheduled for a room that never had connections")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRoom_CloseWhilePendingDoesNotDoubleSchedule(t *testing.T) {
	ctx := context.Background()
	evicted := make(chan string, 2)
	r := newRoom("lobby", 10, 30*time.Millisecond, func(name string, h *removalHandle) {
		evicted <- name
	})

	r.ConnectionOpened(ctx)
	r.ConnectionClosed(ctx)
	// A stray extra close while removal is pending must not arm a
	// second timer.
	r.ConnectionClosed(ctx)

	<-evicted
	select {
	case <-evicted:
		t.Fatal("removal fired twice")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestRoom_CounterSaturates(t *testing.T) {
	ctx := context.Background()
	r := newRoom("lobby", 10, time.Minute, noEvict)
	r.conns = math.MaxUint64

	assert.Equal(t, uint64(math.MaxUint64), r.ConnectionOpened(ctx))
	assert.Equal(t, uint64(math.MaxUint64), r.Connections())
}

func TestRoom_PublishAppendsHistoryAndFansOut(t *testing.T) {
	ctx := context.Background()
	r := newRoom("lobby", 10, time.Minute, noEvict)

	sub := r.Subscribe()
	defer sub.Close()

	n := r.Publish(ctx, "hello")
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"hello"}, r.History())

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msg, err := sub.Next(rctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg)
}

func TestRoom_PublishWithoutSubscribers(t *testing.T) {
	ctx := context.Background()
	r := newRoom("lobby", 10, time.Minute, noEvict)

	n := r.Publish(ctx, "anyone there?")
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"anyone there?"}, r.History(), "history grows even with no one listening")
}

func TestRoom_HistoryVisibleBeforeDelivery(t *testing.T) {
	ctx := context.Background()
	r := newRoom("lobby", 200, time.Minute, noEvict)

	sub := r.Subscribe()
	defer sub.Close()

	const total = 100
	done := make(chan error, 1)

	// Every message a subscriber receives must already be readable in
	// the room history.
	go func() {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		for i := 0; i < total; i++ {
			msg, err := sub.Next(rctx)
			if err != nil {
				done <- err
				return
			}
			found := false
			for _, m := range r.History() {
				if m == msg {
					found = true
					break
				}
			}
			if !found {
				done <- fmt.Errorf("received %q before it appeared in history", msg)
				return
			}
		}
		done <- nil
	}()

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < total/2; i++ {
				r.Publish(ctx, fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, <-done)
}

func TestRoom_HistoryEvictionAtCapacity(t *testing.T) {
	ctx := context.Background()
	r := newRoom("lobby", 3, time.Minute, noEvict)

	for i := 1; i <= 5; i++ {
		r.Publish(ctx, fmt.Sprintf("msg-%d", i))
	}

	assert.Equal(t, []string{"msg-3", "msg-4", "msg-5"}, r.History())
}
