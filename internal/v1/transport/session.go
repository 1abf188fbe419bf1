package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lhalley/roomcast/internal/v1/logging"
	"github.com/lhalley/roomcast/internal/v1/metrics"
	"github.com/lhalley/roomcast/internal/v1/room"
)

// wsConnection is the subset of *websocket.Conn a session drives.
// Tests substitute a scripted implementation.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SessionState is one connection's position in its lifecycle.
type SessionState int32

const (
	// StateConnecting: session constructed, loops not yet running.
	StateConnecting SessionState = iota
	// StateRunning: both loops live; incoming text frames are published.
	StateRunning
	// StateDraining: one loop has exited; nothing more from this
	// session reaches the room.
	StateDraining
	// StateClosed: both loops done and the socket released.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session owns one upgraded WebSocket and the pair of loops that
// bridge it to a room: the receive loop publishes incoming text frames,
// the send loop drains a hub subscription back to the socket. The pair
// always terminates together; the first loop to exit moves the session
// to draining and closes the connection to unblock the other.
type Session struct {
	id           string
	conn         wsConnection
	room         *room.Room
	sub          *room.Subscription
	writeTimeout time.Duration
	state        atomic.Int32
}

// newSession attaches a connection to a room it is already counted in.
// The subscription is taken here, before the loops start, so the
// session can never miss a message published after its own connect.
func newSession(conn wsConnection, r *room.Room, writeTimeout time.Duration) *Session {
	return &Session{
		id:           uuid.New().String(),
		conn:         conn,
		room:         r,
		sub:          r.Subscribe(),
		writeTimeout: writeTimeout,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// beginDrain moves Running to Draining; the first exiting loop wins
// and later calls are no-ops.
func (s *Session) beginDrain() {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
}

// Run pumps the session until both loops have exited, then releases
// the socket and the hub subscription. The caller decrements the room
// count only after Run returns, so no frame can arrive between the
// decrement and the close.
func (s *Session) Run(ctx context.Context) {
	s.state.Store(int32(StateRunning))
	logging.Info(ctx, "Session started", zap.String("session", s.id))

	g, loopCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer s.beginDrain()
		return s.sendLoop(loopCtx)
	})
	g.Go(func() error {
		defer s.beginDrain()
		return s.recvLoop(loopCtx)
	})

	// The receive loop blocks in ReadMessage with no context to watch;
	// closing the connection is what unblocks it. loopCtx is done as
	// soon as either loop exits or the caller cancels.
	unblocked := make(chan struct{})
	go func() {
		defer close(unblocked)
		<-loopCtx.Done()
		_ = s.conn.Close()
	}()

	err := g.Wait()
	<-unblocked
	s.sub.Close()

	s.state.Store(int32(StateClosed))
	reason := closeReason(err)
	metrics.WebsocketEvents.WithLabelValues("disconnect", reason).Inc()
	logging.Info(ctx, "Session closed",
		zap.String("session", s.id),
		zap.String("reason", reason))
}

// sendLoop drains the hub subscription into the socket. Every frame
// gets a fresh write deadline; a client that cannot complete a write
// within the timeout is cut off rather than allowed to hold the
// session open.
func (s *Session) sendLoop(ctx context.Context) error {
	for {
		msg, err := s.sub.Next(ctx)

		var lagged *room.LaggedError
		switch {
		case err == nil:
		case errors.As(err, &lagged):
			// The hub already dropped what this client was too slow
			// for; note it and resume from the retained tail.
			logging.Warn(ctx, "Session fell behind, messages dropped",
				zap.String("session", s.id),
				zap.Uint64("dropped", lagged.Count))
			continue
		case errors.Is(err, room.ErrClosed):
			// The room is gone, reaped or shut down. Tell the client
			// before hanging up.
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"))
			return err
		default:
			return err
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if werr := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); werr != nil {
			logging.Warn(ctx, "Failed to write frame, ending session",
				zap.String("session", s.id), zap.Error(werr))
			return fmt.Errorf("write text frame: %w", werr)
		}
	}
}

// recvLoop reads frames off the socket and publishes text frames to
// the room. Ping and pong are answered inside ReadMessage by the
// websocket layer and never surface here; binary frames are not part
// of the protocol and are dropped.
func (s *Session) recvLoop(ctx context.Context) error {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			// Close frames and transport errors both land here; the
			// distinction only matters for the exit log.
			return fmt.Errorf("read frame: %w", err)
		}

		if messageType != websocket.TextMessage {
			logging.GetLogger().Debug("Discarding non-text frame",
				zap.String("session", s.id), zap.Int("frameType", messageType))
			continue
		}

		if s.State() != StateRunning {
			// Draining: the peer loop is gone and the disconnect is in
			// progress, so this frame must not reach the room.
			continue
		}

		msg := string(data)
		s.room.Publish(ctx, msg)
		logging.Debug(ctx, "Frame published",
			zap.String("session", s.id),
			zap.String("preview", logging.Preview(msg)))
	}
}

// closeReason maps a session's terminal error to a metrics label.
func closeReason(err error) string {
	var closeErr *websocket.CloseError
	switch {
	case err == nil:
		return "clean"
	case errors.Is(err, room.ErrClosed):
		return "room_closed"
	case errors.As(err, &closeErr):
		return "client_close"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "io_error"
	}
}
