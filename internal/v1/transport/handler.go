// Package transport bridges the HTTP surface to the room engine: the
// WebSocket upgrade endpoint, the history and room-list queries, and
// the router that assembles them.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/lhalley/roomcast/internal/v1/config"
	"github.com/lhalley/roomcast/internal/v1/logging"
	"github.com/lhalley/roomcast/internal/v1/metrics"
	"github.com/lhalley/roomcast/internal/v1/ratelimit"
	"github.com/lhalley/roomcast/internal/v1/room"
)

// Handler exposes the room engine over HTTP.
type Handler struct {
	registry     *room.Registry
	rateLimiter  *ratelimit.RateLimiter
	allowed      set.Set[string]
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewHandler builds the HTTP handler around a registry. rateLimiter
// may be nil, which disables connection limiting (tests).
func NewHandler(registry *room.Registry, rateLimiter *ratelimit.RateLimiter, cfg *config.Config) *Handler {
	h := &Handler{
		registry:     registry,
		rateLimiter:  rateLimiter,
		allowed:      AllowedOrigins(cfg.AllowedOrigins),
		writeTimeout: cfg.WriteTimeout,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.allowed) == nil
		},
		WriteBufferPool: &sync.Pool{},
	}
	return h
}

// ServeWs handles GET /api/v1/room/:room/ws. It upgrades the
// connection and runs the session inline until the client goes away:
// the connection is counted in the room before the loops start and
// released only after both loops have let go of the socket.
func (h *Handler) ServeWs(c *gin.Context) {
	// IP-based connection limit before any other work.
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		metrics.WebsocketEvents.WithLabelValues("connect", "rate_limited").Inc()
		return // response already written
	}

	roomName := c.Param("room")
	if roomName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name required"})
		return
	}

	if err := validateOrigin(c.Request, h.allowed); err != nil {
		metrics.WebsocketEvents.WithLabelValues("connect", "rejected_origin").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		metrics.WebsocketEvents.WithLabelValues("connect", "upgrade_failed").Inc()
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	// The request context ends with this handler, but the session
	// outlives the upgrade request; keep the request-scoped log fields
	// without inheriting its cancellation.
	ctx := context.WithoutCancel(c.Request.Context())
	ctx = context.WithValue(ctx, logging.RoomNameKey, roomName)
	ctx = context.WithValue(ctx, logging.RemoteAddrKey, c.ClientIP())

	h.runSession(ctx, conn, roomName)
}

// runSession attaches an upgraded connection to its room and blocks
// until the session is over.
func (h *Handler) runSession(ctx context.Context, conn wsConnection, roomName string) {
	r, err := h.registry.GetOrCreate(ctx, roomName)
	if err != nil {
		// Registry is shutting down; refuse politely.
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		metrics.WebsocketEvents.WithLabelValues("connect", "registry_closed").Inc()
		return
	}

	r.ConnectionOpened(ctx)
	metrics.IncConnection()
	metrics.WebsocketEvents.WithLabelValues("connect", "success").Inc()

	s := newSession(conn, r, h.writeTimeout)
	s.Run(ctx)

	metrics.DecConnection()
	r.ConnectionClosed(ctx)
}

// History handles GET /api/v1/room/:room/history: the room's retained
// messages, oldest first. A room that does not exist reads as empty
// history; the lookup never creates it.
func (h *Handler) History(c *gin.Context) {
	r, ok := h.registry.Get(c.Param("room"))
	if !ok {
		c.JSON(http.StatusOK, []string{})
		return
	}
	c.JSON(http.StatusOK, r.History())
}

// Rooms handles GET /api/v1/rooms: every live room with its connection
// count, for operator inspection.
func (h *Handler) Rooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}
