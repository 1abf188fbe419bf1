package transport

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lhalley/roomcast/internal/v1/config"
	"github.com/lhalley/roomcast/internal/v1/health"
	"github.com/lhalley/roomcast/internal/v1/middleware"
	"github.com/lhalley/roomcast/internal/v1/ratelimit"
	"github.com/lhalley/roomcast/internal/v1/web"
)

// NewRouter assembles the full HTTP surface: operational endpoints,
// the versioned API, and the static SPA fallback for everything else.
// rateLimiter may be nil, which leaves the API unthrottled (tests).
func NewRouter(cfg *config.Config, h *Handler, healthHandler *health.Handler, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = h.allowed.SortedList()
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	// The upgrade path carries its own IP limit inside ServeWs; the
	// request/response endpoints get the HTTP limits.
	api.GET("/room/:room/ws", h.ServeWs)
	if rateLimiter != nil {
		api.GET("/room/:room/history", rateLimiter.MiddlewareForEndpoint("history"), h.History)
		api.GET("/rooms", rateLimiter.GlobalMiddleware(), h.Rooms)
	} else {
		api.GET("/room/:room/history", h.History)
		api.GET("/rooms", h.Rooms)
	}

	// Everything else is the bundled web client.
	router.NoRoute(web.SPA(cfg.StaticDir))

	return router
}
