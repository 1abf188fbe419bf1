package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lhalley/roomcast/internal/v1/logging"
)

// ReadyChecker reports whether the room registry can still accept
// new connections. During shutdown the registry stops doing so and
// readiness flips to unavailable, letting load balancers drain us.
type ReadyChecker interface {
	Ready() bool
}

// Handler manages health check endpoints
type Handler struct {
	registry ReadyChecker
}

// NewHandler creates a new health check handler
func NewHandler(registry ReadyChecker) *Handler {
	return &Handler{
		registry: registry,
	}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Healthz handles the plain health endpoint
// GET /healthz
// Always returns 200 with a bare "ok" body
func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if the service can accept new connections
// Returns 503 once the registry has shut down
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	registryStatus := h.checkRegistry(ctx)
	checks["registry"] = registryStatus
	if registryStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkRegistry verifies the registry is still open for new rooms
func (h *Handler) checkRegistry(ctx context.Context) string {
	if h.registry == nil {
		return "healthy"
	}

	if !h.registry.Ready() {
		logging.Warn(ctx, "Registry is shut down, reporting unready")
		return "unhealthy"
	}

	return "healthy"
}
