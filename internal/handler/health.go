package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbendtzen/game-show-backend/internal/service"
)

// HealthHandler serves the status page and health/ready checks.
type HealthHandler struct {
	coord *service.Coordinator
}

// NewHealthHandler creates a health handler backed by the coordinator's
// live counters.
func NewHealthHandler(coord *service.Coordinator) *HealthHandler {
	return &HealthHandler{coord: coord}
}

// Health responds to GET /api/health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"activeGames":       h.coord.ActiveGames(),
		"activeConnections": h.coord.ActiveConnections(),
		"uptime":            h.coord.Uptime().Round(time.Second).String(),
	})
}

// Ready responds to GET /ready (k8s readiness).
func (h *HealthHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Status responds to GET / with a human-readable status page.
func (h *HealthHandler) Status(c *gin.Context) {
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>game-show-backend</title></head>
<body>
<h1>game-show-backend</h1>
<p>Status: running</p>
<ul>
<li>Active games: %d</li>
<li>Active connections: %d</li>
<li>Uptime: %s</li>
</ul>
</body>
</html>
`, h.coord.ActiveGames(), h.coord.ActiveConnections(), h.coord.Uptime().Round(time.Second))
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}
