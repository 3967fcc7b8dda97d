package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbendtzen/game-show-backend/internal/handler"
	"github.com/mbendtzen/game-show-backend/pkg/constants"
)

// New builds the HTTP router.
func New(gameWS *handler.GameWSHandler, health *handler.HealthHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathStatus, health.Status)
	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// WebSocket: one duplex channel per connected party.
	r.GET(constants.PathWS, gameWS.ServeWS)

	return r
}
