package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbendtzen/game-show-backend/internal/clock"
	"github.com/mbendtzen/game-show-backend/internal/config"
	"github.com/mbendtzen/game-show-backend/internal/errs"
	"github.com/mbendtzen/game-show-backend/internal/model"
	"github.com/mbendtzen/game-show-backend/internal/service"
)

type nopStore struct{}

func (nopStore) Save(context.Context, *model.GameDocument) error { return nil }
func (nopStore) Load(context.Context, string) (*model.GameDocument, error) {
	return nil, errs.ErrGameNotFound
}
func (nopStore) Close() error { return nil }

func testCoordinator() *service.Coordinator {
	cfg := &config.Config{
		SessionMaxAge:    time.Hour,
		SweepInterval:    time.Hour,
		HostAbandonDelay: 5 * time.Minute,
		RecordTTL:        4 * time.Hour,
		StoreTimeout:     time.Second,
	}
	return service.NewCoordinator(cfg, nopStore{}, clock.New(), zap.NewNop())
}

func TestHealthReportsCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	coord := testCoordinator()
	conn := service.NewConn("c-1")
	coord.Register(conn)

	h := NewHealthHandler(coord)
	r := gin.New()
	r.GET("/api/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["activeGames"])
	assert.Equal(t, float64(1), body["activeConnections"])
	assert.Contains(t, body, "uptime")
}

func TestStatusPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(testCoordinator())
	r := gin.New()
	r.GET("/", h.Status)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Active games")
}
