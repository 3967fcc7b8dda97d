package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mbendtzen/game-show-backend/internal/config"
	"github.com/mbendtzen/game-show-backend/internal/service"
)

// GameWSHandler upgrades connections on /ws and pumps messages between the
// socket and the coordinator. Each connection gets a fresh id at accept
// time; the coordinator routes by that id only.
type GameWSHandler struct {
	coord    *service.Coordinator
	upgrader websocket.Upgrader
	maxMsg   int64
	logger   *zap.Logger
}

// NewGameWSHandler creates the WebSocket handler.
func NewGameWSHandler(coord *service.Coordinator, cfg *config.Config, logger *zap.Logger) *GameWSHandler {
	return &GameWSHandler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WSReadBufferSize,
			WriteBufferSize: cfg.WSWriteBufferSize,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
		maxMsg: cfg.WSMaxMessageSize,
		logger: logger,
	}
}

// ServeWS upgrades the request and runs the read loop until the peer goes
// away, then triggers the coordinator's disconnect cleanup.
func (h *GameWSHandler) ServeWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if h.maxMsg > 0 {
		ws.SetReadLimit(h.maxMsg)
	}

	conn := service.NewConn(uuid.New().String())
	h.coord.Register(conn)

	go h.writePump(ws, conn)
	h.readPump(ws, conn)
}

func (h *GameWSHandler) readPump(ws *websocket.Conn, conn *service.Conn) {
	defer func() {
		h.coord.HandleDisconnect(conn.ID)
		_ = ws.Close()
	}()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		h.coord.HandleMessage(conn.ID, data)
	}
}

func (h *GameWSHandler) writePump(ws *websocket.Conn, conn *service.Conn) {
	defer func() {
		_ = ws.Close()
	}()
	for data := range conn.Send {
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
