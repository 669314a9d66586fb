// Package ws provides the websocket stream of snapshot and lifecycle frames.
package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/runview/internal/hub"
	"github.com/xiaot623/runview/internal/protocol"
	"github.com/xiaot623/runview/internal/service"
)

// Config holds the websocket connection settings.
type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// Server handles websocket connections.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	service  *service.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new websocket server.
func NewServer(cfg Config, h *hub.Hub, svc *service.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Read-only stream; any dashboard origin may subscribe.
				return true
			},
		},
		logger: logger.With(zap.String("component", "ws")),
	}
}

// HandleWebSocket upgrades the request and attaches the subscriber.
// GET /v1/stream?cursor=N
func (s *Server) HandleWebSocket(c echo.Context) error {
	var cursor *int64
	if raw := c.QueryParam("cursor"); raw != "" {
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || val < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "cursor must be a non-negative integer"})
		}
		cursor = &val
	}

	header := http.Header{}
	header.Set(protocol.HeaderLifecycleBridge, s.service.BridgeID())
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), header)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	conn := s.hub.NewConnection(ws)
	if err := s.service.Attach(conn, cursor); err != nil {
		s.logger.Warn("failed to attach subscriber", zap.Error(err))
		ws.Close()
		return nil
	}

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump only watches for the peer going away; subscribers send nothing.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
	}
}

// writePump writes queued frames and keepalive pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write frame", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
