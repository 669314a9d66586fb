// Package http provides the HTTP server implementation for runview.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/runview/internal/protocol"
	"github.com/xiaot623/runview/internal/service"
	v1 "github.com/xiaot623/runview/internal/transport/http/v1"
	"github.com/xiaot623/runview/internal/transport/ws"
)

// NewServer creates and configures the HTTP server: the v1 read API and the
// websocket stream.
func NewServer(svc *service.Service, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		ExposeHeaders: []string{protocol.HeaderLifecycleCursor, protocol.HeaderLifecycleBridge},
	}))

	// Handlers
	v1Handler := v1.NewHandler(svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	e.GET("/v1/stream", wsServer.HandleWebSocket)

	return e
}
