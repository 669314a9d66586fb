// Package v1 provides the HTTP handlers of the v1 read API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/runview/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the v1 routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/snapshot", h.GetSnapshot)
	e.GET("/v1/lifecycle", h.GetLifecycle)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.GET("/v1/stream/pressure", h.GetPressure)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	oldest, latest := h.service.Window()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"bridgeId":    h.service.BridgeID(),
		"connections": h.service.ConnectionCount(),
		"oldestSeq":   oldest,
		"latestSeq":   latest,
	})
}

// GetPressure returns the stream backpressure counters accumulated since the
// previous call and resets them.
// GET /v1/stream/pressure
func (h *Handler) GetPressure(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.ConsumePressureStats())
}
