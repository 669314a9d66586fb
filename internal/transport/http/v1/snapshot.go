package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/runview/internal/protocol"
)

// GetSnapshot returns the latest full snapshot. The cursor header says which
// lifecycle seq the snapshot already includes.
// GET /v1/snapshot
func (h *Handler) GetSnapshot(c echo.Context) error {
	snap, cursor := h.service.Snapshot()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "snapshot not ready"})
	}

	c.Response().Header().Set(protocol.HeaderLifecycleCursor, strconv.FormatInt(cursor, 10))
	c.Response().Header().Set(protocol.HeaderLifecycleBridge, h.service.BridgeID())
	return c.JSON(http.StatusOK, snap)
}

// GetLifecycle returns the retained envelopes after a cursor, or the gap that
// prevents serving them.
// GET /v1/lifecycle?after=N
func (h *Handler) GetLifecycle(c echo.Context) error {
	after := int64(0)
	if a := c.QueryParam("after"); a != "" {
		val, err := strconv.ParseInt(a, 10, 64)
		if err != nil || val < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "after must be a non-negative integer"})
		}
		after = val
	}

	result := h.service.Backfill(after)
	c.Response().Header().Set(protocol.HeaderLifecycleBridge, h.service.BridgeID())
	if result.Gap != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"gap": result.Gap,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"envelopes": result.Envelopes,
	})
}
