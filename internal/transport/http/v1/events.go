package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/runview/internal/service"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

// GetRunEvents retrieves the archived lifecycle events of a run.
// GET /v1/runs/:run_id/events?after=&types=&limit=
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	if runID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "run_id is required"})
	}

	limit := defaultEventsLimit
	if l := c.QueryParam("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = val
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	afterTs := int64(0)
	if t := c.QueryParam("after"); t != "" {
		val, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "after must be a timestamp in milliseconds"})
		}
		afterTs = val
	}

	var types []string
	for _, t := range strings.Split(c.QueryParam("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	events, err := h.service.RunEvents(c.Request().Context(), runID, afterTs, types, limit)
	if errors.Is(err, service.ErrArchiveDisabled) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
