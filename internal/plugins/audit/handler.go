package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler serves the admin-facing audit event feed.
type Handler struct {
	service *Service
}

// NewHandler creates the audit HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListEvents returns a page of recent security events.
//
// GET /api/audit/events?page=1
func (h *Handler) ListEvents(c echo.Context) error {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}

	entries, total, err := h.service.ListEvents(c.Request().Context(), page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"events": entries,
		"total":  total,
		"page":   page,
	})
}
