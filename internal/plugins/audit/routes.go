package audit

import (
	"github.com/labstack/echo/v4"

	"github.com/supplygate/backend/internal/plugins/auth"
)

// RegisterRoutes sets up audit routes. The event feed is restricted to
// administrators.
func RegisterRoutes(e *echo.Echo, h *Handler, authService *auth.AuthService) {
	g := e.Group("/api/audit")

	g.GET("/events", h.ListEvents, authService.RequireRole(auth.RoleAdmin))
}
