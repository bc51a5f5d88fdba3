package auth

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/supplygate/backend/internal/middleware"
)

// RegisterRoutes sets up all auth routes on the given Echo instance. All
// routes except /me are public; identity resolution for the rest of the API
// comes from the global RequireAuth middleware.
//
// Credential-bearing endpoints are rate-limited per IP to slow brute-force
// and enumeration attacks. The limits are deliberately loose for the
// read-only validation endpoints.
func RegisterRoutes(e *echo.Echo, h *Handler, rdb *redis.Client) {
	g := e.Group("/api/auth")

	g.POST("/login", h.Login, middleware.RateLimit(rdb, 10, time.Minute))
	g.POST("/verify-2fa", h.Verify2FA, middleware.RateLimit(rdb, 15, time.Minute))
	g.POST("/resend-2fa-code", h.Resend2FACode, middleware.RateLimit(rdb, 5, time.Minute))
	g.GET("/validate-2fa-session", h.Validate2FASession)

	g.POST("/forgot-password", h.ForgotPassword, middleware.RateLimit(rdb, 5, time.Minute))
	g.GET("/validate-reset-token", h.ValidateResetToken)
	g.POST("/reset-password", h.ResetPassword, middleware.RateLimit(rdb, 10, time.Minute))

	g.POST("/refresh", h.Refresh, middleware.RateLimit(rdb, 30, time.Minute))
	g.POST("/register", h.Register, middleware.RateLimit(rdb, 5, time.Minute))

	g.GET("/me", h.Me)
}
