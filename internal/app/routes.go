package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/supplygate/backend/internal/mail"
	"github.com/supplygate/backend/internal/plugins/audit"
	"github.com/supplygate/backend/internal/plugins/auth"
)

// RegisterRoutes constructs every plugin with its dependencies and registers
// all HTTP routes. This is the single place where the object graph is wired.
func (a *App) RegisterRoutes() {
	cfg := a.Config

	// Shared infrastructure.
	userRepo := auth.NewUserRepository(a.DB)
	sender := mail.NewSMTPSender(mail.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromAddress: cfg.SMTP.FromAddress,
		FromName:    cfg.SMTP.FromName,
		Encryption:  cfg.SMTP.Encryption,
		FrontendURL: cfg.FrontendURL,
	})
	codec := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	// Audit plugin. Constructed before auth because the auth service records
	// security events through it.
	auditService := audit.NewService(audit.NewRepository(a.DB))

	// Auth plugin.
	twoFactor := auth.NewTwoFactorService(userRepo, sender, cfg.Auth.TwoFactorTTL, cfg.Auth.TwoFactorMaxAttempts)
	resetService := auth.NewPasswordResetService(userRepo, sender, cfg.Auth.ResetTokenTTL)
	authService := auth.NewAuthService(userRepo, codec, twoFactor, auditService, cfg.Auth.AccessTokenTTL)

	// Identity resolution runs on every request. Public paths pass through
	// untouched; everything else gets a Principal in the request context.
	a.Echo.Use(authService.RequireAuth())

	auth.RegisterRoutes(a.Echo, auth.NewHandler(authService, resetService), a.Redis)
	audit.RegisterRoutes(a.Echo, audit.NewHandler(auditService), authService)

	// Liveness probe for container orchestration.
	a.Echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
