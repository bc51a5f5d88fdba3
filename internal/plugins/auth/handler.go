package auth

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/supplygate/backend/internal/apperror"
)

// codePattern matches a well-formed 6-digit verification code. Anything else
// is rejected before touching the challenge state, so malformed submissions
// don't burn attempts.
var codePattern = regexp.MustCompile(`^\d{6}$`)

// Handler translates HTTP requests into auth service calls. All responses
// are JSON; errors flow to the central error handler as apperror values.
type Handler struct {
	service *AuthService
	reset   *PasswordResetService
}

// NewHandler creates the auth HTTP handler.
func NewHandler(service *AuthService, reset *PasswordResetService) *Handler {
	return &Handler{service: service, reset: reset}
}

// Login verifies credentials and returns a two-factor challenge. Tokens are
// never issued here.
//
// POST /api/auth/login
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return apperror.NewValidation("Username and password are required")
	}

	challenge, err := h.service.Login(c.Request().Context(), req.Username, req.Password, c.RealIP())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, challenge)
}

// Verify2FA answers a pending challenge and returns the token pair.
//
// POST /api/auth/verify-2fa
func (h *Handler) Verify2FA(c echo.Context) error {
	var req Verify2FARequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.SessionID == "" {
		return apperror.NewValidation("Session ID is required")
	}
	if !codePattern.MatchString(strings.TrimSpace(req.Code)) {
		return apperror.NewValidation("Verification code must be 6 digits")
	}

	result, err := h.service.CompleteTwoFactor(c.Request().Context(), req.SessionID, strings.TrimSpace(req.Code), c.RealIP())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Resend2FACode rotates the pending challenge and emails a fresh code.
//
// POST /api/auth/resend-2fa-code
func (h *Handler) Resend2FACode(c echo.Context) error {
	var req ResendRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.SessionID == "" {
		return apperror.NewValidation("Session ID is required")
	}

	sessionID, err := h.service.twoFactor.Resend(c.Request().Context(), req.SessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"sessionId": sessionID,
		"message":   "A new verification code has been sent to your email.",
	})
}

// Validate2FASession reports whether a challenge session is still answerable.
// The frontend polls this to decide whether to show the code form.
//
// GET /api/auth/validate-2fa-session?sessionId=...
func (h *Handler) Validate2FASession(c echo.Context) error {
	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return apperror.NewValidation("Session ID is required")
	}

	valid := h.service.twoFactor.IsSessionValid(c.Request().Context(), sessionID)
	return c.JSON(http.StatusOK, map[string]any{
		"valid":  valid,
		"status": sessionStatus(valid),
	})
}

// ForgotPassword starts a password reset. The response never reveals
// whether the email exists.
//
// POST /api/auth/forgot-password
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Email == "" {
		return apperror.NewValidation("Email is required")
	}

	message, err := h.reset.Initiate(c.Request().Context(), strings.TrimSpace(req.Email))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": message})
}

// ValidateResetToken reports whether a reset token is usable, so the
// frontend can show the new-password form only for live tokens.
//
// GET /api/auth/validate-reset-token?token=...
func (h *Handler) ValidateResetToken(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return apperror.NewValidation("Token is required")
	}

	valid := h.reset.ValidateToken(c.Request().Context(), token)
	return c.JSON(http.StatusOK, map[string]any{
		"valid":  valid,
		"status": sessionStatus(valid),
	})
}

// ResetPassword completes a reset with a pending token.
//
// POST /api/auth/reset-password
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Token == "" {
		return apperror.NewValidation("Token is required")
	}

	message, err := h.reset.Reset(c.Request().Context(), req.Token, req.NewPassword)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": message})
}

// sessionStatus renders a validity flag as the status word the frontend
// displays next to the form.
func sessionStatus(valid bool) string {
	if valid {
		return "valid"
	}
	return "expired_or_invalid"
}

// Refresh exchanges a refresh token for a new token pair.
//
// POST /api/auth/refresh
func (h *Handler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.RefreshToken == "" {
		return apperror.NewValidation("Refresh token is required")
	}

	result, err := h.service.Refresh(c.Request().Context(), req.RefreshToken, c.RealIP())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Register creates a new account.
//
// POST /api/auth/register
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, user)
}

// Me returns the authenticated user's profile.
//
// GET /api/auth/me
func (h *Handler) Me(c echo.Context) error {
	user, err := h.service.CurrentUser(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, user)
}
