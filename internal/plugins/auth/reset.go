package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/supplygate/backend/internal/apperror"
	"github.com/supplygate/backend/internal/mail"
)

// Password reset error types.
const (
	errTypeInvalidResetToken = "invalid_reset_token"
	errTypeResetTokenExpired = "reset_token_expired"
	errTypeWeakPassword      = "weak_password"
)

// resetRequestedMessage is returned for every reset request regardless of
// whether the email exists, so the endpoint can't be used to enumerate
// accounts.
const resetRequestedMessage = "If an account exists with this email, a password reset link has been sent."

// PasswordResetService manages the forgot-password flow: time-limited,
// single-use reset tokens delivered by email.
type PasswordResetService struct {
	repo     UserRepository
	mail     mail.Sender
	tokenTTL time.Duration
}

// NewPasswordResetService creates the reset engine.
func NewPasswordResetService(repo UserRepository, sender mail.Sender, tokenTTL time.Duration) *PasswordResetService {
	return &PasswordResetService{
		repo:     repo,
		mail:     sender,
		tokenTTL: tokenTTL,
	}
}

// Initiate starts a password reset for the given email. Unknown emails get
// the same response as known ones.
//
// Unlike 2FA codes, the reset email is sent synchronously: the token is
// useless if the email never arrives, so a failed send rolls the token back
// and surfaces an error instead of leaving a dead token on the account.
func (s *PasswordResetService) Initiate(ctx context.Context, email string) (string, error) {
	user, err := s.repo.FindByIdentifier(ctx, email)
	if err != nil {
		// Don't reveal whether the email exists.
		return resetRequestedMessage, nil
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(s.tokenTTL)

	if err := s.repo.SaveResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("saving reset token: %w", err))
	}

	if err := s.mail.SendPasswordReset(ctx, user.Email, token); err != nil {
		if clearErr := s.repo.ClearResetToken(ctx, user.ID); clearErr != nil {
			slog.Warn("rolling back reset token after failed send",
				slog.String("user_id", user.ID.String()),
				slog.Any("error", clearErr),
			)
		}
		return "", apperror.NewInternal(fmt.Errorf("sending reset email: %w", err))
	}

	return resetRequestedMessage, nil
}

// ValidateToken reports whether a reset token exists and hasn't expired.
// Lets the frontend check before showing the new-password form. Never
// mutates state.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) bool {
	user, err := s.repo.FindByResetToken(ctx, token)
	if err != nil {
		return false
	}
	if user.PasswordResetExpiry == nil || user.PasswordResetExpiry.Before(time.Now()) {
		return false
	}
	return true
}

// Reset sets a new password using a pending token. Complexity is checked
// before the token so a user with a valid token learns about a weak password
// without burning the token. The token is invalidated in the same statement
// that stores the new hash, making it single use.
func (s *PasswordResetService) Reset(ctx context.Context, token, newPassword string) (string, error) {
	if err := validatePasswordComplexity(newPassword); err != nil {
		return "", err
	}

	user, err := s.repo.FindByResetToken(ctx, token)
	if err != nil {
		return "", apperror.New(http.StatusBadRequest, errTypeInvalidResetToken, "Invalid or expired reset token")
	}

	if user.PasswordResetExpiry == nil || user.PasswordResetExpiry.Before(time.Now()) {
		if clearErr := s.repo.ClearResetToken(ctx, user.ID); clearErr != nil {
			slog.Warn("clearing expired reset token failed",
				slog.String("user_id", user.ID.String()),
				slog.Any("error", clearErr),
			)
		}
		return "", apperror.New(http.StatusBadRequest, errTypeResetTokenExpired,
			"Reset token has expired. Please request a new one.")
	}

	hash, err := hashSecret(newPassword)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("hashing new password: %w", err))
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	// Outstanding JWTs issued before the reset remain valid until they
	// expire. Access tokens live 30 minutes, which bounds the exposure.
	return "Password has been reset successfully. Please login with your new password.", nil
}

// validatePasswordComplexity enforces the minimum password policy: at least
// 8 characters with at least one letter and one digit, and not a well-known
// weak password.
func validatePasswordComplexity(password string) error {
	if strings.TrimSpace(password) == "" {
		return apperror.New(http.StatusBadRequest, errTypeWeakPassword, "Password cannot be empty")
	}

	if len(password) < 8 {
		return apperror.New(http.StatusBadRequest, errTypeWeakPassword,
			"Password must be at least 8 characters long")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperror.New(http.StatusBadRequest, errTypeWeakPassword,
			"Password must contain at least one letter and one number")
	}

	lower := strings.ToLower(password)
	for _, weak := range []string{"password", "123456", "qwerty"} {
		if strings.Contains(lower, weak) {
			return apperror.New(http.StatusBadRequest, errTypeWeakPassword,
				"Password is too weak. Please choose a stronger password.")
		}
	}

	return nil
}
