package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/supplygate/backend/internal/apperror"
	"github.com/supplygate/backend/internal/mail"
)

// Two-factor challenge error types. Clients branch on these to decide
// whether to re-prompt for the code or send the user back to login.
const (
	errTypeInvalidSession    = "invalid_session"
	errTypeSessionExpired    = "session_expired"
	errTypeAttemptsExhausted = "attempts_exhausted"
	errTypeInvalidCode       = "invalid_code"
)

// TwoFactorService manages email verification challenges. Login issues a
// challenge, the user answers it with the emailed code, and only then are
// tokens minted. Challenge state lives on the user row; a user has at most
// one pending challenge.
type TwoFactorService struct {
	repo        UserRepository
	mail        mail.Sender
	codeTTL     time.Duration
	maxAttempts int
}

// NewTwoFactorService creates the challenge engine.
func NewTwoFactorService(repo UserRepository, sender mail.Sender, codeTTL time.Duration, maxAttempts int) *TwoFactorService {
	return &TwoFactorService{
		repo:        repo,
		mail:        sender,
		codeTTL:     codeTTL,
		maxAttempts: maxAttempts,
	}
}

// Initiate starts a new challenge for the user: generates a 6-digit code,
// stores its hash with a fresh session ID, and emails the code. Any previous
// pending challenge for this user is invalidated.
//
// The challenge is persisted BEFORE the email is sent, and the send happens
// in the background. A failed or slow send never blocks or fails login; the
// user can request a resend if the email doesn't arrive.
func (s *TwoFactorService) Initiate(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}

	code, err := generateCode()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating 2fa code: %w", err))
	}

	codeHash, err := hashSecret(code)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("hashing 2fa code: %w", err))
	}

	sessionID := uuid.NewString()
	expiresAt := time.Now().Add(s.codeTTL)

	if err := s.repo.SaveTwoFactorChallenge(ctx, userID, codeHash, sessionID, expiresAt); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("saving 2fa challenge: %w", err))
	}

	go func(email string) {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.mail.Send2FACode(sendCtx, email, code); err != nil {
			slog.Warn("sending 2fa code failed, code remains valid for resend",
				slog.String("user_id", userID.String()),
				slog.Any("error", err),
			)
		}
	}(user.Email)

	return sessionID, nil
}

// Verify checks the submitted code against the pending challenge. On success
// the challenge is cleared and the user ID is returned; the code is single
// use. Expired challenges and exhausted attempt budgets are cleared on
// discovery, which retires their session IDs.
func (s *TwoFactorService) Verify(ctx context.Context, sessionID, code string) (uuid.UUID, error) {
	user, err := s.repo.FindByTwoFactorSession(ctx, sessionID)
	if err != nil {
		return uuid.Nil, apperror.New(http.StatusBadRequest, errTypeInvalidSession, "Invalid or expired session")
	}

	if user.TwoFactorCodeExpiry == nil || user.TwoFactorCodeExpiry.Before(time.Now()) {
		s.clearChallenge(ctx, user.ID)
		return uuid.Nil, apperror.New(http.StatusBadRequest, errTypeSessionExpired,
			"Verification code has expired. Please request a new code.")
	}

	if user.TwoFactorAttempts >= s.maxAttempts {
		s.clearChallenge(ctx, user.ID)
		return uuid.Nil, apperror.New(http.StatusBadRequest, errTypeAttemptsExhausted,
			"Too many failed attempts. Please request a new code.")
	}

	if user.TwoFactorCodeHash == nil || !verifySecret(code, *user.TwoFactorCodeHash) {
		attempts, err := s.repo.IncrementTwoFactorAttempts(ctx, sessionID)
		if err != nil {
			// Challenge vanished between the read and the increment --
			// another request already resolved it.
			return uuid.Nil, apperror.New(http.StatusBadRequest, errTypeInvalidSession, "Invalid or expired session")
		}

		// Every wrong code reports the remaining budget, the last one as
		// "0 attempts remaining". Exhaustion is declared by the entry
		// check on the next submission, whatever code it carries.
		remaining := s.maxAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		return uuid.Nil, apperror.New(http.StatusBadRequest, errTypeInvalidCode,
			fmt.Sprintf("Invalid verification code. %d attempts remaining.", remaining))
	}

	// Code verified. Clearing the challenge makes both the code and the
	// session single use.
	if err := s.repo.ClearTwoFactorChallenge(ctx, user.ID); err != nil {
		return uuid.Nil, apperror.NewInternal(fmt.Errorf("clearing 2fa challenge: %w", err))
	}

	return user.ID, nil
}

// Resend invalidates the pending challenge and issues a fresh one with a new
// code and session ID. The old session can't be answered afterwards. Resends
// share the attempt budget with verification, so a session that burned its
// attempts can't be refreshed either.
func (s *TwoFactorService) Resend(ctx context.Context, sessionID string) (string, error) {
	user, err := s.repo.FindByTwoFactorSession(ctx, sessionID)
	if err != nil {
		return "", apperror.New(http.StatusBadRequest, errTypeInvalidSession, "Invalid or expired session")
	}

	if user.TwoFactorCodeExpiry == nil || user.TwoFactorCodeExpiry.Before(time.Now()) {
		s.clearChallenge(ctx, user.ID)
		return "", apperror.New(http.StatusBadRequest, errTypeSessionExpired,
			"Session has expired. Please login again.")
	}

	if user.TwoFactorAttempts >= s.maxAttempts {
		s.clearChallenge(ctx, user.ID)
		return "", apperror.New(http.StatusBadRequest, errTypeAttemptsExhausted,
			"Too many resend attempts. Please login again.")
	}

	if err := s.repo.ClearTwoFactorChallenge(ctx, user.ID); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("clearing 2fa challenge: %w", err))
	}

	return s.Initiate(ctx, user.ID)
}

// IsSessionValid reports whether a challenge session is still answerable:
// it exists, hasn't expired, and has attempts left. Never mutates state.
func (s *TwoFactorService) IsSessionValid(ctx context.Context, sessionID string) bool {
	user, err := s.repo.FindByTwoFactorSession(ctx, sessionID)
	if err != nil {
		return false
	}
	if user.TwoFactorCodeExpiry == nil || user.TwoFactorCodeExpiry.Before(time.Now()) {
		return false
	}
	return user.TwoFactorAttempts < s.maxAttempts
}

// clearChallenge wipes challenge state, logging rather than failing when the
// cleanup itself errors. The caller is already returning a challenge error.
func (s *TwoFactorService) clearChallenge(ctx context.Context, userID uuid.UUID) {
	if err := s.repo.ClearTwoFactorChallenge(ctx, userID); err != nil {
		slog.Warn("clearing 2fa challenge failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err),
		)
	}
}

// generateCode produces a 6-digit code uniformly distributed over
// [100000, 999999] using crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
