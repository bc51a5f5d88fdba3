package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/supplygate/backend/internal/apperror"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	createFn                     func(ctx context.Context, user *User) error
	findByIDFn                   func(ctx context.Context, id uuid.UUID) (*User, error)
	findByIdentifierFn           func(ctx context.Context, identifier string) (*User, error)
	usernameOrEmailExistsFn      func(ctx context.Context, username, email string) (bool, error)
	findByTwoFactorSessionFn     func(ctx context.Context, sessionID string) (*User, error)
	saveTwoFactorChallengeFn     func(ctx context.Context, userID uuid.UUID, codeHash, sessionID string, expiresAt time.Time) error
	incrementTwoFactorAttemptsFn func(ctx context.Context, sessionID string) (int, error)
	clearTwoFactorChallengeFn    func(ctx context.Context, userID uuid.UUID) error
	findByResetTokenFn           func(ctx context.Context, token string) (*User, error)
	saveResetTokenFn             func(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	clearResetTokenFn            func(ctx context.Context, userID uuid.UUID) error
	updatePasswordFn             func(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if m.findByIdentifierFn != nil {
		return m.findByIdentifierFn(ctx, identifier)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) UsernameOrEmailExists(ctx context.Context, username, email string) (bool, error) {
	if m.usernameOrEmailExistsFn != nil {
		return m.usernameOrEmailExistsFn(ctx, username, email)
	}
	return false, nil
}

func (m *mockUserRepo) FindByTwoFactorSession(ctx context.Context, sessionID string) (*User, error) {
	if m.findByTwoFactorSessionFn != nil {
		return m.findByTwoFactorSessionFn(ctx, sessionID)
	}
	return nil, apperror.NewNotFound("no challenge for session")
}

func (m *mockUserRepo) SaveTwoFactorChallenge(ctx context.Context, userID uuid.UUID, codeHash, sessionID string, expiresAt time.Time) error {
	if m.saveTwoFactorChallengeFn != nil {
		return m.saveTwoFactorChallengeFn(ctx, userID, codeHash, sessionID, expiresAt)
	}
	return nil
}

func (m *mockUserRepo) IncrementTwoFactorAttempts(ctx context.Context, sessionID string) (int, error) {
	if m.incrementTwoFactorAttemptsFn != nil {
		return m.incrementTwoFactorAttemptsFn(ctx, sessionID)
	}
	return 1, nil
}

func (m *mockUserRepo) ClearTwoFactorChallenge(ctx context.Context, userID uuid.UUID) error {
	if m.clearTwoFactorChallengeFn != nil {
		return m.clearTwoFactorChallengeFn(ctx, userID)
	}
	return nil
}

func (m *mockUserRepo) FindByResetToken(ctx context.Context, token string) (*User, error) {
	if m.findByResetTokenFn != nil {
		return m.findByResetTokenFn(ctx, token)
	}
	return nil, apperror.NewNotFound("invalid or expired reset token")
}

func (m *mockUserRepo) SaveResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	if m.saveResetTokenFn != nil {
		return m.saveResetTokenFn(ctx, userID, token, expiresAt)
	}
	return nil
}

func (m *mockUserRepo) ClearResetToken(ctx context.Context, userID uuid.UUID) error {
	if m.clearResetTokenFn != nil {
		return m.clearResetTokenFn(ctx, userID)
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, userID, passwordHash)
	}
	return nil
}

// --- Mock Mail Sender ---

// mockMailSender implements mail.Sender for testing.
type mockMailSender struct {
	send2FAFn   func(ctx context.Context, to, code string) error
	sendResetFn func(ctx context.Context, to, token string) error
	// Capture fields for assertions.
	lastTo    string
	lastCode  string
	lastToken string
	sendCount int
}

func (m *mockMailSender) Send2FACode(ctx context.Context, to, code string) error {
	m.lastTo = to
	m.lastCode = code
	m.sendCount++
	if m.send2FAFn != nil {
		return m.send2FAFn(ctx, to, code)
	}
	return nil
}

func (m *mockMailSender) SendPasswordReset(ctx context.Context, to, token string) error {
	m.lastTo = to
	m.lastToken = token
	m.sendCount++
	if m.sendResetFn != nil {
		return m.sendResetFn(ctx, to, token)
	}
	return nil
}

// --- Mock Audit Recorder ---

// mockAudit records which audit events fired. All methods are no-ops that
// count invocations.
type mockAudit struct {
	loginSuccesses     int
	loginFailures      int
	tokensIssued       int
	tokensRefreshed    int
	validationFailures int
	unauthorized       int
}

func (m *mockAudit) LoginSuccess(ctx context.Context, username string, userID uuid.UUID, ip string) {
	m.loginSuccesses++
}

func (m *mockAudit) LoginFailure(ctx context.Context, username, reason, ip string) {
	m.loginFailures++
}

func (m *mockAudit) TokenIssued(ctx context.Context, username string, userID uuid.UUID, ip string) {
	m.tokensIssued++
}

func (m *mockAudit) TokenRefreshed(ctx context.Context, username string, userID uuid.UUID, ip string) {
	m.tokensRefreshed++
}

func (m *mockAudit) TokenValidationFailure(ctx context.Context, reason, ip string) {
	m.validationFailures++
}

func (m *mockAudit) UnauthorizedAccess(ctx context.Context, username, path, ip string) {
	m.unauthorized++
}

// --- Test Helpers ---

// errNotFoundForTest mirrors what repositories return for missing rows.
func errNotFoundForTest() error {
	return apperror.NewNotFound("not found")
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// assertErrType checks the machine-readable error classifier.
func assertErrType(t *testing.T, err error, expectedType string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of type %q, got nil", expectedType)
	}
	if got := apperror.TypeOf(err); got != expectedType {
		t.Errorf("expected error type %q, got %q (error: %v)", expectedType, got, err)
	}
}
