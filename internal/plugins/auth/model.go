// Package auth handles authentication and authorization for the Supply Gate
// backend: password login with mandatory email two-factor verification, JWT
// access/refresh token issuance, password reset, and request-level identity
// resolution for all protected routes.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies a user account. Authorization decisions compare against
// these values.
type Role string

const (
	RoleSupplier       Role = "SUPPLIER"
	RoleIndustryWorker Role = "INDUSTRY_WORKER"
	RoleClient         Role = "CLIENT"
	RoleAdmin          Role = "ADMIN"
)

// ParseRole validates a role string. Returns false for anything outside the
// known set.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSupplier, RoleIndustryWorker, RoleClient, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// User represents a registered Supply Gate user. This is the domain model
// used throughout the application. Database scanning and JSON marshaling use
// this struct directly.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose in JSON responses.
	Role         Role      `json:"userType"`
	FirstName    string    `json:"firstname"`
	LastName     string    `json:"lastname"`
	PhoneNumber  string    `json:"phoneNumber"`
	CompanyName  *string   `json:"companyName,omitempty"`

	// Password reset state. Nil when no reset is pending.
	PasswordResetToken  *string    `json:"-"`
	PasswordResetExpiry *time.Time `json:"-"`

	// Two-factor challenge state. Nil when no challenge is pending.
	TwoFactorCodeHash   *string    `json:"-"`
	TwoFactorCodeExpiry *time.Time `json:"-"`
	TwoFactorSessionID  *string    `json:"-"`
	TwoFactorAttempts   int        `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the credentials submitted to the login endpoint. The
// username field accepts either a username or an email address.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Verify2FARequest holds the challenge answer submitted after login.
type Verify2FARequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

// ResendRequest asks for a fresh verification code on an existing challenge.
type ResendRequest struct {
	SessionID string `json:"sessionId"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RegisterRequest holds the data submitted to create a new account.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	UserType    string `json:"userType"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	PhoneNumber string `json:"phoneNumber"`
	CompanyName string `json:"companyName"`
}

// --- Response DTOs ---

// TwoFactorChallenge is returned by login. Authentication is never complete
// at this point; the client must verify the emailed code first.
type TwoFactorChallenge struct {
	Requires2FA bool      `json:"requires2FA"`
	SessionID   string    `json:"sessionId"`
	UserID      uuid.UUID `json:"userId"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
}

// AuthResult carries a freshly minted token pair. Returned by 2FA completion
// and by refresh.
type AuthResult struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int64     `json:"expiresIn"` // Access token lifetime in seconds.
	UserID       uuid.UUID `json:"userId"`
	Username     string    `json:"username"`
	UserType     Role      `json:"userType"`
}

// Principal is the resolved identity attached to an authenticated request.
type Principal struct {
	Username string
	UserID   uuid.UUID // uuid.Nil for tokens minted before the userId claim existed.
	RawToken string
}
