// Package audit provides the authentication audit trail. Every security
// event -- login attempts, token issuance and refresh, validation failures,
// unauthorized access -- is captured as an Entry and persisted to the
// append-only auth_audit table, mirrored to the structured log.
//
// The audit service never fails the flow that produced the event: a lost
// audit row is logged and swallowed, never propagated.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering and display grouping.

const (
	// ActionLoginSuccess is logged when credentials verify and a 2FA
	// challenge is issued.
	ActionLoginSuccess = "login.success"

	// ActionLoginFailure is logged for unknown identifiers and wrong passwords.
	ActionLoginFailure = "login.failure"

	// ActionTokenIssued is logged when a completed 2FA challenge mints a
	// token pair.
	ActionTokenIssued = "token.issued"

	// ActionTokenRefresh is logged when a refresh token is exchanged for a
	// new pair.
	ActionTokenRefresh = "token.refresh"

	// ActionTokenValidationFailure is logged for rejected or unusable
	// tokens on any endpoint.
	ActionTokenValidationFailure = "token.validation_failure"

	// ActionUnauthorizedAccess is logged when a request reaches a route its
	// identity does not permit.
	ActionUnauthorizedAccess = "access.unauthorized"

	// ActionVerificationReview is logged when an admin reviews a supplier
	// verification.
	ActionVerificationReview = "verification.review"
)

// Entry represents a single recorded security event. UserID is nil for
// events without a resolved account (failed logins, anonymous token abuse).
type Entry struct {
	ID        int64      `json:"id"`
	Action    string     `json:"action"`
	Username  string     `json:"username,omitempty"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
