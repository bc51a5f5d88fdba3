package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// perPage is the number of audit entries returned per page.
const perPage = 50

// Service records security events and serves the admin event feed. It
// implements auth.AuditRecorder.
//
// Recording is fire-and-forget: a failed write is logged and swallowed so an
// audit outage can never lock users out of authentication. Every event is
// also mirrored to slog, which keeps a trace even when the database write
// was the thing that failed.
type Service struct {
	repo Repository
}

// NewService creates the audit service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// --- auth.AuditRecorder ---

func (s *Service) LoginSuccess(ctx context.Context, username string, userID uuid.UUID, ip string) {
	s.record(ctx, &Entry{
		Action:    ActionLoginSuccess,
		Username:  username,
		UserID:    &userID,
		IPAddress: ip,
	})
}

func (s *Service) LoginFailure(ctx context.Context, username, reason, ip string) {
	s.record(ctx, &Entry{
		Action:    ActionLoginFailure,
		Username:  username,
		Reason:    reason,
		IPAddress: ip,
	})
}

func (s *Service) TokenIssued(ctx context.Context, username string, userID uuid.UUID, ip string) {
	s.record(ctx, &Entry{
		Action:    ActionTokenIssued,
		Username:  username,
		UserID:    &userID,
		IPAddress: ip,
	})
}

func (s *Service) TokenRefreshed(ctx context.Context, username string, userID uuid.UUID, ip string) {
	s.record(ctx, &Entry{
		Action:    ActionTokenRefresh,
		Username:  username,
		UserID:    &userID,
		IPAddress: ip,
	})
}

func (s *Service) TokenValidationFailure(ctx context.Context, reason, ip string) {
	s.record(ctx, &Entry{
		Action:    ActionTokenValidationFailure,
		Reason:    reason,
		IPAddress: ip,
	})
}

func (s *Service) UnauthorizedAccess(ctx context.Context, username, path, ip string) {
	s.record(ctx, &Entry{
		Action:    ActionUnauthorizedAccess,
		Username:  username,
		Reason:    path,
		IPAddress: ip,
	})
}

// VerificationReview records an admin decision on a supplier verification.
// The review workflow lives in the verification module; this is the hook it
// calls to land its decisions in the shared audit trail.
func (s *Service) VerificationReview(ctx context.Context, username string, userID uuid.UUID, decision, ip string) {
	s.record(ctx, &Entry{
		Action:    ActionVerificationReview,
		Username:  username,
		UserID:    &userID,
		Reason:    decision,
		IPAddress: ip,
	})
}

// --- Event feed ---

// ListEvents returns a page of recent audit entries, most recent first.
func (s *Service) ListEvents(ctx context.Context, page int) ([]Entry, int, error) {
	if page < 1 {
		page = 1
	}
	return s.repo.List(ctx, perPage, (page-1)*perPage)
}

// record persists an entry and mirrors it to the structured log. Write
// failures are logged, never returned.
func (s *Service) record(ctx context.Context, entry *Entry) {
	attrs := []slog.Attr{
		slog.String("action", entry.Action),
		slog.String("ip", entry.IPAddress),
	}
	if entry.Username != "" {
		attrs = append(attrs, slog.String("username", entry.Username))
	}
	if entry.UserID != nil {
		attrs = append(attrs, slog.String("user_id", entry.UserID.String()))
	}
	if entry.Reason != "" {
		attrs = append(attrs, slog.String("reason", entry.Reason))
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "auth audit", attrs...)

	if err := s.repo.Insert(ctx, entry); err != nil {
		slog.Error("writing audit entry failed",
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
	}
}
