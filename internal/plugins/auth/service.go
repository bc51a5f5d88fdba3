package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supplygate/backend/internal/apperror"
)

// Authentication error types.
const (
	errTypeBadCredentials   = "bad_credentials"
	errTypeInvalidToken     = "invalid_token"
	errTypeTokenExpired     = "token_expired"
	errTypeNotAuthenticated = "not_authenticated"
	errTypeUserVanished     = "user_vanished"
)

// AuditRecorder receives security events from the auth flows. The audit
// plugin implements it; defining the contract here keeps auth free of a
// dependency on audit. Implementations must never fail the calling flow.
type AuditRecorder interface {
	LoginSuccess(ctx context.Context, username string, userID uuid.UUID, ip string)
	LoginFailure(ctx context.Context, username, reason, ip string)
	TokenIssued(ctx context.Context, username string, userID uuid.UUID, ip string)
	TokenRefreshed(ctx context.Context, username string, userID uuid.UUID, ip string)
	TokenValidationFailure(ctx context.Context, reason, ip string)
	UnauthorizedAccess(ctx context.Context, username, path, ip string)
}

// AuthService orchestrates the authentication flows: password login, 2FA
// completion, token refresh, and registration. Handlers call these methods
// -- they never touch the repository directly.
type AuthService struct {
	repo      UserRepository
	codec     *TokenCodec
	twoFactor *TwoFactorService
	audit     AuditRecorder
	accessTTL time.Duration
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, codec *TokenCodec, twoFactor *TwoFactorService, audit AuditRecorder, accessTTL time.Duration) *AuthService {
	return &AuthService{
		repo:      repo,
		codec:     codec,
		twoFactor: twoFactor,
		audit:     audit,
		accessTTL: accessTTL,
	}
}

// Login verifies credentials and issues a two-factor challenge. It NEVER
// returns tokens: every login, without exception, must complete email
// verification first. The identifier matches username or email.
func (s *AuthService) Login(ctx context.Context, identifier, password, ip string) (*TwoFactorChallenge, error) {
	identifier = strings.TrimSpace(identifier)
	password = normalizePassword(password)

	user, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		s.audit.LoginFailure(ctx, identifier, "user not found", ip)
		// Same message whether the account exists or the password is wrong.
		return nil, apperror.New(http.StatusUnauthorized, errTypeBadCredentials, "Invalid username or password")
	}

	if !verifySecret(password, user.PasswordHash) {
		s.audit.LoginFailure(ctx, identifier, "wrong password", ip)
		return nil, apperror.New(http.StatusUnauthorized, errTypeBadCredentials, "Invalid username or password")
	}

	sessionID, err := s.twoFactor.Initiate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.audit.LoginSuccess(ctx, user.Username, user.ID, ip)

	return &TwoFactorChallenge{
		Requires2FA: true,
		SessionID:   sessionID,
		UserID:      user.ID,
		Username:    user.Username,
		Message:     "Please check your email for the verification code to complete login.",
	}, nil
}

// CompleteTwoFactor answers a pending challenge and, on success, mints the
// token pair. This is the only place tokens are issued from credentials.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, sessionID, code, ip string) (*AuthResult, error) {
	userID, err := s.twoFactor.Verify(ctx, sessionID, code)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading user after 2fa: %w", err))
	}

	access, refresh, err := s.codec.IssuePair(user.Username, user.ID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	s.audit.TokenIssued(ctx, user.Username, user.ID, ip)

	return s.authResult(user, access, refresh), nil
}

// Refresh exchanges a valid refresh token for a new token pair. Checks run
// in a fixed order so each failure is reported for what it is: signature,
// then expiry, then the refresh marker, then user resolution.
func (s *AuthService) Refresh(ctx context.Context, token, ip string) (*AuthResult, error) {
	claims, err := s.codec.Parse(token)
	if err != nil {
		s.audit.TokenValidationFailure(ctx, "refresh: invalid token", ip)
		return nil, apperror.New(http.StatusUnauthorized, errTypeInvalidToken, "Invalid refresh token")
	}

	if s.codec.IsExpired(token) {
		s.audit.TokenValidationFailure(ctx, "refresh: token expired", ip)
		return nil, apperror.New(http.StatusUnauthorized, errTypeTokenExpired,
			"Refresh token has expired. Please login again.")
	}

	if !s.codec.IsRefreshToken(token) {
		s.audit.TokenValidationFailure(ctx, "refresh: not a refresh token", ip)
		return nil, apperror.New(http.StatusUnauthorized, errTypeInvalidToken, "Not a refresh token")
	}

	user, err := s.resolveTokenUser(ctx, claims)
	if err != nil {
		s.audit.TokenValidationFailure(ctx, "refresh: user not found", ip)
		return nil, apperror.New(http.StatusUnauthorized, errTypeInvalidToken, "Invalid refresh token")
	}

	access, refresh, err := s.codec.IssuePair(user.Username, user.ID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	s.audit.TokenRefreshed(ctx, user.Username, user.ID, ip)

	return s.authResult(user, access, refresh), nil
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	role, ok := ParseRole(req.UserType)
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("Unknown user type: %s", req.UserType))
	}

	// Company accounts must identify their organization.
	companyName := strings.TrimSpace(req.CompanyName)
	if (role == RoleIndustryWorker || role == RoleClient) && companyName == "" {
		return nil, apperror.NewValidation("Company/organization name is required for industry workers.")
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" {
		return nil, apperror.NewValidation("Username and email are required")
	}

	if err := validatePasswordComplexity(req.Password); err != nil {
		return nil, err
	}

	// Check for duplicates before doing expensive hashing.
	exists, err := s.repo.UsernameOrEmailExists(ctx, username, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking duplicates: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("An account with this username or email already exists")
	}

	hash, err := hashSecret(req.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		CreatedAt:    time.Now().UTC(),
	}
	if companyName != "" {
		user.CompanyName = &companyName
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID.String()),
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// resolveTokenUser loads the user a token belongs to. Prefers the userId
// claim; tokens from before that claim existed fall back to a subject
// lookup by username.
func (s *AuthService) resolveTokenUser(ctx context.Context, claims *Claims) (*User, error) {
	if userID := parseUserIDClaim(claims); userID != uuid.Nil {
		return s.repo.FindByID(ctx, userID)
	}
	return s.repo.FindByIdentifier(ctx, claims.Subject)
}

// authResult packages a token pair into the response DTO.
func (s *AuthService) authResult(user *User, access, refresh string) *AuthResult {
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		UserID:       user.ID,
		Username:     user.Username,
		UserType:     user.Role,
	}
}

// parseUserIDClaim returns the userId claim as a UUID, or uuid.Nil when the
// claim is absent or malformed.
func parseUserIDClaim(claims *Claims) uuid.UUID {
	if claims.UserID == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// normalizePassword trims surrounding whitespace and strips one pair of
// enclosing double quotes. Some clients submit the password JSON-quoted; a
// password that legitimately starts and ends with a quote loses only the
// outer pair.
func normalizePassword(password string) string {
	password = strings.TrimSpace(password)
	if len(password) >= 2 && strings.HasPrefix(password, `"`) && strings.HasSuffix(password, `"`) {
		password = password[1 : len(password)-1]
	}
	return password
}
