package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestAuthService wires an AuthService over mocks. The returned audit
// recorder can be inspected for recorded events.
func newTestAuthService(t *testing.T, repo *mockUserRepo, sender *mockMailSender) (*AuthService, *mockAudit) {
	t.Helper()
	audit := &mockAudit{}
	codec := newTestCodec()
	twoFactor := NewTwoFactorService(repo, sender, 10*time.Minute, 5)
	svc := NewAuthService(repo, codec, twoFactor, audit, 30*time.Minute)
	return svc, audit
}

// accountUser builds a user with the given password hashed for real.
func accountUser(t *testing.T, password string) *User {
	t.Helper()
	hash, err := hashSecret(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	return &User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Role:         RoleSupplier,
	}
}

func TestLoginNeverReturnsTokens(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIdentifierFn: func(ctx context.Context, identifier string) (*User, error) {
			return user, nil
		},
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}

	svc, audit := newTestAuthService(t, repo, &mockMailSender{})
	challenge, err := svc.Login(context.Background(), "alice", "Sufficient1", "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !challenge.Requires2FA {
		t.Error("login must always demand two-factor verification")
	}
	if challenge.SessionID == "" {
		t.Error("expected a challenge session ID")
	}
	if challenge.UserID != user.ID {
		t.Errorf("expected user ID %s, got %s", user.ID, challenge.UserID)
	}
	if challenge.Username != "alice" {
		t.Errorf("expected username alice, got %s", challenge.Username)
	}
	if audit.loginSuccesses != 1 {
		t.Errorf("expected 1 login success event, got %d", audit.loginSuccesses)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, audit := newTestAuthService(t, &mockUserRepo{}, &mockMailSender{})

	_, err := svc.Login(context.Background(), "nobody", "whatever1", "1.2.3.4")
	assertErrType(t, err, "bad_credentials")
	assertAppError(t, err, 401)
	if audit.loginFailures != 1 {
		t.Errorf("expected 1 login failure event, got %d", audit.loginFailures)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIdentifierFn: func(ctx context.Context, identifier string) (*User, error) {
			return user, nil
		},
	}

	svc, _ := newTestAuthService(t, repo, &mockMailSender{})
	_, err := svc.Login(context.Background(), "alice", "WrongPass1", "1.2.3.4")
	assertErrType(t, err, "bad_credentials")
}

func TestLoginByEmailIdentifier(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	var lookedUp string
	repo := &mockUserRepo{
		findByIdentifierFn: func(ctx context.Context, identifier string) (*User, error) {
			lookedUp = identifier
			return user, nil
		},
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}

	svc, _ := newTestAuthService(t, repo, &mockMailSender{})
	if _, err := svc.Login(context.Background(), "alice@example.com", "Sufficient1", "1.2.3.4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookedUp != "alice@example.com" {
		t.Errorf("expected email lookup, got %q", lookedUp)
	}
}

func TestLoginNormalizesQuotedPassword(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIdentifierFn: func(ctx context.Context, identifier string) (*User, error) {
			return user, nil
		},
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}

	svc, _ := newTestAuthService(t, repo, &mockMailSender{})
	// Whitespace and a single pair of enclosing quotes are stripped.
	if _, err := svc.Login(context.Background(), "alice", `  "Sufficient1"  `, "1.2.3.4"); err != nil {
		t.Fatalf("quoted password rejected: %v", err)
	}
}

func TestNormalizePassword(t *testing.T) {
	cases := []struct{ in, want string }{
		{`secret1`, `secret1`},
		{`  secret1  `, `secret1`},
		{`"secret1"`, `secret1`},
		{`""secret1""`, `"secret1"`}, // Only one pair is stripped.
		{`"`, `"`},                   // Lone quote survives.
		{`"unbalanced`, `"unbalanced`},
	}
	for _, tc := range cases {
		if got := normalizePassword(tc.in); got != tc.want {
			t.Errorf("normalizePassword(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompleteTwoFactorIssuesTokenPair(t *testing.T) {
	user := challengeUser(t, "123456", time.Now().Add(5*time.Minute), 0)
	user.Role = RoleClient

	repo := &mockUserRepo{
		findByTwoFactorSessionFn: func(ctx context.Context, sessionID string) (*User, error) {
			return user, nil
		},
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}

	svc, audit := newTestAuthService(t, repo, &mockMailSender{})
	result, err := svc.CompleteTwoFactor(context.Background(), *user.TwoFactorSessionID, "123456", "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.TokenType != "Bearer" {
		t.Errorf("expected Bearer token type, got %s", result.TokenType)
	}
	if result.ExpiresIn != 1800 {
		t.Errorf("expected 1800s expiry, got %d", result.ExpiresIn)
	}
	if result.UserType != RoleClient {
		t.Errorf("expected CLIENT role, got %s", result.UserType)
	}
	if audit.tokensIssued != 1 {
		t.Errorf("expected 1 token issued event, got %d", audit.tokensIssued)
	}

	// Both tokens must verify and name the user.
	codec := svc.codec
	if sub, err := codec.ExtractSubject(result.AccessToken); err != nil || sub != "alice" {
		t.Errorf("access token subject = %q, err = %v", sub, err)
	}
	if codec.IsRefreshToken(result.AccessToken) {
		t.Error("access token carries refresh marker")
	}
	if !codec.IsRefreshToken(result.RefreshToken) {
		t.Error("refresh token missing refresh marker")
	}
	if got := codec.ExtractUserID(result.AccessToken); got != user.ID {
		t.Errorf("access token user ID = %s, want %s", got, user.ID)
	}
}

func TestCompleteTwoFactorWrongCode(t *testing.T) {
	user := challengeUser(t, "123456", time.Now().Add(5*time.Minute), 0)
	repo := &mockUserRepo{
		findByTwoFactorSessionFn: func(ctx context.Context, sessionID string) (*User, error) {
			return user, nil
		},
	}

	svc, audit := newTestAuthService(t, repo, &mockMailSender{})
	_, err := svc.CompleteTwoFactor(context.Background(), *user.TwoFactorSessionID, "999999", "1.2.3.4")
	assertErrType(t, err, "invalid_code")
	if audit.tokensIssued != 0 {
		t.Error("no tokens may be issued for a failed challenge")
	}
}

func TestRefreshMintsNewPair(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, errNotFoundForTest()
		},
	}

	svc, audit := newTestAuthService(t, repo, &mockMailSender{})
	refresh, err := svc.codec.IssueRefresh(user.Username, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Refresh(context.Background(), refresh, "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Error("expected a full token pair")
	}
	if result.RefreshToken == refresh {
		t.Error("refresh must mint a NEW refresh token")
	}
	if audit.tokensRefreshed != 1 {
		t.Errorf("expected 1 refresh event, got %d", audit.tokensRefreshed)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}

	svc, audit := newTestAuthService(t, repo, &mockMailSender{})
	access, err := svc.codec.IssueAccess(user.Username, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Refresh(context.Background(), access, "1.2.3.4")
	assertErrType(t, err, "invalid_token")
	if audit.validationFailures != 1 {
		t.Errorf("expected 1 validation failure event, got %d", audit.validationFailures)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{}, &mockMailSender{})

	_, err := svc.Refresh(context.Background(), "not.a.token", "1.2.3.4")
	assertErrType(t, err, "invalid_token")
	assertAppError(t, err, 401)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	svc, _ := newTestAuthService(t, &mockUserRepo{}, &mockMailSender{})

	// Same key, negative TTL: correctly signed but already expired.
	expiredCodec := NewTokenCodec("test-secret-key", -time.Minute, -time.Minute)
	refresh, err := expiredCodec.IssueRefresh(user.Username, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Refresh(context.Background(), refresh, "1.2.3.4")
	assertErrType(t, err, "token_expired")
}

func TestRefreshLegacyTokenFallsBackToSubject(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	var lookedUp string
	repo := &mockUserRepo{
		findByIdentifierFn: func(ctx context.Context, identifier string) (*User, error) {
			lookedUp = identifier
			return user, nil
		},
	}

	svc, _ := newTestAuthService(t, repo, &mockMailSender{})

	// Legacy tokens carry a nil userId, which resolves to no claim at all.
	refresh, err := svc.codec.IssueRefresh(user.Username, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Refresh(context.Background(), refresh, "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookedUp != user.Username {
		t.Errorf("expected subject fallback lookup for %q, got %q", user.Username, lookedUp)
	}

	// The replacement tokens carry the real user ID going forward.
	if got := svc.codec.ExtractUserID(result.AccessToken); got != user.ID {
		t.Errorf("new access token user ID = %s, want %s", got, user.ID)
	}
}

func TestRegisterValidRoles(t *testing.T) {
	var created *User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *User) error {
			created = user
			return nil
		},
	}

	svc, _ := newTestAuthService(t, repo, &mockMailSender{})
	user, err := svc.Register(context.Background(), RegisterRequest{
		Username:  "bob",
		Email:     "Bob@Example.com",
		Password:  "Sufficient1",
		UserType:  "SUPPLIER",
		FirstName: "Bob",
		LastName:  "Jones",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "bob@example.com" {
		t.Errorf("email not normalized: %s", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "Sufficient1" {
		t.Error("password not hashed")
	}
	if created == nil {
		t.Fatal("user never persisted")
	}
	if created.ID == uuid.Nil {
		t.Error("expected generated user ID")
	}
}

func TestRegisterUnknownRole(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{}, &mockMailSender{})
	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "Sufficient1",
		UserType: "WIZARD",
	})
	assertAppError(t, err, 400)
}

func TestRegisterCompanyRequiredForCompanyRoles(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{}, &mockMailSender{})

	for _, role := range []string{"INDUSTRY_WORKER", "CLIENT"} {
		_, err := svc.Register(context.Background(), RegisterRequest{
			Username: "bob",
			Email:    "bob@example.com",
			Password: "Sufficient1",
			UserType: role,
		})
		assertAppError(t, err, 400)
	}

	// SUPPLIER has no company requirement.
	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "Sufficient1",
		UserType: "SUPPLIER",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	repo := &mockUserRepo{
		usernameOrEmailExistsFn: func(ctx context.Context, username, email string) (bool, error) {
			return true, nil
		},
	}

	svc, _ := newTestAuthService(t, repo, &mockMailSender{})
	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "Sufficient1",
		UserType: "SUPPLIER",
	})
	assertAppError(t, err, 409)
}

func TestRegisterWeakPassword(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{}, &mockMailSender{})
	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "password123",
		UserType: "SUPPLIER",
	})
	assertErrType(t, err, "weak_password")
}
