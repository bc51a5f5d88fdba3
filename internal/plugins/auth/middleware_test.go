package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/supplygate/backend/internal/apperror"
)

// newTestServer builds an Echo instance with the identity middleware applied
// and a protected probe route that resolves the current user.
func newTestServer(t *testing.T, repo *mockUserRepo) (*echo.Echo, *AuthService, *mockAudit) {
	t.Helper()
	svc, audit := newTestAuthService(t, repo, &mockMailSender{})

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			_ = c.JSON(appErr.Code, appErr)
			return
		}
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"message": "internal"})
	}
	e.Use(svc.RequireAuth())

	e.GET("/api/profile", func(c echo.Context) error {
		user, err := svc.CurrentUser(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, user)
	})
	e.GET("/api/auth/validate-2fa-session", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	return e, svc, audit
}

func getWithToken(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAnonymousProtectedRequest(t *testing.T) {
	e, _, _ := newTestServer(t, &mockUserRepo{})

	rec := getWithToken(e, "/api/profile", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var body struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Type != "not_authenticated" {
		t.Errorf("expected not_authenticated, got %q", body.Type)
	}
}

func TestValidTokenResolvesPrincipal(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, errNotFoundForTest()
		},
	}
	e, svc, _ := newTestServer(t, repo)

	token, err := svc.codec.IssueAccess(user.Username, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := getWithToken(e, "/api/profile", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected alice, got %s", got.Username)
	}
}

func TestRefreshTokenRejectedAsBearer(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}
	e, svc, audit := newTestServer(t, repo)

	// A refresh token is valid and unexpired, but still must not grant
	// API access.
	refresh, err := svc.codec.IssueRefresh(user.Username, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := getWithToken(e, "/api/profile", refresh)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var body struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Type != "invalid_token" {
		t.Errorf("expected invalid_token, got %q", body.Type)
	}
	if audit.validationFailures != 1 {
		t.Errorf("expected 1 validation failure event, got %d", audit.validationFailures)
	}
}

func TestGarbageTokenTreatedAsAnonymous(t *testing.T) {
	e, _, audit := newTestServer(t, &mockUserRepo{})

	rec := getWithToken(e, "/api/profile", "not.a.jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if audit.validationFailures != 1 {
		t.Errorf("expected 1 validation failure event, got %d", audit.validationFailures)
	}
}

func TestExpiredTokenTreatedAsAnonymous(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}
	e, _, _ := newTestServer(t, repo)

	expiredCodec := NewTokenCodec("test-secret-key", -time.Minute, -time.Minute)
	token, err := expiredCodec.IssueAccess(user.Username, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := getWithToken(e, "/api/profile", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPublicPathSkipsAuth(t *testing.T) {
	e, _, _ := newTestServer(t, &mockUserRepo{})

	rec := getWithToken(e, "/api/auth/validate-2fa-session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on public path, got %d", rec.Code)
	}
}

func TestCurrentUserVanished(t *testing.T) {
	// A principal resolved earlier whose account has since been deleted.
	svc, _ := newTestAuthService(t, &mockUserRepo{}, &mockMailSender{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set(contextKeyPrincipal, &Principal{Username: "ghost", UserID: uuid.New()})

	_, err := svc.CurrentUser(c)
	assertErrType(t, err, "user_vanished")
	assertAppError(t, err, 401)
}

func TestCurrentUserLegacyPrincipalFallsBackToUsername(t *testing.T) {
	user := accountUser(t, "Sufficient1")
	var lookedUp string
	repo := &mockUserRepo{
		findByIdentifierFn: func(ctx context.Context, identifier string) (*User, error) {
			lookedUp = identifier
			return user, nil
		},
	}
	svc, _ := newTestAuthService(t, repo, &mockMailSender{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set(contextKeyPrincipal, &Principal{Username: "alice", UserID: uuid.Nil})

	got, err := svc.CurrentUser(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("wrong user resolved")
	}
	if lookedUp != "alice" {
		t.Errorf("expected username lookup, got %q", lookedUp)
	}
}

func TestRequireRole(t *testing.T) {
	admin := accountUser(t, "Sufficient1")
	admin.Role = RoleAdmin
	supplier := accountUser(t, "Sufficient1")
	supplier.Username = "bob"
	supplier.ID = uuid.New()
	supplier.Role = RoleSupplier

	users := map[uuid.UUID]*User{admin.ID: admin, supplier.ID: supplier}
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*User, error) {
			if u, ok := users[id]; ok {
				return u, nil
			}
			return nil, errNotFoundForTest()
		},
	}
	_, svc, audit := newTestServer(t, repo)

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			_ = c.JSON(appErr.Code, appErr)
			return
		}
		_ = c.JSON(http.StatusInternalServerError, nil)
	}
	e.Use(svc.RequireAuth())
	e.GET("/api/admin/thing", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, svc.RequireRole(RoleAdmin))

	adminToken, err := svc.codec.IssueAccess(admin.Username, admin.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	supplierToken, err := svc.codec.IssueAccess(supplier.Username, supplier.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec := getWithToken(e, "/api/admin/thing", adminToken); rec.Code != http.StatusOK {
		t.Errorf("admin expected 200, got %d", rec.Code)
	}

	rec := getWithToken(e, "/api/admin/thing", supplierToken)
	if rec.Code != http.StatusForbidden {
		t.Errorf("supplier expected 403, got %d", rec.Code)
	}
	var body struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Type != "role_mismatch" {
		t.Errorf("expected role_mismatch, got %q", body.Type)
	}
	if audit.unauthorized == 0 {
		t.Error("expected an unauthorized access event")
	}

	// No token at all is a 401, not a 403.
	if rec := getWithToken(e, "/api/admin/thing", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous expected 401, got %d", rec.Code)
	}
}
