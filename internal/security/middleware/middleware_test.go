package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/repository"
	"github.com/yourorg/gatekeeper/internal/security"
	"github.com/yourorg/gatekeeper/internal/security/audit"
	"github.com/yourorg/gatekeeper/internal/security/auth"
)

type recordingToucher struct {
	touched []string
}

func (rt *recordingToucher) TouchSession(_ context.Context, sessionID string) error {
	rt.touched = append(rt.touched, sessionID)
	return nil
}

func newTestGuard(t *testing.T) (*security.Guard, *auth.TokenManager, *repository.MemoryUserRepository) {
	t.Helper()

	log := slog.Default()
	users := repository.NewMemoryUserRepository()
	tokens := auth.NewTokenManager("test-secret", "gatekeeper", 0, 0)
	guard := security.NewGuard(tokens, users, audit.NewLogger(log), log)
	return guard, tokens, users
}

func addUser(t *testing.T, users *repository.MemoryUserRepository, username string, role domain.Role, status domain.Status) {
	t.Helper()
	err := users.Create(context.Background(), &domain.User{
		ID:          "id-" + username,
		Username:    username,
		Email:       username + "@example.com",
		Role:        role,
		Status:      status,
		Permissions: domain.PermissionsFor(role),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func okHandler(t *testing.T, sawUser **domain.User) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*sawUser = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateInstallsUser(t *testing.T) {
	guard, tokens, users := newTestGuard(t)
	addUser(t, users, "dana", domain.RoleEngineer, domain.StatusActive)

	token, err := tokens.IssueAccessToken("dana", domain.RoleEngineer)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	toucher := &recordingToucher{}
	var saw *domain.User
	h := Authenticate(guard, toucher, slog.Default())(okHandler(t, &saw))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if saw == nil || saw.Username != "dana" {
		t.Fatalf("user in context = %+v, want dana", saw)
	}
	if len(toucher.touched) != 1 || toucher.touched[0] != "sess-1" {
		t.Fatalf("touched = %v, want [sess-1]", toucher.touched)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	guard, tokens, users := newTestGuard(t)
	addUser(t, users, "dana", domain.RoleEngineer, domain.StatusActive)

	expiredClock := time.Now().Add(-time.Hour)
	expiredTokens := auth.NewTokenManager("test-secret", "gatekeeper", time.Minute, time.Minute).
		WithClock(func() time.Time { return expiredClock })
	expired, err := expiredTokens.IssueAccessToken("dana", domain.RoleEngineer)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	refresh, err := tokens.IssueRefreshToken("dana", domain.RoleEngineer)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"refresh token on api route", "Bearer " + refresh, http.StatusUnauthorized},
	}

	h := Authenticate(guard, nil, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with invalid credentials")
	}))

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestAuthenticateRejectsSuspendedUser(t *testing.T) {
	guard, tokens, users := newTestGuard(t)
	addUser(t, users, "dana", domain.RoleEngineer, domain.StatusActive)

	token, err := tokens.IssueAccessToken("dana", domain.RoleEngineer)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	// Suspension after issuance invalidates the otherwise-valid token.
	if err := users.UpdateStatus(context.Background(), "dana", domain.StatusSuspended); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	h := Authenticate(guard, nil, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached for suspended user")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRequirePermissionUsesCurrentRole(t *testing.T) {
	guard, tokens, users := newTestGuard(t)
	addUser(t, users, "dana", domain.RoleViewer, domain.StatusActive)

	token, err := tokens.IssueAccessToken("dana", domain.RoleViewer)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	var saw *domain.User
	h := Authenticate(guard, nil, slog.Default())(
		RequirePermission(guard, domain.PermUserManage)(okHandler(t, &saw)))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer: status = %d, want 403", rec.Code)
	}

	// Promote the user. The old token still names role=viewer, but
	// authorization must follow the directory, not the token or the
	// stored snapshot.
	role := domain.RoleSuperAdmin
	stored, err := users.GetByUsername(context.Background(), "dana")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	stored.Role = role
	if err := users.Update(context.Background(), stored); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("super_admin: status = %d, want 200", rec.Code)
	}
}

func TestRequireAnyRole(t *testing.T) {
	guard, tokens, users := newTestGuard(t)
	addUser(t, users, "dana", domain.RoleEngineer, domain.StatusActive)
	addUser(t, users, "root", domain.RoleSuperAdmin, domain.StatusActive)

	var saw *domain.User
	h := Authenticate(guard, nil, slog.Default())(
		RequireAnyRole(guard, domain.RoleAdmin, domain.RoleSuperAdmin)(okHandler(t, &saw)))

	for _, tc := range []struct {
		username string
		role     domain.Role
		want     int
	}{
		{"dana", domain.RoleEngineer, http.StatusForbidden},
		{"root", domain.RoleSuperAdmin, http.StatusOK},
	} {
		token, err := tokens.IssueAccessToken(tc.username, tc.role)
		if err != nil {
			t.Fatalf("IssueAccessToken: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/security/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.username, rec.Code, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	if got := ClientIP(req); got != "192.0.2.7" {
		t.Fatalf("remote addr: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Fatalf("forwarded: got %q", got)
	}
}
