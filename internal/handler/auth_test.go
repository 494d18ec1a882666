package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/repository"
	"github.com/yourorg/gatekeeper/internal/security"
	"github.com/yourorg/gatekeeper/internal/security/audit"
	"github.com/yourorg/gatekeeper/internal/security/auth"
	"github.com/yourorg/gatekeeper/internal/security/lockout"
	"github.com/yourorg/gatekeeper/internal/security/middleware"
	"github.com/yourorg/gatekeeper/internal/service"
)

// newTestServer wires the auth routes the way cmd/server does, on in-memory
// backends.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.Default()
	users := repository.NewMemoryUserRepository()
	sessions := repository.NewMemorySessionRepository()
	tokens := auth.NewTokenManager("test-secret", "gatekeeper", 0, 0)
	lockGuard := lockout.NewGuard(log, audit.NewLogger(log))
	auditLog := audit.NewLogger(log)

	authSvc := service.NewAuthService(users, sessions, tokens, lockGuard, auditLog, log, 0)
	guard := security.NewGuard(tokens, users, auditLog, log)

	hash, err := auth.HashPassword("secret-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	err = users.Create(context.Background(), &domain.User{
		ID:           "id-dana",
		Username:     "dana",
		Email:        "dana@example.com",
		PasswordHash: hash,
		Role:         domain.RoleEngineer,
		Status:       domain.StatusActive,
		Permissions:  domain.PermissionsFor(domain.RoleEngineer),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	authHandler := NewAuthHandler(authSvc, log)
	authn := middleware.Authenticate(guard, authSvc, log)

	mux := http.NewServeMux()
	mux.Handle("POST /api/auth/login", http.HandlerFunc(authHandler.Login))
	mux.Handle("POST /api/auth/refresh", http.HandlerFunc(authHandler.Refresh))
	mux.Handle("POST /api/auth/logout", authn(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/auth/me", authn(http.HandlerFunc(authHandler.Me)))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return resp, decoded
}

func TestLoginEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/auth/login", map[string]string{
		"username": "dana",
		"password": "secret-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %v)", resp.StatusCode, body)
	}

	for _, field := range []string{"access_token", "refresh_token", "session_id"} {
		if s, _ := body[field].(string); s == "" {
			t.Errorf("missing %s in response", field)
		}
	}
	if body["token_type"] != "Bearer" {
		t.Errorf("token_type = %v, want Bearer", body["token_type"])
	}

	user, _ := body["user"].(map[string]interface{})
	if user == nil {
		t.Fatal("missing user in response")
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatal("password hash leaked in login response")
	}
}

func TestLoginEndpointRejections(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"username": "dana", "password": "nope-nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "ghost", "password": "nope-nope"}, http.StatusUnauthorized},
		{"missing fields", map[string]string{"username": "dana"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, _ := postJSON(t, srv.URL+"/api/auth/login", tc.body)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestRefreshAndMeEndpoints(t *testing.T) {
	srv := newTestServer(t)

	_, login := postJSON(t, srv.URL+"/api/auth/login", map[string]string{
		"username": "dana",
		"password": "secret-password",
	})
	refreshToken, _ := login["refresh_token"].(string)

	resp, refreshed := postJSON(t, srv.URL+"/api/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d (body: %v)", resp.StatusCode, refreshed)
	}
	accessToken, _ := refreshed["access_token"].(string)
	if accessToken == "" {
		t.Fatal("refresh returned no access token")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me request: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", meResp.StatusCode)
	}

	var me map[string]interface{}
	if err := json.NewDecoder(meResp.Body).Decode(&me); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if me["username"] != "dana" {
		t.Fatalf("me.username = %v, want dana", me["username"])
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	srv := newTestServer(t)

	_, login := postJSON(t, srv.URL+"/api/auth/login", map[string]string{
		"username": "dana",
		"password": "secret-password",
	})
	accessToken, _ := login["access_token"].(string)
	sessionID, _ := login["session_id"].(string)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set(middleware.SessionHeader, sessionID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	// Access tokens stay valid after logout: only the session is gone.
	meReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+accessToken)
	meResp, err := http.DefaultClient.Do(meReq)
	if err != nil {
		t.Fatalf("me request: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me after logout = %d, want 200 (tokens expire on their own clock)", meResp.StatusCode)
	}
}
