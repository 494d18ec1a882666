package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/gatekeeper/internal/security"
	"github.com/yourorg/gatekeeper/internal/security/middleware"
	"github.com/yourorg/gatekeeper/internal/service"
	"github.com/yourorg/gatekeeper/pkg/cache"
)

// statsCacheTTL bounds how stale the operator stats view may be. Counting
// sessions scans the session store, so the result is cached briefly.
const statsCacheTTL = 5 * time.Second

// SecurityHandler exposes operator-facing security state: aggregate stats
// and per-account login history.
type SecurityHandler struct {
	users  *service.UserService
	cache  *cache.Cache
	logger *slog.Logger
}

// NewSecurityHandler creates a new security handler
func NewSecurityHandler(users *service.UserService, logger *slog.Logger) *SecurityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityHandler{users: users, cache: cache.New(), logger: logger}
}

// Stats handles GET /api/security/stats
func (h *SecurityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if cached, ok := h.cache.Get("security:stats"); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.users.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to collect security stats", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	h.cache.Set("security:stats", stats, statsCacheTTL)
	writeJSON(w, http.StatusOK, stats)
}

// LoginHistory handles GET /api/security/login-history/{username}. Users may
// read their own history; anyone else's requires an administrative role.
func (h *SecurityHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	username := r.PathValue("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "missing username")
		return
	}
	if username != user.Username && !security.IsAdmin(user) {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	history := h.users.LoginHistory(username)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"attempts": history,
		"count":    len(history),
	})
}
