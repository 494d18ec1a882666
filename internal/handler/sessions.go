package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/gatekeeper/internal/security"
	"github.com/yourorg/gatekeeper/internal/security/middleware"
	"github.com/yourorg/gatekeeper/internal/service"
)

// SessionsHandler handles session introspection and revocation. Users see
// their own sessions; administrators can inspect and revoke anyone's.
type SessionsHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(users *service.UserService, logger *slog.Logger) *SessionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionsHandler{users: users, logger: logger}
}

// List handles GET /api/sessions. A ?username= filter is restricted to
// administrators.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	target := user.Username
	if q := r.URL.Query().Get("username"); q != "" && q != user.Username {
		if !security.IsAdmin(user) {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}
		target = q
	}

	sessions, err := h.users.ListSessions(r.Context(), target)
	if err != nil {
		h.logger.Error("failed to list sessions",
			slog.String("username", target),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Revoke handles DELETE /api/sessions/{id}. Non-admins may only revoke
// sessions they own.
func (h *SessionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	if !security.IsAdmin(user) {
		session, err := h.users.GetSession(r.Context(), sessionID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if session.Username != user.Username {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}
	}

	if err := h.users.RevokeSession(r.Context(), user.Username, sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
