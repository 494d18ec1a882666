package handler

import (
	"net/http"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/security/middleware"
)

// Roles handles GET /api/roles: the full role catalog with each role's
// permission set.
func Roles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	catalog := make(map[domain.Role][]domain.Permission, len(domain.Roles))
	for _, role := range domain.Roles {
		catalog[role] = domain.PermissionsFor(role)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": catalog})
}

// Permissions handles GET /api/permissions: the caller's effective
// permissions, derived from the current role rather than the stored
// snapshot.
func Permissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":        user.Role,
		"permissions": domain.PermissionsFor(user.Role),
	})
}
