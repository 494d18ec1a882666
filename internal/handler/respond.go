package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yourorg/gatekeeper/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain sentinel errors to HTTP statuses. Credential
// failures and enumeration-sensitive cases share one generic message; only
// infrastructure faults become 503.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, domain.ErrIPBlocked):
		writeError(w, http.StatusForbidden, "access from this address is blocked")
	case errors.Is(err, domain.ErrAccountNotActive):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, domain.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrRoleDenied):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, domain.ErrSelfDeletionForbidden):
		writeError(w, http.StatusForbidden, "cannot delete your own account")
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, "username already exists")
	case errors.Is(err, domain.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already exists")
	case errors.Is(err, domain.ErrSessionStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
