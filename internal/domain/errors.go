package domain

import "errors"

// Authentication and authorization failures are terminal for the current
// request. Policy failures are distinct from backend faults: a storage
// outage degrades to "service unavailable" and is never reported as
// invalid credentials.
var (
	// ErrInvalidCredentials covers both unknown username and wrong password;
	// the two must stay indistinguishable at the boundary to avoid username
	// enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountNotActive is returned once credentials name a real account
	// whose status is not active. The status value is surfaced for
	// administrative visibility.
	ErrAccountNotActive = errors.New("account is not active")

	// ErrIPBlocked rejects any authentication attempt from a blocked source
	// address before credentials are evaluated.
	ErrIPBlocked = errors.New("source address is blocked")

	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")

	ErrPermissionDenied = errors.New("permission denied")
	ErrRoleDenied       = errors.New("role denied")

	ErrUserNotFound          = errors.New("user not found")
	ErrDuplicateUsername     = errors.New("username already exists")
	ErrDuplicateEmail        = errors.New("email already exists")
	ErrSelfDeletionForbidden = errors.New("users cannot delete themselves")

	ErrSessionNotFound = errors.New("session not found")

	// ErrValidation marks malformed caller input (missing fields, short
	// passwords, unknown roles). Wrapped with the specific complaint.
	ErrValidation = errors.New("validation failed")

	// ErrSessionStoreUnavailable marks a session backend fault (timeout,
	// connection loss, open circuit breaker).
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
)
