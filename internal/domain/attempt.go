package domain

import "time"

// LoginAttempt records a single authentication outcome for a username.
// Attempts are append-only and kept as a bounded trailing window per
// account. FailureReason is internal audit detail and is never surfaced to
// the caller; externally "user not found" and "wrong password" are
// indistinguishable.
type LoginAttempt struct {
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	Success       bool      `json:"success"`
	Timestamp     time.Time `json:"timestamp"`
	FailureReason string    `json:"failure_reason,omitempty"`
}
