package domain

import (
	"context"
	"time"
)

// Session correlates a token holder to request metadata. ExpiresAt is fixed
// at creation (created_at + TTL) and is never extended: LastActivity moves
// on every authenticated request but expiry stays absolute, not sliding.
// Sessions and tokens expire independently; revoking a session does not
// invalidate already-issued tokens.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
}

// Expired reports whether the session is past its absolute expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRepository defines session storage. Get performs lazy expiry: a
// read that finds the record past expires_at deletes it and reports
// ErrSessionNotFound. A background sweep is an optimization, never required
// for correctness. Backend faults surface as ErrSessionStoreUnavailable.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id string) error
	ListByUsername(ctx context.Context, username string) ([]*Session, error)
	Count(ctx context.Context) (int, error)
}
