package domain

import (
	"context"
	"time"
)

// Status is the lifecycle state of a user account. Only Active users may
// authenticate. Deletion is a status transition, never a physical delete,
// so audit history survives.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
	StatusDeleted   Status = "deleted"
)

// User is an identity record. Permissions is a snapshot of the catalog for
// the user's role, recomputed whenever the role changes; authorization
// checks at the request boundary still consult the catalog by current role.
type User struct {
	ID                  string       `json:"id"`
	Username            string       `json:"username"`
	Email               string       `json:"email"`
	PasswordHash        string       `json:"-"`
	Role                Role         `json:"role"`
	Status              Status       `json:"status"`
	Permissions         []Permission `json:"permissions"`
	FailedLoginAttempts int          `json:"failed_login_attempts"`
	LoginCount          int          `json:"login_count"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
	LastLogin           *time.Time   `json:"last_login,omitempty"`
	PasswordChangedAt   time.Time    `json:"password_changed_at"`
}

// UserRepository defines data access for users. Implementations must be safe
// for concurrent use; RecordLoginFailure must increment atomically so that
// concurrent failed logins for the same account never under-count toward the
// lockout threshold.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, user *User) error
	UpdateStatus(ctx context.Context, username string, status Status) error
	RecordLoginFailure(ctx context.Context, username string) (int, error)
	RecordLoginSuccess(ctx context.Context, username string, at time.Time) error
	Count(ctx context.Context) (int, error)
}
