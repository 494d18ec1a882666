package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/security/audit"
	"github.com/yourorg/gatekeeper/internal/security/auth"
	"github.com/yourorg/gatekeeper/internal/security/lockout"
)

// UserService covers administrative user management: creation, updates,
// role changes, soft deletion, and security introspection.
type UserService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	guard    *lockout.Guard
	audit    *audit.Logger
	logger   *slog.Logger
	now      func() time.Time
}

func NewUserService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	guard *lockout.Guard,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:    users,
		sessions: sessions,
		guard:    guard,
		audit:    auditLog,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateUserParams are the caller-supplied fields for a new user.
type CreateUserParams struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

func (p CreateUserParams) validate() error {
	if strings.TrimSpace(p.Username) == "" || strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("%w: username and email are required", domain.ErrValidation)
	}
	if len(p.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}
	if !domain.ValidRole(p.Role) {
		return fmt.Errorf("%w: unknown role %q", domain.ErrValidation, p.Role)
	}
	return nil
}

// CreateUser provisions a new active account. The permission snapshot is
// taken from the catalog at creation time.
func (s *UserService) CreateUser(ctx context.Context, actor string, params CreateUserParams) (*domain.User, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: hash,
		Role:         params.Role,
		Status:       domain.StatusActive,
		Permissions:  domain.PermissionsFor(params.Role),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
		slog.String("actor", actor),
	)
	if s.audit != nil {
		s.audit.LogUserChange(actor, user.Username, "user_created", string(user.Role))
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

// UpdateUserParams carries optional mutations. Nil fields are unchanged.
type UpdateUserParams struct {
	Email  *string        `json:"email,omitempty"`
	Role   *domain.Role   `json:"role,omitempty"`
	Status *domain.Status `json:"status,omitempty"`
}

// UpdateUser applies administrative changes. A role change recomputes the
// permission snapshot from the catalog in the same write, so the snapshot
// invariant holds as soon as the update lands.
func (s *UserService) UpdateUser(ctx context.Context, actor, username string, params UpdateUserParams) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	var changes []string
	if params.Email != nil && *params.Email != user.Email {
		user.Email = *params.Email
		changes = append(changes, "email")
	}
	if params.Role != nil && *params.Role != user.Role {
		if !domain.ValidRole(*params.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, *params.Role)
		}
		user.Role = *params.Role
		user.Permissions = domain.PermissionsFor(*params.Role)
		changes = append(changes, "role")
	}
	if params.Status != nil && *params.Status != user.Status {
		user.Status = *params.Status
		changes = append(changes, "status")
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.LogUserChange(actor, username, "user_updated", strings.Join(changes, ","))
	}
	return user, nil
}

// DeleteUser is a soft delete: the record transitions to deleted status and
// keeps its audit history. Users cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, actor, username string) error {
	if actor == username {
		return domain.ErrSelfDeletionForbidden
	}
	if err := s.users.UpdateStatus(ctx, username, domain.StatusDeleted); err != nil {
		return err
	}
	s.logger.Info("user deleted",
		slog.String("username", username),
		slog.String("actor", actor),
	)
	if s.audit != nil {
		s.audit.LogUserChange(actor, username, "user_deleted", "")
	}
	return nil
}

// ListSessions returns a user's live sessions.
func (s *UserService) ListSessions(ctx context.Context, username string) ([]*domain.Session, error) {
	return s.sessions.ListByUsername(ctx, username)
}

// RevokeSession deletes a session by ID. Callers enforce ownership rules.
func (s *UserService) RevokeSession(ctx context.Context, actor, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogSessionRevoked(actor, sessionID)
	}
	return nil
}

// GetSession fetches a session by ID.
func (s *UserService) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// LoginHistory returns the trailing attempt window for a username.
func (s *UserService) LoginHistory(username string) []domain.LoginAttempt {
	return s.guard.History(username)
}

// SecurityStats is the operator-facing summary.
type SecurityStats struct {
	TotalUsers       int `json:"total_users"`
	ActiveSessions   int `json:"active_sessions"`
	BlockedAddresses int `json:"blocked_addresses"`
	TrackedAccounts  int `json:"tracked_accounts"`
}

func (s *UserService) Stats(ctx context.Context) (*SecurityStats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.Count(ctx)
	if err != nil {
		return nil, err
	}
	guardStats := s.guard.Stats()
	return &SecurityStats{
		TotalUsers:       users,
		ActiveSessions:   sessions,
		BlockedAddresses: guardStats.BlockedAddresses,
		TrackedAccounts:  guardStats.TrackedAccounts,
	}, nil
}
