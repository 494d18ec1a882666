package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/security/audit"
	"github.com/yourorg/gatekeeper/internal/security/auth"
)

// Guard resolves bearer tokens to users at the request boundary. A valid
// token is necessary but not sufficient: the subject must still exist and
// still be active, so a user suspended after issuance is rejected even
// though the token verifies.
type Guard struct {
	tokens *auth.TokenManager
	users  domain.UserRepository
	audit  *audit.Logger
	logger *slog.Logger
}

func NewGuard(tokens *auth.TokenManager, users domain.UserRepository, auditLog *audit.Logger, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{tokens: tokens, users: users, audit: auditLog, logger: logger}
}

// Resolve verifies an access token and loads its subject.
func (g *Guard) Resolve(ctx context.Context, bearerToken string) (*domain.User, error) {
	claims, err := g.tokens.Verify(bearerToken, auth.TokenAccess)
	if err != nil {
		return nil, err
	}
	user, err := g.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if user.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotActive, user.Status)
	}
	return user, nil
}

// CheckPermission tests the user's CURRENT role against the catalog, never
// the stored permission snapshot, so a role change takes effect on the next
// request.
func (g *Guard) CheckPermission(user *domain.User, perm domain.Permission) error {
	if domain.RoleHasPermission(user.Role, perm) {
		return nil
	}
	g.logger.Warn("permission denied",
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
		slog.String("permission", string(perm)),
	)
	if g.audit != nil {
		g.audit.LogDenied(user.Username, string(perm))
	}
	return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, perm)
}

// CheckAnyRole requires the user to hold one of the listed roles.
func (g *Guard) CheckAnyRole(user *domain.User, roles ...domain.Role) error {
	for _, role := range roles {
		if user.Role == role {
			return nil
		}
	}
	g.logger.Warn("role denied",
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
	)
	if g.audit != nil {
		g.audit.LogDenied(user.Username, "role requirement")
	}
	return domain.ErrRoleDenied
}

// IsAdmin reports whether the user holds an administrative role.
func IsAdmin(user *domain.User) bool {
	return user.Role == domain.RoleAdmin || user.Role == domain.RoleSuperAdmin
}
