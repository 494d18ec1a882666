package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/repository"
	"github.com/yourorg/gatekeeper/internal/security/audit"
	"github.com/yourorg/gatekeeper/internal/security/lockout"
)

func newTestUserService(t *testing.T) (*UserService, *repository.MemoryUserRepository) {
	t.Helper()

	log := slog.Default()
	users := repository.NewMemoryUserRepository()
	sessions := repository.NewMemorySessionRepository()
	guard := lockout.NewGuard(log, audit.NewLogger(log))

	return NewUserService(users, sessions, guard, audit.NewLogger(log), log), users
}

func permissionsEqual(a, b []domain.Permission) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[domain.Permission]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

func TestCreateUserSnapshotsPermissions(t *testing.T) {
	svc, _ := newTestUserService(t)

	user, err := svc.CreateUser(context.Background(), "admin", CreateUserParams{
		Username: "dana",
		Email:    "dana@example.com",
		Password: "secret-password",
		Role:     domain.RoleArchitect,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Status != domain.StatusActive {
		t.Fatalf("status = %q, want active", user.Status)
	}
	if !permissionsEqual(user.Permissions, domain.PermissionsFor(domain.RoleArchitect)) {
		t.Fatalf("permission snapshot does not match architect catalog: %v", user.Permissions)
	}
	if user.PasswordHash == "secret-password" {
		t.Fatal("password stored in the clear")
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params CreateUserParams
	}{
		{"missing username", CreateUserParams{Email: "a@b.c", Password: "secret-password", Role: domain.RoleViewer}},
		{"short password", CreateUserParams{Username: "a", Email: "a@b.c", Password: "short", Role: domain.RoleViewer}},
		{"unknown role", CreateUserParams{Username: "a", Email: "a@b.c", Password: "secret-password", Role: "wizard"}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateUser(ctx, "admin", tc.params); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: got %v, want ErrValidation", tc.name, err)
		}
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	params := CreateUserParams{
		Username: "dana",
		Email:    "dana@example.com",
		Password: "secret-password",
		Role:     domain.RoleViewer,
	}
	if _, err := svc.CreateUser(ctx, "admin", params); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if _, err := svc.CreateUser(ctx, "admin", params); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("duplicate username: got %v", err)
	}

	params.Username = "dana2"
	if _, err := svc.CreateUser(ctx, "admin", params); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("duplicate email: got %v", err)
	}
}

func TestRoleChangeRecomputesSnapshot(t *testing.T) {
	svc, users := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "admin", CreateUserParams{
		Username: "dana",
		Email:    "dana@example.com",
		Password: "secret-password",
		Role:     domain.RoleViewer,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	role := domain.RoleAdmin
	updated, err := svc.UpdateUser(ctx, "admin", "dana", UpdateUserParams{Role: &role})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want admin", updated.Role)
	}
	if !permissionsEqual(updated.Permissions, domain.PermissionsFor(domain.RoleAdmin)) {
		t.Fatal("permission snapshot not recomputed on role change")
	}

	stored, err := users.GetByUsername(ctx, "dana")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if !permissionsEqual(stored.Permissions, domain.PermissionsFor(domain.RoleAdmin)) {
		t.Fatal("stored snapshot stale after role change")
	}
}

func TestUpdateUnknownRoleRejected(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "admin", CreateUserParams{
		Username: "dana",
		Email:    "dana@example.com",
		Password: "secret-password",
		Role:     domain.RoleViewer,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	role := domain.Role("wizard")
	if _, err := svc.UpdateUser(ctx, "admin", "dana", UpdateUserParams{Role: &role}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestDeleteUserIsSoftAndNeverSelf(t *testing.T) {
	svc, users := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "admin", CreateUserParams{
		Username: "dana",
		Email:    "dana@example.com",
		Password: "secret-password",
		Role:     domain.RoleViewer,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := svc.DeleteUser(ctx, "dana", "dana"); !errors.Is(err, domain.ErrSelfDeletionForbidden) {
		t.Fatalf("self deletion: got %v, want ErrSelfDeletionForbidden", err)
	}

	if err := svc.DeleteUser(ctx, "admin", "dana"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	// Soft delete keeps the record but flips its status.
	stored, err := users.GetByUsername(ctx, "dana")
	if err != nil {
		t.Fatalf("GetByUsername after delete: %v", err)
	}
	if stored.Status != domain.StatusDeleted {
		t.Fatalf("status = %q, want deleted", stored.Status)
	}
}

func TestStatsAggregates(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := svc.CreateUser(ctx, "admin", CreateUserParams{
			Username: name,
			Email:    name + "@example.com",
			Password: "secret-password",
			Role:     domain.RoleViewer,
		}); err != nil {
			t.Fatalf("CreateUser %s: %v", name, err)
		}
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalUsers != 3 {
		t.Fatalf("total_users = %d, want 3", stats.TotalUsers)
	}
	if stats.ActiveSessions != 0 || stats.BlockedAddresses != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
