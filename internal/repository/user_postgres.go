package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/yourorg/gatekeeper/internal/domain"
)

// PostgresUserRepository implements domain.UserRepository using PostgreSQL.
// Failed-attempt counting uses an atomic UPDATE ... RETURNING so concurrent
// failed logins for one account never under-count toward the lockout
// threshold, even across service instances.
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserRepository{db: db, logger: logger}
}

const userColumns = `id, username, email, password_hash, role, status, permissions,
		failed_login_attempts, login_count, created_at, updated_at, last_login, password_changed_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	user := &domain.User{}
	var perms []string
	var lastLogin sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		pq.Array(&perms),
		&user.FailedLoginAttempts,
		&user.LoginCount,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
		&user.PasswordChangedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Permissions = make([]domain.Permission, len(perms))
	for i, p := range perms {
		user.Permissions[i] = domain.Permission(p)
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return user, nil
}

func permStrings(perms []domain.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// duplicateErr maps a unique-constraint violation to the domain conflict.
func duplicateErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "email") {
			return domain.ErrDuplicateEmail
		}
		return domain.ErrDuplicateUsername
	}
	return nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, role, status, permissions, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at, updated_at, password_changed_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Status,
		pq.Array(permStrings(user.Permissions)),
	).Scan(&user.CreatedAt, &user.UpdatedAt, &user.PasswordChangedAt)
	if err != nil {
		if dup := duplicateErr(err); dup != nil {
			return dup
		}
		r.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $1, password_hash = $2, role = $3, status = $4, permissions = $5,
		    password_changed_at = $6, updated_at = now()
		WHERE id = $7
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Status,
		pq.Array(permStrings(user.Permissions)),
		user.PasswordChangedAt,
		user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if dup := duplicateErr(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) UpdateStatus(ctx context.Context, username string, status domain.Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = now() WHERE username = $2`,
		status, username,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) RecordLoginFailure(ctx context.Context, username string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		WHERE username = $1
		RETURNING failed_login_attempts
	`, username).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	return attempts, nil
}

func (r *PostgresUserRepository) RecordLoginSuccess(ctx context.Context, username string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, login_count = login_count + 1,
		    last_login = $1, updated_at = now()
		WHERE username = $2
	`, at, username)
	if err != nil {
		return fmt.Errorf("failed to record login success: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
