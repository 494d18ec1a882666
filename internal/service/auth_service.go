package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/observability/metrics"
	"github.com/yourorg/gatekeeper/internal/security/audit"
	"github.com/yourorg/gatekeeper/internal/security/auth"
	"github.com/yourorg/gatekeeper/internal/security/lockout"
)

const (
	// DefaultSessionTTL is the absolute session lifetime.
	DefaultSessionTTL = 24 * time.Hour
	// lockThreshold suspends the account once failed_login_attempts
	// reaches it.
	lockThreshold = 5
)

// AuthService orchestrates credential checks, the login-attempt guard, the
// user directory, token issuance, and session creation.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	tokens   *auth.TokenManager
	guard    *lockout.Guard
	audit    *audit.Logger
	logger   *slog.Logger

	sessionTTL time.Duration
	now        func() time.Time
	locks      keyedMutex
}

func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	tokens *auth.TokenManager,
	guard *lockout.Guard,
	auditLog *audit.Logger,
	logger *slog.Logger,
	sessionTTL time.Duration,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		guard:      guard,
		audit:      auditLog,
		logger:     logger,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// AccessTTL exposes the configured access token lifetime.
func (s *AuthService) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

// keyedMutex serializes work per username so the failed-attempt count and
// the suspended transition cannot interleave between concurrent logins for
// the same account.
type keyedMutex struct {
	shards [64]sync.Mutex
}

func (km *keyedMutex) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &km.shards[h.Sum32()%uint32(len(km.shards))]
	mu.Lock()
	return mu
}

// Authenticate verifies credentials for a login request. Order matters:
// blocked addresses are rejected before any credential work; unknown
// usernames and wrong passwords both come back as ErrInvalidCredentials so
// callers cannot enumerate accounts; a non-active account surfaces its
// status, an accepted asymmetry once the username is known to be real.
func (s *AuthService) Authenticate(ctx context.Context, username, password, ip, userAgent string) (*domain.User, error) {
	if s.guard.IsBlocked(ip) {
		metrics.ObserveLoginAttempt("ip_blocked")
		return nil, domain.ErrIPBlocked
	}

	mu := s.locks.lock(username)
	defer mu.Unlock()

	// Attempt records are security records: they must land even if the
	// caller disconnects mid-flight.
	recordCtx := context.WithoutCancel(ctx)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.recordAttempt(username, ip, userAgent, false, "user not found")
			metrics.ObserveLoginAttempt("invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	if user.Status != domain.StatusActive {
		s.recordAttempt(username, ip, userAgent, false, string(user.Status))
		metrics.ObserveLoginAttempt("account_not_active")
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotActive, user.Status)
	}

	if !auth.VerifyPassword(user.PasswordHash, password) {
		attempts, err := s.users.RecordLoginFailure(recordCtx, username)
		if err != nil {
			s.logger.Error("failed to record login failure",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		} else if attempts >= lockThreshold {
			if err := s.users.UpdateStatus(recordCtx, username, domain.StatusSuspended); err != nil {
				s.logger.Error("failed to suspend account",
					slog.String("username", username),
					slog.String("error", err.Error()),
				)
			} else {
				s.logger.Warn("account suspended after repeated failures",
					slog.String("username", username),
				)
				if s.audit != nil {
					s.audit.LogAccountSuspended(username, attempts)
				}
				metrics.ObserveAccountSuspended()
			}
		}
		s.recordAttempt(username, ip, userAgent, false, "invalid password")
		metrics.ObserveLoginAttempt("invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(recordCtx, username, s.now()); err != nil {
		s.logger.Error("failed to record login success",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	}
	s.recordAttempt(username, ip, userAgent, true, "")
	metrics.ObserveLoginAttempt("success")

	return s.users.GetByUsername(ctx, username)
}

func (s *AuthService) recordAttempt(username, ip, userAgent string, success bool, reason string) {
	s.guard.Record(username, ip, userAgent, success, reason)
	if s.audit != nil {
		s.audit.LogLoginAttempt(username, ip, success, reason)
	}
}

// LoginResult bundles the three independent artifacts of a successful
// login. Tokens are stateless and self-verifying; the session expires on
// its own clock. Revoking the session never invalidates the tokens.
type LoginResult struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	SessionID    string       `json:"session_id"`
	ExpiresIn    int          `json:"expires_in"` // access token lifetime, seconds
	TokenType    string       `json:"token_type"`
	User         *domain.User `json:"user"`
}

// Login authenticates and, on success, issues an access/refresh token pair
// and creates a session.
func (s *AuthService) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, username, password, ip, userAgent)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	metrics.ObserveTokenIssued(string(auth.TokenAccess))
	metrics.ObserveTokenIssued(string(auth.TokenRefresh))

	session, err := s.CreateSession(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
		slog.String("session_id", session.ID),
	)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		TokenType:    "Bearer",
		User:         user,
	}, nil
}

// CreateSession stores a new session with a fixed absolute expiry. The role
// is captured at creation time, not re-derived later.
func (s *AuthService) CreateSession(ctx context.Context, user *domain.User, ip, userAgent string) (*domain.Session, error) {
	now := s.now()
	session := &domain.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
		LastActivity: now,
		IsActive:     true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Refresh mints a new access token from a refresh token, re-checking that
// the subject still exists and is still active.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenRefresh)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrTokenInvalid
		}
		return "", fmt.Errorf("user lookup: %w", err)
	}
	if user.Status != domain.StatusActive {
		return "", fmt.Errorf("%w: %s", domain.ErrAccountNotActive, user.Status)
	}
	accessToken, err := s.tokens.IssueAccessToken(user.Username, user.Role)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	metrics.ObserveTokenIssued(string(auth.TokenAccess))
	return accessToken, nil
}

// Logout revokes a session. Idempotent: revoking an unknown or expired
// session is not an error.
func (s *AuthService) Logout(ctx context.Context, username, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogSessionRevoked(username, sessionID)
	}
	return nil
}

// TouchSession updates a session's last activity without extending expiry.
func (s *AuthService) TouchSession(ctx context.Context, sessionID string) error {
	return s.sessions.Touch(ctx, sessionID, s.now())
}

// ChangePassword verifies the current password before storing a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: new password must be at least 8 characters", domain.ErrValidation)
	}

	mu := s.locks.lock(username)
	defer mu.Unlock()

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(user.PasswordHash, oldPassword) {
		return domain.ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user changed password", slog.String("username", username))
	if s.audit != nil {
		s.audit.LogUserChange(username, username, "password_changed", "")
	}
	return nil
}
