package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/infrastructure/redis"
	"github.com/yourorg/gatekeeper/internal/observability/metrics"
	"github.com/yourorg/gatekeeper/internal/reliability/circuitbreaker"
	"github.com/yourorg/gatekeeper/internal/reliability/retry"
)

const sessionKeyPrefix = "session:"

// RedisSessionRepository persists sessions in Redis with a per-key TTL equal
// to the session's remaining lifetime, enabling multi-instance deployments.
// Backend calls carry a bounded timeout and go through a retry policy and a
// circuit breaker; when the backend is down the operation fails with
// ErrSessionStoreUnavailable instead of hanging the request.
type RedisSessionRepository struct {
	redis    *redis.Client
	logger   *slog.Logger
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg *retry.Config
	now      func() time.Time
}

func NewRedisSessionRepository(redisClient *redis.Client, logger *slog.Logger) *RedisSessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 2
	return &RedisSessionRepository{
		redis:    redisClient,
		logger:   logger,
		breaker:  circuitbreaker.New(5, 2, 30*time.Second),
		retryCfg: cfg,
		now:      time.Now,
	}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

// call wraps a backend operation with breaker and retry.
func (r *RedisSessionRepository) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !r.breaker.AllowRequest() {
		metrics.ObserveSessionStoreFault()
		return fmt.Errorf("%s: circuit open: %w", op, domain.ErrSessionStoreUnavailable)
	}
	_, err := retry.Do(ctx, r.retryCfg, r.logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if err != nil {
		r.breaker.RecordFailure()
		metrics.ObserveSessionStoreFault()
		return fmt.Errorf("%s: %w", op, domain.ErrSessionStoreUnavailable)
	}
	r.breaker.RecordSuccess()
	return nil
}

// Create stores the session with TTL equal to its remaining lifetime.
func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.call(ctx, "session.create", func(ctx context.Context) error {
		return r.redis.Set(ctx, sessionKey(session.ID), string(data), ttl)
	})
}

// Get reads a session. Redis expiry makes lazy deletion implicit: an expired
// key is a miss. A record read back past its expiry (clock drift) is deleted
// and reported missing.
func (r *RedisSessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var raw string
	err := r.call(ctx, "session.get", func(ctx context.Context) error {
		v, err := r.redis.Get(ctx, sessionKey(id))
		if err != nil {
			if redis.IsNil(err) {
				return nil
			}
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, domain.ErrSessionNotFound
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.Expired(r.now()) {
		_ = r.Revoke(ctx, id)
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

// Touch updates last_activity only. The key's TTL is preserved by rewriting
// with the remaining lifetime; expiry stays absolute.
func (r *RedisSessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	session, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	session.LastActivity = at

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return domain.ErrSessionNotFound
	}
	return r.call(ctx, "session.touch", func(ctx context.Context) error {
		return r.redis.Set(ctx, sessionKey(id), string(data), ttl)
	})
}

// Revoke deletes the session unconditionally.
func (r *RedisSessionRepository) Revoke(ctx context.Context, id string) error {
	return r.call(ctx, "session.revoke", func(ctx context.Context) error {
		return r.redis.Delete(ctx, sessionKey(id))
	})
}

// ListByUsername scans session keys and filters by username.
func (r *RedisSessionRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Session, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	var sessions []*domain.Session
	for _, key := range keys {
		session, err := r.Get(ctx, strings.TrimPrefix(key, sessionKeyPrefix))
		if err != nil {
			continue
		}
		if session.Username == username {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

// Count returns the number of stored sessions.
func (r *RedisSessionRepository) Count(ctx context.Context) (int, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *RedisSessionRepository) keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.call(ctx, "session.keys", func(ctx context.Context) error {
		ks, err := r.redis.Keys(ctx, sessionKeyPrefix+"*")
		if err != nil {
			return err
		}
		keys = ks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
