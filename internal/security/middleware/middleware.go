package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/security"
	"github.com/yourorg/gatekeeper/internal/security/auth"
	"github.com/yourorg/gatekeeper/internal/security/ratelimit"
)

// SessionHeader carries the session identifier out-of-band from the bearer
// token. Its presence on an authenticated request triggers a touch.
const SessionHeader = "X-Session-ID"

type UserContextKey struct{}
type SessionIDContextKey struct{}

// SessionToucher updates a session's last activity.
type SessionToucher interface {
	TouchSession(ctx context.Context, sessionID string) error
}

// Authenticate resolves the bearer token, installs the user in the request
// context, and touches the session named by the session header. Routes
// wrapped by this middleware require a valid, active user.
func Authenticate(guard *security.Guard, toucher SessionToucher, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			user, err := guard.Resolve(r.Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrTokenExpired):
					http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
				case errors.Is(err, domain.ErrAccountNotActive):
					http.Error(w, `{"error":"account is not active"}`, http.StatusForbidden)
				case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrUserNotFound):
					http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				default:
					log.Error("token resolution failed", slog.String("error", err.Error()))
					http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey{}, user)

			if sessionID := r.Header.Get(SessionHeader); sessionID != "" {
				ctx = context.WithValue(ctx, SessionIDContextKey{}, sessionID)
				if toucher != nil {
					// Touch failures are not fatal to the request; the
					// session may simply have expired.
					if err := toucher.TouchSession(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
						log.Warn("session touch failed",
							slog.String("session_id", sessionID),
							slog.String("error", err.Error()),
						)
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose user lacks the permission. Must
// be mounted inside Authenticate.
func RequirePermission(guard *security.Guard, perm domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if err := guard.CheckPermission(user, perm); err != nil {
				http.Error(w, `{"error":"permission denied"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole rejects requests whose user holds none of the roles.
func RequireAnyRole(guard *security.Guard, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if err := guard.CheckAnyRole(user, roles...); err != nil {
				http.Error(w, `{"error":"role denied"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginRateLimit throttles the login endpoint per source address.
func LoginRateLimit(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientIP(r)) {
				log.Warn("login rate limit exceeded", slog.String("ip_address", ClientIP(r)))
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext returns the authenticated user, or nil.
func GetUserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(UserContextKey{}).(*domain.User); ok {
		return u
	}
	return nil
}

// GetSessionIDFromContext returns the session header value, if present.
func GetSessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(SessionIDContextKey{}).(string); ok {
		return s
	}
	return ""
}

// ClientIP extracts the source address, honoring X-Forwarded-For from a
// fronting proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
