package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yourorg/gatekeeper/internal/domain"
)

// TokenType discriminates access tokens from refresh tokens. Verification
// rejects a token presented as the wrong type even when the signature and
// expiry are valid.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims carried by every gatekeeper token. Tokens are signed, not
// encrypted: they are self-verifying and stateless, which is why a short
// access TTL bounds the exposure window after a session is revoked.
type Claims struct {
	Role      domain.Role `json:"role"`
	TokenType TokenType   `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 bearer tokens.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager creates a token manager. Zero TTLs fall back to the
// defaults (30m access, 7d refresh).
func NewTokenManager(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if secret == "" {
		secret = "change-me-in-production"
	}
	if issuer == "" {
		issuer = "gatekeeper"
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// AccessTTL returns the configured access token lifetime.
func (tm *TokenManager) AccessTTL() time.Duration { return tm.accessTTL }

// IssueAccessToken signs a short-lived access token for the subject.
func (tm *TokenManager) IssueAccessToken(username string, role domain.Role) (string, error) {
	return tm.issue(username, role, TokenAccess, tm.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for the subject.
func (tm *TokenManager) IssueRefreshToken(username string, role domain.Role) (string, error) {
	return tm.issue(username, role, TokenRefresh, tm.refreshTTL)
}

func (tm *TokenManager) issue(username string, role domain.Role, typ TokenType, ttl time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("subject is required")
	}
	now := tm.now()
	claims := Claims{
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Verify validates signature, expiry, issuer, and token type. Failures map
// to domain.ErrTokenExpired or domain.ErrTokenInvalid; no other detail is
// exposed.
func (tm *TokenManager) Verify(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrTokenInvalid
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now), jwt.WithIssuer(tm.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}
	if claims.TokenType != want {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// ExtractToken pulls the bearer token out of an Authorization header.
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", domain.ErrTokenInvalid
	}
	return parts[1], nil
}
