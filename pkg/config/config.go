package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	CORSAllowedOrigins []string

	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	SessionTTL     time.Duration
	SessionBackend string // "memory" or "redis"
	RedisURL       string

	UserBackend string // "memory" or "postgres"
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// LoginRateLimit is the per-address request budget for the login
	// endpoint per minute.
	LoginRateLimit int

	SweepInterval time.Duration

	// Bootstrap admin is created at startup when the directory is empty so
	// a fresh deployment is never locked out.
	BootstrapAdminUsername string
	BootstrapAdminPassword string
	BootstrapAdminEmail    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	accessMinutes, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL_MINUTES: %w", err)
	}

	refreshHours, err := strconv.Atoi(getEnv("REFRESH_TOKEN_TTL_HOURS", "168"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_TOKEN_TTL_HOURS: %w", err)
	}

	sessionHours, err := strconv.Atoi(getEnv("SESSION_TTL_HOURS", "24"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL_HOURS: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	loginRate, err := strconv.Atoi(getEnv("LOGIN_RATE_LIMIT", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %w", err)
	}

	sweepMinutes, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_MINUTES", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES: %w", err)
	}

	sessionBackend := getEnv("SESSION_BACKEND", "memory")
	if sessionBackend != "memory" && sessionBackend != "redis" {
		return nil, fmt.Errorf("invalid SESSION_BACKEND %q: want memory or redis", sessionBackend)
	}

	userBackend := getEnv("USER_BACKEND", "memory")
	if userBackend != "memory" && userBackend != "postgres" {
		return nil, fmt.Errorf("invalid USER_BACKEND %q: want memory or postgres", userBackend)
	}

	cfg := &Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		ServerPort:         port,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "gatekeeper"),
		AccessTokenTTL:  time.Duration(accessMinutes) * time.Minute,
		RefreshTokenTTL: time.Duration(refreshHours) * time.Hour,

		SessionTTL:     time.Duration(sessionHours) * time.Hour,
		SessionBackend: sessionBackend,
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),

		UserBackend: userBackend,
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      dbPort,
		DBUser:      getEnv("DB_USER", "gatekeeper"),
		DBPassword:  getEnv("DB_PASSWORD", "dev"),
		DBName:      getEnv("DB_NAME", "gatekeeper"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		LoginRateLimit: loginRate,
		SweepInterval:  time.Duration(sweepMinutes) * time.Minute,

		BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		BootstrapAdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", "admin@localhost"),
	}

	if cfg.Environment == "production" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseCSVEnv parses a comma-separated environment variable
func parseCSVEnv(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
