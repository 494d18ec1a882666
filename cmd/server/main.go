package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/featureflags"
	"github.com/yourorg/gatekeeper/internal/handler"
	"github.com/yourorg/gatekeeper/internal/infrastructure/logger"
	"github.com/yourorg/gatekeeper/internal/infrastructure/redis"
	"github.com/yourorg/gatekeeper/internal/observability/metrics"
	"github.com/yourorg/gatekeeper/internal/observability/tracing"
	"github.com/yourorg/gatekeeper/internal/repository"
	"github.com/yourorg/gatekeeper/internal/security"
	"github.com/yourorg/gatekeeper/internal/security/audit"
	"github.com/yourorg/gatekeeper/internal/security/auth"
	"github.com/yourorg/gatekeeper/internal/security/lockout"
	"github.com/yourorg/gatekeeper/internal/security/middleware"
	"github.com/yourorg/gatekeeper/internal/security/ratelimit"
	"github.com/yourorg/gatekeeper/internal/service"
	"github.com/yourorg/gatekeeper/internal/worker"
	"github.com/yourorg/gatekeeper/pkg/config"
	"github.com/yourorg/gatekeeper/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting gatekeeper server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "gatekeeper", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Session store: Redis in multi-instance deployments, in-memory
	// otherwise.
	readyChecks := make(map[string]handler.Pinger)
	var sessionRepo domain.SessionRepository
	var memSessions *repository.MemorySessionRepository

	switch cfg.SessionBackend {
	case "redis":
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		sessionRepo = repository.NewRedisSessionRepository(redisClient, log)
		readyChecks["redis"] = redisClient
	default:
		memSessions = repository.NewMemorySessionRepository()
		sessionRepo = memSessions
	}

	// 5. User directory: Postgres in production, in-memory for development.
	var userRepo domain.UserRepository
	switch cfg.UserBackend {
	case "postgres":
		pool, err := database.NewConnectionPool(ctx, &database.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, log)
		if err != nil {
			log.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		userRepo = repository.NewPostgresUserRepository(pool.GetDB(), log)
		readyChecks["postgres"] = pingerFunc(pool.Health)
	default:
		userRepo = repository.NewMemoryUserRepository()
	}

	// 6. Security components
	broadcaster := audit.NewBroadcaster()
	auditLogger := audit.NewLogger(log).WithBroadcaster(broadcaster)
	lockoutGuard := lockout.NewGuard(log, auditLogger)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	loginLimiter := ratelimit.NewLimiter(cfg.LoginRateLimit, time.Minute)
	defer loginLimiter.Stop()

	// 7. Services
	authService := service.NewAuthService(userRepo, sessionRepo, tokenManager, lockoutGuard, auditLogger, log, cfg.SessionTTL)
	userService := service.NewUserService(userRepo, sessionRepo, lockoutGuard, auditLogger, log)
	guard := security.NewGuard(tokenManager, userRepo, auditLogger, log)

	if err := bootstrapAdmin(ctx, cfg, userRepo, log); err != nil {
		log.Error("failed to bootstrap admin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Handlers
	authHandler := handler.NewAuthHandler(authService, log)
	usersHandler := handler.NewUsersHandler(userService, log)
	sessionsHandler := handler.NewSessionsHandler(userService, log)
	securityHandler := handler.NewSecurityHandler(userService, log)
	eventsHandler := handler.NewEventsHandler(guard, broadcaster, log, cfg.CORSAllowedOrigins)
	healthHandler := handler.NewHealthHandler(readyChecks, log)

	authn := middleware.Authenticate(guard, authService, log)

	// 9. Routes
	mux := http.NewServeMux()

	mux.Handle("POST /api/auth/login",
		middleware.LoginRateLimit(loginLimiter, log)(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/auth/refresh", http.HandlerFunc(authHandler.Refresh))
	mux.Handle("POST /api/auth/logout", authn(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/auth/me", authn(http.HandlerFunc(authHandler.Me)))
	mux.Handle("POST /api/auth/change-password", authn(http.HandlerFunc(authHandler.ChangePassword)))

	userRead := middleware.RequirePermission(guard, domain.PermUserRead)
	mux.Handle("GET /api/users", authn(userRead(http.HandlerFunc(usersHandler.Collection))))
	mux.Handle("POST /api/users", authn(middleware.RequirePermission(guard, domain.PermUserCreate)(http.HandlerFunc(usersHandler.Collection))))
	mux.Handle("GET /api/users/{username}", authn(userRead(http.HandlerFunc(usersHandler.Item))))
	mux.Handle("PATCH /api/users/{username}", authn(middleware.RequirePermission(guard, domain.PermUserUpdate)(http.HandlerFunc(usersHandler.Item))))
	mux.Handle("PUT /api/users/{username}", authn(middleware.RequirePermission(guard, domain.PermUserUpdate)(http.HandlerFunc(usersHandler.Item))))
	mux.Handle("DELETE /api/users/{username}", authn(middleware.RequirePermission(guard, domain.PermUserDelete)(http.HandlerFunc(usersHandler.Item))))

	mux.Handle("GET /api/sessions", authn(http.HandlerFunc(sessionsHandler.List)))
	mux.Handle("DELETE /api/sessions/{id}", authn(http.HandlerFunc(sessionsHandler.Revoke)))

	mux.Handle("GET /api/roles", authn(userRead(http.HandlerFunc(handler.Roles))))
	mux.Handle("GET /api/permissions", authn(http.HandlerFunc(handler.Permissions)))

	mux.Handle("GET /api/security/stats",
		authn(middleware.RequirePermission(guard, domain.PermSystemMonitor)(http.HandlerFunc(securityHandler.Stats))))
	mux.Handle("GET /api/security/login-history/{username}",
		authn(userRead(http.HandlerFunc(securityHandler.LoginHistory))))

	if featureflags.Enabled("security_events") {
		mux.Handle("GET /ws/security/events", eventsHandler)
		log.Info("live security event stream enabled")
	}

	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Session-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain: request ID -> tracing -> metrics -> CORS -> mux. Authentication
	// and authorization are attached per-route above.
	rootHandler := withRequestID(
		otelhttp.NewHandler(
			metrics.HTTPMetricsMiddleware(handlerWithCORS),
			"gatekeeper",
		),
		log,
	)

	// 10. Session sweeper keeps the in-memory store bounded and the
	// active-session gauge fresh.
	sweeper := worker.NewSessionSweeper(sessionRepo, memSweeper(memSessions), log, cfg.SweepInterval)
	go sweeper.Start(ctx)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("session_backend", cfg.SessionBackend),
		slog.String("user_backend", cfg.UserBackend),
		slog.Int("login_rate_limit", cfg.LoginRateLimit),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// bootstrapAdmin seeds a super_admin account into an empty directory so a
// fresh deployment can log in. A non-empty directory is left untouched.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, users domain.UserRepository, log *slog.Logger) error {
	count, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	password := cfg.BootstrapAdminPassword
	if password == "" {
		password = generatePassword()
		log.Warn("BOOTSTRAP_ADMIN_PASSWORD not set, generated one-time password",
			slog.String("username", cfg.BootstrapAdminUsername),
			slog.String("password", password),
		)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	admin := &domain.User{
		ID:           uuid.NewString(),
		Username:     cfg.BootstrapAdminUsername,
		Email:        cfg.BootstrapAdminEmail,
		PasswordHash: hash,
		Role:         domain.RoleSuperAdmin,
		Status:       domain.StatusActive,
		Permissions:  domain.PermissionsFor(domain.RoleSuperAdmin),
	}
	if err := users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	log.Info("bootstrap admin created", slog.String("username", admin.Username))
	return nil
}

func generatePassword() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// pingerFunc adapts a plain health function to handler.Pinger.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// memSweeper avoids handing the sweeper a typed-nil interface when the
// session backend is Redis.
func memSweeper(mem *repository.MemorySessionRepository) worker.Sweeper {
	if mem == nil {
		return nil
	}
	return mem
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
