package lockout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/observability/metrics"
	"github.com/yourorg/gatekeeper/internal/security/audit"
)

const (
	// maxHistory bounds the per-username attempt window.
	maxHistory = 10
	// blockWindow is how many recent attempts are inspected on failure.
	blockWindow = 5
	// blockThreshold is how many same-address failures inside the window
	// put the address on the deny set.
	blockThreshold = 5
)

// Guard tracks login outcomes per username and derives two independent
// defenses: per-address blocking (one origin hammering any accounts) and
// the attempt history consumed by account lockout in the auth service.
// Blocking is monotonic; unblocking is an out-of-band administrative
// action.
type Guard struct {
	mu       sync.Mutex
	attempts map[string][]domain.LoginAttempt
	blocked  map[string]struct{}

	logger *slog.Logger
	audit  *audit.Logger
	now    func() time.Time
}

func NewGuard(logger *slog.Logger, auditLog *audit.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		attempts: make(map[string][]domain.LoginAttempt),
		blocked:  make(map[string]struct{}),
		logger:   logger,
		audit:    auditLog,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// IsBlocked reports whether the source address is on the deny set. This is
// checked before any credential lookup, for any username.
func (g *Guard) IsBlocked(address string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blocked[address]
	return ok
}

// Record appends a login attempt for the username, trims the window, and on
// failure checks whether the most recent attempts are repeated failures
// from the same address. If so, the address joins the deny set.
func (g *Guard) Record(username, address, userAgent string, success bool, reason string) {
	g.mu.Lock()

	history := append(g.attempts[username], domain.LoginAttempt{
		IPAddress:     address,
		UserAgent:     userAgent,
		Success:       success,
		Timestamp:     g.now(),
		FailureReason: reason,
	})
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	g.attempts[username] = history

	blockedNow := false
	total := 0
	if !success {
		recent := history
		if len(recent) > blockWindow {
			recent = recent[len(recent)-blockWindow:]
		}
		failures := 0
		for _, a := range recent {
			if !a.Success && a.IPAddress == address {
				failures++
			}
		}
		if failures >= blockThreshold {
			if _, already := g.blocked[address]; !already {
				g.blocked[address] = struct{}{}
				blockedNow = true
				total = len(g.blocked)
			}
		}
	}
	g.mu.Unlock()

	if blockedNow {
		g.logger.Warn("source address blocked",
			slog.String("ip_address", address),
			slog.String("username", username),
		)
		if g.audit != nil {
			g.audit.LogAddressBlocked(address)
		}
		metrics.ObserveAddressBlocked(total)
	}
}

// Block adds an address to the deny set directly.
func (g *Guard) Block(address string) {
	g.mu.Lock()
	_, already := g.blocked[address]
	g.blocked[address] = struct{}{}
	total := len(g.blocked)
	g.mu.Unlock()

	if !already {
		if g.audit != nil {
			g.audit.LogAddressBlocked(address)
		}
		metrics.ObserveAddressBlocked(total)
	}
}

// History returns a copy of the trailing attempt window for a username.
func (g *Guard) History(username string) []domain.LoginAttempt {
	g.mu.Lock()
	defer g.mu.Unlock()
	history := g.attempts[username]
	out := make([]domain.LoginAttempt, len(history))
	copy(out, history)
	return out
}

// Stats summarizes the guard's state for monitoring.
type Stats struct {
	BlockedAddresses int `json:"blocked_addresses"`
	TrackedAccounts  int `json:"tracked_accounts"`
}

func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		BlockedAddresses: len(g.blocked),
		TrackedAccounts:  len(g.attempts),
	}
}
