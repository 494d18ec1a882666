package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/gatekeeper/internal/domain"
	"github.com/yourorg/gatekeeper/internal/observability/metrics"
)

// Sweeper is implemented by session stores that need periodic collection of
// expired entries. The Redis backend expires keys on its own; the in-memory
// backend relies on this worker plus lazy expiry on read.
type Sweeper interface {
	Sweep() int
}

// SessionSweeper periodically removes expired sessions and refreshes the
// active-session gauge. Expiry itself never depends on the sweeper: reads
// treat expired sessions as gone regardless of when the last sweep ran.
type SessionSweeper struct {
	sessions domain.SessionRepository
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
}

// NewSessionSweeper creates a new session sweeper. sweeper may be nil for
// backends that expire entries themselves; the gauge is still refreshed.
func NewSessionSweeper(sessions domain.SessionRepository, sweeper Sweeper, logger *slog.Logger, interval time.Duration) *SessionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweeper{
		sessions: sessions,
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the sweep loop and blocks until the context is cancelled.
func (w *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("session sweeper started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SessionSweeper) sweep(ctx context.Context) {
	if w.sweeper != nil {
		if removed := w.sweeper.Sweep(); removed > 0 {
			w.logger.Info("swept expired sessions", slog.Int("removed", removed))
		}
	}

	count, err := w.sessions.Count(ctx)
	if err != nil {
		w.logger.Warn("failed to count active sessions", slog.String("error", err.Error()))
		return
	}
	metrics.SetActiveSessions(count)
}
