package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatekeeper_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_login_attempts_total",
		Help: "Count of login attempts by outcome",
	}, []string{"result"})

	accountSuspensions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_account_suspensions_total",
		Help: "Count of accounts suspended by the failed-attempt threshold",
	})

	addressBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_address_blocks_total",
		Help: "Count of source addresses added to the deny set",
	})

	blockedAddresses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatekeeper_blocked_addresses",
		Help: "Number of source addresses currently blocked",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatekeeper_active_sessions",
		Help: "Number of live sessions (best effort, sampled)",
	})

	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_tokens_issued_total",
		Help: "Count of tokens issued by type",
	}, []string{"type"})

	sessionStoreFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatekeeper_session_store_faults_total",
		Help: "Count of session backend faults (timeouts, open breaker)",
	})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLoginAttempt increments the login counter for the given outcome
// (success, invalid_credentials, account_not_active, ip_blocked).
func ObserveLoginAttempt(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveAccountSuspended counts a lockout transition.
func ObserveAccountSuspended() {
	accountSuspensions.Inc()
}

// ObserveAddressBlocked counts a deny-set addition and tracks the gauge.
func ObserveAddressBlocked(total int) {
	addressBlocks.Inc()
	blockedAddresses.Set(float64(total))
}

// ObserveTokenIssued counts an issued token by type.
func ObserveTokenIssued(tokenType string) {
	tokensIssued.WithLabelValues(tokenType).Inc()
}

// SetActiveSessions updates the live session gauge.
func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

// ObserveSessionStoreFault counts a session backend failure.
func ObserveSessionStoreFault() {
	sessionStoreFaults.Inc()
}
