package audit

import (
	"fmt"
	"log/slog"
	"time"
)

// Event is a security-relevant action record. Events go to the structured
// log and, when a broadcaster is attached, to live subscribers (the
// /ws/security/events stream).
type Event struct {
	Action    string    `json:"action"`
	Username  string    `json:"username,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits audit events. Lockout and blocking transitions are logged
// here for operators; the triggering detail is never part of any client
// response.
type Logger struct {
	logger      *slog.Logger
	broadcaster *Broadcaster
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// WithBroadcaster attaches a live event fan-out.
func (al *Logger) WithBroadcaster(b *Broadcaster) *Logger {
	al.broadcaster = b
	return al
}

func (al *Logger) log(ev Event) {
	ev.Timestamp = time.Now()
	al.logger.Info("audit",
		slog.String("action", ev.Action),
		slog.String("username", ev.Username),
		slog.String("actor", ev.Actor),
		slog.String("ip_address", ev.IPAddress),
		slog.String("status", ev.Status),
		slog.String("details", ev.Details),
		slog.Time("timestamp", ev.Timestamp),
	)
	if al.broadcaster != nil {
		al.broadcaster.Publish(ev)
	}
}

// LogLoginAttempt records a login outcome. reason stays internal.
func (al *Logger) LogLoginAttempt(username, ip string, success bool, reason string) {
	status := "success"
	if !success {
		status = "failure"
	}
	al.log(Event{Action: "login", Username: username, IPAddress: ip, Status: status, Details: reason})
}

// LogAccountSuspended records an account lockout transition.
func (al *Logger) LogAccountSuspended(username string, attempts int) {
	al.log(Event{Action: "account_suspended", Username: username, Status: "locked",
		Details: fmt.Sprintf("failed attempt threshold reached (%d)", attempts)})
}

// LogAddressBlocked records a source address joining the deny set.
func (al *Logger) LogAddressBlocked(ip string) {
	al.log(Event{Action: "address_blocked", IPAddress: ip, Status: "blocked",
		Details: "repeated failures from same address"})
}

// LogSessionRevoked records an explicit session revocation.
func (al *Logger) LogSessionRevoked(actor, sessionID string) {
	al.log(Event{Action: "session_revoked", Actor: actor, Status: "revoked", Details: sessionID})
}

// LogUserChange records administrative user mutations (create, role change,
// status change, soft delete).
func (al *Logger) LogUserChange(actor, username, action, details string) {
	al.log(Event{Action: action, Username: username, Actor: actor, Status: "ok", Details: details})
}

// LogDenied records an authorization rejection.
func (al *Logger) LogDenied(username, reason string) {
	al.log(Event{Action: "access_denied", Username: username, Status: "denied", Details: reason})
}
