package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by source address. It sits
// in front of the login endpoint as a blunt first line before the
// per-account lockout and per-address blocking rules apply.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxReqs int
	window  time.Duration
	cleanup *time.Ticker
	done    chan struct{}
}

type bucket struct {
	requests []time.Time
	lastSeen time.Time
}

func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		maxReqs: maxRequests,
		window:  window,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	go l.dropStaleBuckets()
	return l
}

// Allow reports whether a request from the address may proceed, counting it
// if so.
func (l *Limiter) Allow(address string) bool {
	if address == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[address]
	if !ok {
		b = &bucket{}
		l.buckets[address] = b
	}

	cutoff := now.Add(-l.window)
	kept := b.requests[:0]
	for _, t := range b.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.requests = kept
	b.lastSeen = now

	if len(b.requests) >= l.maxReqs {
		return false
	}
	b.requests = append(b.requests, now)
	return true
}

func (l *Limiter) dropStaleBuckets() {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanup.C:
			stale := time.Now().Add(-15 * time.Minute)
			l.mu.Lock()
			for address, b := range l.buckets {
				if b.lastSeen.Before(stale) {
					delete(l.buckets, address)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) Stop() {
	l.cleanup.Stop()
	close(l.done)
}
