package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound lookups: one global token bucket plus a minimum
// spacing between calls that share a key (a WHOIS registry, a DNSBL zone).
type Limiter struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	burst    int
	next     map[string]time.Time
	mu       sync.Mutex
}

type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	// MinDelay is the minimum spacing between calls for the same key.
	MinDelay time.Duration
}

// DefaultConfig suits public WHOIS servers, which throttle aggressively.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2.0,
		BurstSize:         2,
		MinDelay:          250 * time.Millisecond,
	}
}

func NewLimiter(config Config) *Limiter {
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	limit := rate.Limit(config.RequestsPerSecond)
	if config.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, config.BurstSize),
		minDelay: config.MinDelay,
		burst:    config.BurstSize,
		next:     make(map[string]time.Time),
	}
}

func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WaitForHost waits on the global bucket, then reserves the next slot for
// host. The lock is never held while sleeping.
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	now := time.Now()
	slot := now
	if next, ok := l.next[host]; ok && next.After(now) {
		slot = next
	}
	l.next[host] = slot.Add(l.minDelay)
	l.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

func (l *Limiter) SetLimit(requestsPerSecond float64) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

func (l *Limiter) SetBurst(burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.burst = burst
	l.limiter.SetBurst(burst)
}

// Reset forgets per-host reservations.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = make(map[string]time.Time)
}

func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		TrackedHosts: len(l.next),
		BurstSize:    l.burst,
		MinDelay:     l.minDelay,
	}
}

type Stats struct {
	TrackedHosts int
	BurstSize    int
	MinDelay     time.Duration
}
