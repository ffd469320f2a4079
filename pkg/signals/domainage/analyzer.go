// Package domainage measures how long a domain has been registered.
package domainage

import (
	"context"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/urlnorm"
)

// DefaultKnownDomains are long-established sites whose age is not worth a
// registry round trip.
var DefaultKnownDomains = []string{
	"google.com", "youtube.com", "facebook.com", "twitter.com",
	"instagram.com", "linkedin.com", "github.com", "microsoft.com",
	"apple.com", "amazon.com", "wikipedia.org", "reddit.com",
	"stackoverflow.com", "medium.com", "cloudflare.com", "netflix.com",
	"spotify.com", "zoom.us", "slack.com",
}

// Cache stores creation dates between scans. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, domain string) (time.Time, bool, error)
	Set(ctx context.Context, domain string, created time.Time) error
}

type Result struct {
	AgeDays int
	Info    *types.WhoisInfo
}

type Analyzer struct {
	registry Registry
	cache    Cache
	limiter  core.RateLimiter
	known    map[string]struct{}
	knownAge int
	timeout  time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

type Option func(*Analyzer)

func WithCache(c Cache) Option {
	return func(a *Analyzer) { a.cache = c }
}

func WithRateLimiter(l core.RateLimiter) Option {
	return func(a *Analyzer) { a.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func NewAnalyzer(registry Registry, cfg config.WhoisConfig, log *logger.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		registry: registry,
		known:    make(map[string]struct{}),
		knownAge: cfg.KnownDomainAge,
		timeout:  cfg.Timeout,
		logger:   log.WithComponent("domain-age"),
		now:      time.Now,
	}

	known := cfg.KnownDomains
	if len(known) == 0 {
		known = DefaultKnownDomains
	}
	for _, d := range known {
		a.known[strings.ToLower(d)] = struct{}{}
	}
	if a.knownAge <= 0 {
		a.knownAge = 5000
	}
	if a.timeout <= 0 {
		a.timeout = 4 * time.Second
	}

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns the domain age in whole days. Any lookup problem yields
// UnknownDomainAge in a degraded outcome; it never blocks past the timeout.
func (a *Analyzer) Analyze(ctx context.Context, target types.NormalizedURL) signals.Outcome[Result] {
	unknown := Result{AgeDays: types.UnknownDomainAge}

	if target.IsIP {
		return signals.OK(signals.DomainAge, unknown)
	}

	domain := strings.ToLower(target.Domain)
	if _, ok := a.known[domain]; ok {
		return signals.OK(signals.DomainAge, Result{
			AgeDays: a.knownAge,
			Info:    &types.WhoisInfo{Source: "known"},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.cache != nil {
		created, ok, err := a.cache.Get(ctx, domain)
		if err != nil {
			a.logger.Warnw("WHOIS cache read failed", "domain", domain, "error", err)
		} else if ok {
			return signals.OK(signals.DomainAge, Result{
				AgeDays: a.ageDays(created),
				Info:    &types.WhoisInfo{CreatedAt: &created, Source: "cache"},
			})
		}
	}

	if a.limiter != nil {
		if err := a.limiter.WaitForHost(ctx, "whois:"+urlnorm.Suffix(domain)); err != nil {
			return signals.Degraded(signals.DomainAge, unknown, "rate limit wait: %v", err)
		}
	}

	info, err := a.registry.Lookup(ctx, domain)
	if err != nil {
		return signals.Degraded(signals.DomainAge, unknown, "whois lookup for %s: %v", domain, err)
	}
	if info.CreatedAt == nil {
		return signals.Degraded(signals.DomainAge, Result{AgeDays: types.UnknownDomainAge, Info: info},
			"no creation date for %s", domain)
	}

	created := *info.CreatedAt
	if created.After(a.now()) {
		return signals.Degraded(signals.DomainAge, Result{AgeDays: types.UnknownDomainAge, Info: info},
			"creation date %s is in the future", created.Format(time.RFC3339))
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, domain, created); err != nil {
			a.logger.Warnw("WHOIS cache write failed", "domain", domain, "error", err)
		}
	}

	return signals.OK(signals.DomainAge, Result{AgeDays: a.ageDays(created), Info: info})
}

func (a *Analyzer) ageDays(created time.Time) int {
	days := int(a.now().Sub(created).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
