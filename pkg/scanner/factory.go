package scanner

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/cache"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/anomaly"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/rules"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/scoring"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/blacklist"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/domainage"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/redirect"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/structure"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/tlsprobe"
)

// Factory builds a Scanner and its extractors from configuration.
type Factory struct {
	cfg       *config.Config
	store     core.ScanStore
	telemetry core.Telemetry
	logger    *logger.Logger

	redis *redis.Client
}

func NewFactory(cfg *config.Config, store core.ScanStore, telemetry core.Telemetry, log *logger.Logger) *Factory {
	return &Factory{
		cfg:       cfg,
		store:     store,
		telemetry: telemetry,
		logger:    log,
	}
}

// Build wires every component. Call Close when the scanner is no longer
// needed.
func (f *Factory) Build() (*Scanner, error) {
	f.logger.Infow("Building scanner", "component", "factory")

	if err := f.buildRedis(); err != nil {
		return nil, err
	}

	matcher, err := f.buildBlacklist()
	if err != nil {
		return nil, fmt.Errorf("failed to build blacklist matcher: %w", err)
	}
	prober, err := tlsprobe.NewProber(f.cfg.Scanner.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS prober: %w", err)
	}

	ex := Extractors{
		Structure: structure.NewAnalyzer(f.cfg.Scanner.Structure),
		DomainAge: f.buildDomainAge(),
		TLS:       prober,
		Blacklist: matcher,
		Redirect:  redirect.NewDefaultWalker(f.cfg.Scanner.Redirect),
	}

	catalogue, err := rules.Load(f.cfg.Rules.OverridesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalogue: %w", err)
	}
	scorer, err := anomaly.NewScorerFromConfig(f.cfg.Anomaly, f.logger)
	if err != nil {
		return nil, err
	}
	policy, err := scoring.PolicyFromConfig(f.cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("invalid scoring policy: %w", err)
	}

	opts := []Option{
		WithDeadline(f.cfg.Scanner.Deadline),
		WithPolicy(policy),
	}
	if f.store != nil {
		opts = append(opts, WithStore(f.store))
	}
	if f.telemetry != nil {
		opts = append(opts, WithTelemetry(f.telemetry))
	}

	s, err := New(ex, catalogue, scorer, f.logger, opts...)
	if err != nil {
		return nil, err
	}

	f.logger.Infow("Scanner built",
		"component", "factory",
		"catalogue_version", catalogue.Version,
		"rules", len(catalogue.Rules),
		"model_version", scorer.Model().Version(),
		"blacklist_sources", matcher.Sources(),
		"redis", f.redis != nil,
	)
	return s, nil
}

// Close releases connections opened by Build.
func (f *Factory) Close() error {
	if f.redis != nil {
		return f.redis.Close()
	}
	return nil
}

func (f *Factory) buildRedis() error {
	if !f.cfg.Redis.Enabled {
		return nil
	}
	client, err := cache.NewClient(f.cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	f.redis = client
	return nil
}

func (f *Factory) buildDomainAge() *domainage.Analyzer {
	wc := f.cfg.Scanner.Whois
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: wc.RequestsPerSecond,
		BurstSize:         ratelimit.DefaultConfig().BurstSize,
		MinDelay:          ratelimit.DefaultConfig().MinDelay,
	})

	opts := []domainage.Option{domainage.WithRateLimiter(limiter)}
	if f.redis != nil {
		opts = append(opts, domainage.WithCache(cache.NewWhoisCache(f.redis, wc.CacheTTL)))
	}
	return domainage.NewAnalyzer(domainage.NewWhoisRegistry(wc.Timeout), wc, f.logger, opts...)
}

func (f *Factory) buildBlacklist() (*blacklist.Matcher, error) {
	bc := f.cfg.Scanner.Blacklist

	var sources []blacklist.Source
	for _, name := range bc.Sources {
		switch name {
		case "local":
			var feed *blacklist.Feed
			if bc.FeedFile != "" {
				loaded, err := blacklist.LoadFeed(bc.FeedFile)
				if err != nil {
					return nil, err
				}
				feed = loaded
			}
			sources = append(sources, blacklist.NewLocalSource(feed))
		case "redis":
			if f.redis == nil {
				return nil, fmt.Errorf("blacklist source redis requires redis.enabled")
			}
			sources = append(sources, blacklist.NewRedisSource(f.redis))
		case "dnsbl":
			for _, zone := range bc.DNSBLZones {
				sources = append(sources, blacklist.NewDNSBLSource(zone, bc.DNSServer, bc.Timeout))
			}
		default:
			return nil, fmt.Errorf("unknown blacklist source %q", name)
		}
	}
	return blacklist.NewMatcher(bc.Timeout, sources...), nil
}
