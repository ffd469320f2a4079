// Package scanner runs the full scan pipeline: normalization, concurrent
// signal extraction under one deadline, assembly, scoring and insights.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/features"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/insights"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/rules"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/scoring"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/blacklist"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/domainage"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/structure"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/urlnorm"
)

const DefaultDeadline = 12 * time.Second

type StructureAnalyzer interface {
	Analyze(target types.NormalizedURL) signals.Outcome[structure.Result]
}

type DomainAgeAnalyzer interface {
	Analyze(ctx context.Context, target types.NormalizedURL) signals.Outcome[domainage.Result]
}

type TLSProber interface {
	Probe(ctx context.Context, target types.NormalizedURL) signals.Outcome[types.CertInfo]
}

type BlacklistChecker interface {
	Check(ctx context.Context, target types.NormalizedURL) signals.Outcome[blacklist.Result]
}

type RedirectWalker interface {
	Walk(ctx context.Context, target types.NormalizedURL) signals.Outcome[types.RedirectChain]
}

type AnomalyScorer interface {
	Score(ctx context.Context, v types.FeatureVector) types.AnomalyResult
}

// Extractors groups the five signal extractors. All are required.
type Extractors struct {
	Structure StructureAnalyzer
	DomainAge DomainAgeAnalyzer
	TLS       TLSProber
	Blacklist BlacklistChecker
	Redirect  RedirectWalker
}

func (e Extractors) validate() error {
	var missing []string
	if e.Structure == nil {
		missing = append(missing, signals.Structure)
	}
	if e.DomainAge == nil {
		missing = append(missing, signals.DomainAge)
	}
	if e.TLS == nil {
		missing = append(missing, signals.TLS)
	}
	if e.Blacklist == nil {
		missing = append(missing, signals.Blacklist)
	}
	if e.Redirect == nil {
		missing = append(missing, signals.Redirect)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing extractors: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Scanner is safe for concurrent use. Scans share no mutable state.
type Scanner struct {
	extractors Extractors
	catalogue  *rules.Catalogue
	anomaly    AnomalyScorer
	policy     scoring.Policy
	deadline   time.Duration
	store      core.ScanStore
	telemetry  core.Telemetry
	logger     *logger.Logger
	now        func() time.Time
}

type Option func(*Scanner)

// WithStore persists every completed scan. Store failures are logged and do
// not fail the scan.
func WithStore(store core.ScanStore) Option {
	return func(s *Scanner) { s.store = store }
}

func WithTelemetry(t core.Telemetry) Option {
	return func(s *Scanner) { s.telemetry = t }
}

func WithDeadline(d time.Duration) Option {
	return func(s *Scanner) { s.deadline = d }
}

func WithPolicy(p scoring.Policy) Option {
	return func(s *Scanner) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func New(ex Extractors, catalogue *rules.Catalogue, anomaly AnomalyScorer, log *logger.Logger, opts ...Option) (*Scanner, error) {
	if err := ex.validate(); err != nil {
		return nil, err
	}
	if catalogue == nil {
		return nil, fmt.Errorf("rule catalogue is required")
	}
	if anomaly == nil {
		return nil, fmt.Errorf("anomaly scorer is required")
	}

	s := &Scanner{
		extractors: ex,
		catalogue:  catalogue,
		anomaly:    anomaly,
		policy:     scoring.DefaultPolicy(),
		deadline:   DefaultDeadline,
		telemetry:  nopTelemetry{},
		logger:     log.WithComponent("scanner"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring policy: %w", err)
	}
	for _, f := range s.policy.Floors {
		if _, ok := catalogue.Lookup(f.RuleID); !ok {
			return nil, fmt.Errorf("scoring floor names rule %q, which is not in catalogue %s", f.RuleID, catalogue.Version)
		}
	}
	if s.deadline <= 0 {
		return nil, fmt.Errorf("scan deadline must be positive")
	}
	return s, nil
}

func (s *Scanner) Catalogue() *rules.Catalogue { return s.catalogue }

func (s *Scanner) Policy() scoring.Policy { return s.policy }

// Scan assesses one URL. The only error it returns wraps
// types.ErrInvalidURL; every other failure degrades a signal and is
// reported in the result's warnings.
func (s *Scanner) Scan(ctx context.Context, rawURL, userID string) (*types.ScanResult, error) {
	start := s.now()

	target, err := urlnorm.Normalize(rawURL)
	if err != nil {
		s.logger.Debugw("Rejected scan input", "input", rawURL, "error", err)
		return nil, err
	}

	scanID := uuid.New().String()
	log := s.logger.WithScanID(scanID).WithTarget(target.URL)

	ctx, span := log.StartOperation(ctx, "scanner.Scan", "domain", target.Domain)

	outcomes, timedOut := s.extract(ctx, log, target)
	assembly := features.Assemble(target, outcomes)

	result := &types.ScanResult{
		ID:        scanID,
		UserID:    userID,
		ScannedAt: start.UTC(),
		Target:    target,
		Vector:    assembly.Vector,
		Aux:       assembly.Aux,
		Warnings:  assembly.Warnings,
		Degraded:  assembly.Degraded,
	}
	result.Aux.Blacklist.URLHash = blacklist.Fingerprint(target.URL)

	if timedOut || len(assembly.Missing) > 0 {
		result.DeadlineExceeded = true
		reason := fmt.Sprintf("deadline %s passed", s.deadline)
		if len(assembly.Missing) > 0 {
			reason += fmt.Sprintf(" before %s reported", strings.Join(assembly.Missing, ", "))
		}
		result.Warnings = append(result.Warnings, types.Warning{
			Source: "scanner",
			Code:   types.WarningScanDeadlineExceeded,
			Reason: reason,
		})
	}

	result.Rules, result.Anomaly = s.score(ctx, result.Vector)
	if result.Anomaly.Degraded {
		result.Warnings = append(result.Warnings, types.Warning{
			Source: "anomaly",
			Code:   types.WarningScorerDegraded,
			Reason: "anomaly model unavailable, risk uses rules only",
		})
	}

	result.Breakdown = s.policy.Combine(result.Rules, result.Anomaly)
	result.RiskScore = result.Breakdown.Risk
	result.ThreatLevel = result.Breakdown.Level

	result.Insights = insights.Build(result)
	result.Summary = insights.Summary(result.ThreatLevel)
	result.DurationMs = s.now().Sub(start).Milliseconds()

	s.report(ctx, log, result)
	s.persist(ctx, log, result)

	log.FinishOperation(ctx, span, "scanner.Scan", start, nil,
		"risk_score", result.RiskScore,
		"threat_level", string(result.ThreatLevel),
	)
	return result, nil
}

// extract runs the five extractors under the scan deadline and reports
// whether the deadline passed. Extractors still running at that point are
// not joined: their outcomes stay nil and late writes are dropped by the
// collector.
func (s *Scanner) extract(ctx context.Context, log *logger.Logger, target types.NormalizedURL) (features.Outcomes, bool) {
	scanCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	c := &collector{}
	g, gctx := errgroup.WithContext(scanCtx)
	run := func(name string, fn func()) {
		g.Go(func() error {
			start := s.now()
			fn()
			log.WithExtractor(name).LogSlowOperation(ctx, "extract."+name, s.now().Sub(start), s.slowAfter())
			return nil
		})
	}

	run(signals.Structure, func() {
		o := s.extractors.Structure.Analyze(target)
		c.set(func(out *features.Outcomes) { out.Structure = &o })
	})
	run(signals.DomainAge, func() {
		o := s.extractors.DomainAge.Analyze(gctx, target)
		c.set(func(out *features.Outcomes) { out.DomainAge = &o })
	})
	run(signals.TLS, func() {
		o := s.extractors.TLS.Probe(gctx, target)
		c.set(func(out *features.Outcomes) { out.TLS = &o })
	})
	run(signals.Blacklist, func() {
		o := s.extractors.Blacklist.Check(gctx, target)
		c.set(func(out *features.Outcomes) { out.Blacklist = &o })
	})
	run(signals.Redirect, func() {
		o := s.extractors.Redirect.Walk(gctx, target)
		c.set(func(out *features.Outcomes) { out.Redirect = &o })
	})

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-scanCtx.Done():
	}
	timedOut := errors.Is(scanCtx.Err(), context.DeadlineExceeded)
	return c.snapshot(), timedOut
}

// slowAfter is the elapsed time past which a scan or an extractor is logged
// as slow.
func (s *Scanner) slowAfter() time.Duration {
	return s.deadline * 3 / 4
}

// score runs the rule engine and the anomaly scorer side by side.
func (s *Scanner) score(ctx context.Context, v types.FeatureVector) (types.RuleResult, types.AnomalyResult) {
	var (
		ruleResult    types.RuleResult
		anomalyResult types.AnomalyResult
		g             errgroup.Group
	)
	g.Go(func() error {
		ruleResult = s.catalogue.Evaluate(v)
		return nil
	})
	g.Go(func() error {
		anomalyResult = s.anomaly.Score(ctx, v)
		return nil
	})
	_ = g.Wait()
	return ruleResult, anomalyResult
}

func (s *Scanner) report(ctx context.Context, log *logger.Logger, result *types.ScanResult) {
	for _, w := range result.Warnings {
		if w.Code == types.WarningExtractorDegraded {
			log.LogDegraded(ctx, w.Source, w.Reason)
			s.telemetry.RecordDegraded(w.Source)
		}
	}
	if result.DeadlineExceeded {
		log.Warnw("Scan deadline exceeded, partial result returned", "deadline", s.deadline.String())
	}
	log.LogSlowOperation(ctx, "scanner.Scan", time.Duration(result.DurationMs)*time.Millisecond, s.slowAfter(),
		"deadline", s.deadline.String(),
	)

	s.telemetry.RecordRulesTriggered(result.Rules.IDs())
	s.telemetry.RecordScan(result.ThreatLevel, float64(result.DurationMs)/1000, result.Degraded)

	log.LogScanResult(ctx, result.ID, result.Target.Domain, result.RiskScore, string(result.ThreatLevel),
		"rule_score", result.Rules.Score,
		"ml_anomaly_score", result.Anomaly.Score,
		"rules_triggered", len(result.Rules.Triggered),
		"degraded", result.Degraded,
		"duration_ms", result.DurationMs,
	)
}

func (s *Scanner) persist(ctx context.Context, log *logger.Logger, result *types.ScanResult) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveScan(ctx, result); err != nil {
		log.LogError(ctx, err, "scanner.persist", "scan_id", result.ID)
	}
}

// collector gathers outcomes from extractor goroutines. Writes arriving
// after snapshot are dropped.
type collector struct {
	mu     sync.Mutex
	closed bool
	out    features.Outcomes
}

func (c *collector) set(fn func(out *features.Outcomes)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn(&c.out)
}

func (c *collector) snapshot() features.Outcomes {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.out
}

type nopTelemetry struct{}

func (nopTelemetry) RecordScan(types.ThreatLevel, float64, bool) {}
func (nopTelemetry) RecordDegraded(string)                      {}
func (nopTelemetry) RecordRulesTriggered([]string)              {}
func (nopTelemetry) Close() error                               { return nil }
