// Package scoring combines the rule and anomaly scores into one risk value
// and classifies it.
package scoring

import (
	"fmt"
	"math"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Floor raises the risk to Minimum when the rule RuleID has triggered.
type Floor struct {
	RuleID  string
	Minimum float64
}

// Policy holds the combination weights and classification thresholds.
type Policy struct {
	RuleWeight    float64
	AnomalyWeight float64
	SuspiciousAt  float64
	HighRiskAt    float64
	Floors        []Floor
}

// LegacyFloors reproduces the hard overrides of the first SafeLink release.
// They are not part of DefaultPolicy.
var LegacyFloors = []Floor{
	{RuleID: "blacklisted", Minimum: 80},
	{RuleID: "ip_host", Minimum: 60},
}

func DefaultPolicy() Policy {
	return Policy{
		RuleWeight:    0.6,
		AnomalyWeight: 0.4,
		SuspiciousAt:  40,
		HighRiskAt:    70,
	}
}

// PolicyFromConfig builds and validates a policy.
func PolicyFromConfig(cfg config.ScoringConfig) (Policy, error) {
	p := Policy{
		RuleWeight:    cfg.RuleWeight,
		AnomalyWeight: cfg.AnomalyWeight,
		SuspiciousAt:  cfg.SuspiciousAt,
		HighRiskAt:    cfg.HighRiskAt,
	}
	for _, f := range cfg.Floors {
		p.Floors = append(p.Floors, Floor{RuleID: f.RuleID, Minimum: f.Minimum})
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.RuleWeight < 0 || p.AnomalyWeight < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if p.RuleWeight+p.AnomalyWeight == 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	if p.SuspiciousAt <= 0 || p.SuspiciousAt >= p.HighRiskAt || p.HighRiskAt > 100 {
		return fmt.Errorf("thresholds must satisfy 0 < suspicious (%.2f) < high risk (%.2f) <= 100",
			p.SuspiciousAt, p.HighRiskAt)
	}
	for _, f := range p.Floors {
		if f.RuleID == "" {
			return fmt.Errorf("floor without a rule id")
		}
		if f.Minimum < 0 || f.Minimum > 100 {
			return fmt.Errorf("floor %q minimum %.2f outside [0, 100]", f.RuleID, f.Minimum)
		}
	}
	return nil
}

// Breakdown is carried on every scan result.
type Breakdown = types.RiskBreakdown

// Combine produces the final risk. A degraded anomaly result is ignored and
// the rule score stands alone.
func (p Policy) Combine(rules types.RuleResult, anomaly types.AnomalyResult) Breakdown {
	b := Breakdown{
		RuleScore:     rules.Score,
		AnomalyScore:  anomaly.Score,
		RuleWeight:    p.RuleWeight,
		AnomalyWeight: p.AnomalyWeight,
	}

	var risk float64
	if anomaly.Degraded {
		b.RulesOnly = true
		b.AnomalyScore = 0
		risk = rules.Score
	} else {
		risk = p.RuleWeight*rules.Score + p.AnomalyWeight*anomaly.Score
	}
	risk = clamp(risk)

	triggered := make(map[string]bool, len(rules.Triggered))
	for _, t := range rules.Triggered {
		triggered[t.ID] = true
	}
	for _, f := range p.Floors {
		if triggered[f.RuleID] && risk < f.Minimum {
			risk = f.Minimum
			b.FloorApplied = f.RuleID
		}
	}

	b.Risk = risk
	b.Level = p.Classify(risk)
	return b
}

// Classify maps a risk score to a threat level. Lower bounds are inclusive.
func (p Policy) Classify(risk float64) types.ThreatLevel {
	switch {
	case risk >= p.HighRiskAt:
		return types.ThreatLevelHighRisk
	case risk >= p.SuspiciousAt:
		return types.ThreatLevelSuspicious
	default:
		return types.ThreatLevelSafe
	}
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}
