package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

func ruleResult(score float64, ids ...string) types.RuleResult {
	r := types.RuleResult{Score: score}
	for _, id := range ids {
		r.Triggered = append(r.Triggered, types.TriggeredRule{ID: id})
	}
	return r
}

func TestClassifyBoundaries(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		risk float64
		want types.ThreatLevel
	}{
		{0, types.ThreatLevelSafe},
		{39.999, types.ThreatLevelSafe},
		{40, types.ThreatLevelSuspicious},
		{69.999, types.ThreatLevelSuspicious},
		{70, types.ThreatLevelHighRisk},
		{100, types.ThreatLevelHighRisk},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Classify(tt.risk), "risk %.3f", tt.risk)
	}
}

func TestCombineWeighted(t *testing.T) {
	p := DefaultPolicy()
	b := p.Combine(ruleResult(80), types.AnomalyResult{Score: 50})

	assert.InDelta(t, 68.0, b.Risk, 1e-9)
	assert.Equal(t, types.ThreatLevelSuspicious, b.Level)
	assert.False(t, b.RulesOnly)
	assert.Equal(t, "(0.6 x 80.0) + (0.4 x 50.0) = 68.00", b.Formula())
}

func TestCombineClamps(t *testing.T) {
	p := Policy{RuleWeight: 1, AnomalyWeight: 1, SuspiciousAt: 40, HighRiskAt: 70}

	b := p.Combine(ruleResult(100), types.AnomalyResult{Score: 100})
	assert.Equal(t, 100.0, b.Risk)
	assert.Equal(t, types.ThreatLevelHighRisk, b.Level)

	b = p.Combine(ruleResult(0), types.AnomalyResult{Score: 0})
	assert.Equal(t, 0.0, b.Risk)
	assert.Equal(t, types.ThreatLevelSafe, b.Level)
}

func TestCombineRulesOnlyWhenAnomalyDegraded(t *testing.T) {
	p := DefaultPolicy()
	b := p.Combine(ruleResult(55), types.AnomalyResult{Score: 90, Degraded: true})

	assert.True(t, b.RulesOnly)
	assert.Equal(t, 55.0, b.Risk)
	assert.Zero(t, b.AnomalyScore)
	assert.Equal(t, types.ThreatLevelSuspicious, b.Level)
	assert.Equal(t, "rules only = 55.00", b.Formula())
}

func TestFloors(t *testing.T) {
	p := DefaultPolicy()
	b := p.Combine(ruleResult(40, "blacklisted"), types.AnomalyResult{Score: 20})
	assert.InDelta(t, 32.0, b.Risk, 1e-9, "floors are off by default")

	p.Floors = LegacyFloors
	b = p.Combine(ruleResult(40, "blacklisted"), types.AnomalyResult{Score: 20})
	assert.Equal(t, 80.0, b.Risk)
	assert.Equal(t, "blacklisted", b.FloorApplied)
	assert.Equal(t, types.ThreatLevelHighRisk, b.Level)

	b = p.Combine(ruleResult(25, "ip_host"), types.AnomalyResult{Score: 10})
	assert.Equal(t, 60.0, b.Risk)
	assert.Equal(t, types.ThreatLevelSuspicious, b.Level)

	// A floor never lowers the score.
	b = p.Combine(ruleResult(100, "ip_host"), types.AnomalyResult{Score: 100})
	assert.Equal(t, 100.0, b.Risk)
	assert.Empty(t, b.FloorApplied)
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"negative weight", func(p *Policy) { p.RuleWeight = -1 }},
		{"zero weights", func(p *Policy) { p.RuleWeight, p.AnomalyWeight = 0, 0 }},
		{"inverted thresholds", func(p *Policy) { p.SuspiciousAt, p.HighRiskAt = 70, 40 }},
		{"threshold above 100", func(p *Policy) { p.HighRiskAt = 120 }},
		{"floor out of range", func(p *Policy) { p.Floors = []Floor{{RuleID: "x", Minimum: 101}} }},
		{"floor without id", func(p *Policy) { p.Floors = []Floor{{Minimum: 50}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Scoring
	cfg.Floors = []config.FloorConfig{{RuleID: "blacklisted", Minimum: 80}}

	p, err := PolicyFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.6, p.RuleWeight)
	assert.Equal(t, []Floor{{RuleID: "blacklisted", Minimum: 80}}, p.Floors)

	cfg.SuspiciousAt = 0
	_, err = PolicyFromConfig(cfg)
	assert.Error(t, err)
}
