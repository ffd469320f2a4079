package types

import (
	"fmt"
	"time"
)

type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

type ThreatLevel string

const (
	ThreatLevelSafe       ThreatLevel = "safe"
	ThreatLevelSuspicious ThreatLevel = "suspicious"
	ThreatLevelHighRisk   ThreatLevel = "high_risk"
)

// Label returns the human readable form used by the CLI and insights.
func (t ThreatLevel) Label() string {
	switch t {
	case ThreatLevelSafe:
		return "Safe"
	case ThreatLevelSuspicious:
		return "Suspicious"
	case ThreatLevelHighRisk:
		return "High Risk"
	default:
		return string(t)
	}
}

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ScanRequest is the caller input for a single scan.
type ScanRequest struct {
	RawURL string `json:"url"`
	UserID string `json:"user_id"`
}

// NormalizedURL is the canonical form of a scan target. Domain holds the
// registrable domain, or the literal address when the host is an IP.
type NormalizedURL struct {
	URL    string `json:"url"`
	Host   string `json:"host"`
	Domain string `json:"domain"`
	Scheme Scheme `json:"scheme"`
	IsIP   bool   `json:"is_ip"`
}

type Hop struct {
	Index      int    `json:"index"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Scheme     string `json:"scheme"`
	Domain     string `json:"domain"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

type RedirectChain struct {
	Hops        []Hop  `json:"hops"`
	FinalURL    string `json:"final_url"`
	Count       int    `json:"count"`
	Truncated   bool   `json:"truncated"`
	CapExceeded bool   `json:"cap_exceeded"`
	Loop        bool   `json:"loop"`
	CrossDomain bool   `json:"cross_domain"`
	Downgrade   bool   `json:"downgrade"`
}

// FinalScheme returns the scheme of the last hop reached, or "" when no hop
// was recorded.
func (c RedirectChain) FinalScheme() string {
	if len(c.Hops) == 0 {
		return ""
	}
	return c.Hops[len(c.Hops)-1].Scheme
}

type CertInfo struct {
	HandshakeOK bool      `json:"handshake_ok"`
	Verified    bool      `json:"verified"`
	Issuer      string    `json:"issuer,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	DNSNames    []string  `json:"dns_names,omitempty"`
	NotBefore   time.Time `json:"not_before,omitempty"`
	NotAfter    time.Time `json:"not_after,omitempty"`
	DaysLeft    int       `json:"days_left"`
	Version     string    `json:"tls_version,omitempty"`
	SelfSigned  bool      `json:"self_signed"`
	Expired     bool      `json:"expired"`
	OCSPStatus  string    `json:"ocsp_status,omitempty"`
	VerifyError string    `json:"verify_error,omitempty"`
}

type WhoisInfo struct {
	Registrar string     `json:"registrar,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Source    string     `json:"source"`
}

type BlacklistInfo struct {
	Matched bool   `json:"matched"`
	Source  string `json:"source,omitempty"`
	URLHash string `json:"url_hash,omitempty"`
}

// Aux carries unscored metadata gathered next to the feature vector. Scoring
// never reads it.
type Aux struct {
	Redirects       RedirectChain `json:"redirect_chain"`
	Certificate     *CertInfo     `json:"ssl_info,omitempty"`
	Whois           *WhoisInfo    `json:"whois,omitempty"`
	Blacklist       BlacklistInfo `json:"blacklist"`
	MatchedKeywords []string      `json:"matched_keywords,omitempty"`
	Suffix          string        `json:"suffix,omitempty"`
}

type TriggeredRule struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Penalty     float64 `json:"penalty"`
}

type RuleResult struct {
	Score            float64         `json:"rule_score"`
	Triggered        []TriggeredRule `json:"triggered_rules"`
	CatalogueVersion string          `json:"catalogue_version"`
}

// IDs returns the triggered rule identifiers in definition order.
func (r RuleResult) IDs() []string {
	ids := make([]string, 0, len(r.Triggered))
	for _, t := range r.Triggered {
		ids = append(ids, t.ID)
	}
	return ids
}

type AnomalyResult struct {
	Score        float64    `json:"ml_anomaly_score"`
	IsAnomaly    bool       `json:"is_anomaly"`
	Raw          float64    `json:"raw_score"`
	Threshold    float64    `json:"threshold"`
	Confidence   Confidence `json:"confidence"`
	ModelVersion string     `json:"model_version"`
	Degraded     bool       `json:"degraded"`
}

type Insight struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    string   `json:"severity"`
	Explanation string   `json:"explanation"`
	Actions     []string `json:"what_to_do"`
	LearnMore   string   `json:"learn_more,omitempty"`
}

// RiskBreakdown explains how a risk score was produced.
type RiskBreakdown struct {
	RuleScore     float64     `json:"rule_score"`
	AnomalyScore  float64     `json:"ml_anomaly_score"`
	RuleWeight    float64     `json:"rule_weight"`
	AnomalyWeight float64     `json:"anomaly_weight"`
	RulesOnly     bool        `json:"rules_only"`
	FloorApplied  string      `json:"floor_applied,omitempty"`
	Risk          float64     `json:"risk_score"`
	Level         ThreatLevel `json:"threat_level"`
}

// Formula renders the combination for display.
func (b RiskBreakdown) Formula() string {
	var f string
	if b.RulesOnly {
		f = fmt.Sprintf("rules only = %.2f", b.Risk)
	} else {
		f = fmt.Sprintf("(%.1f x %.1f) + (%.1f x %.1f) = %.2f",
			b.RuleWeight, b.RuleScore, b.AnomalyWeight, b.AnomalyScore, b.Risk)
	}
	if b.FloorApplied != "" {
		f += fmt.Sprintf(" (floor: %s)", b.FloorApplied)
	}
	return f
}

// ScanResult is the complete, immutable outcome of one scan.
type ScanResult struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	ScannedAt        time.Time     `json:"scanned_at"`
	Target           NormalizedURL `json:"target"`
	Vector           FeatureVector `json:"feature_vector"`
	Rules            RuleResult    `json:"rules"`
	Anomaly          AnomalyResult `json:"anomaly"`
	RiskScore        float64       `json:"risk_score"`
	ThreatLevel      ThreatLevel   `json:"threat_level"`
	Breakdown        RiskBreakdown `json:"breakdown"`
	Aux              Aux           `json:"aux"`
	Warnings         []Warning     `json:"warnings,omitempty"`
	Degraded         bool          `json:"degraded"`
	DeadlineExceeded bool          `json:"deadline_exceeded"`
	Insights         []Insight     `json:"insights,omitempty"`
	Summary          string        `json:"summary,omitempty"`
	DurationMs       int64         `json:"duration_ms"`
}

// ScanRecord is the summary row returned by history listings.
type ScanRecord struct {
	ID             string      `json:"id" db:"id"`
	UserID         string      `json:"user_id" db:"user_id"`
	URL            string      `json:"url" db:"url"`
	Domain         string      `json:"domain" db:"domain"`
	RiskScore      float64     `json:"risk_score" db:"risk_score"`
	ThreatLevel    ThreatLevel `json:"threat_level" db:"threat_level"`
	RuleScore      float64     `json:"rule_score" db:"rule_score"`
	MLAnomalyScore float64     `json:"ml_anomaly_score" db:"ml_anomaly_score"`
	ScannedAt      time.Time   `json:"scanned_at" db:"scanned_at"`
}

type TrendPoint struct {
	Day     time.Time `json:"day" db:"day"`
	AvgRisk float64   `json:"avg_risk" db:"avg_risk"`
	Scans   int       `json:"scans" db:"scans"`
}
