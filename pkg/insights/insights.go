// Package insights turns a scored result into plain-language explanations.
package insights

import (
	"fmt"

	"github.com/twmb/murmur3"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Build returns the insights for a result, most severe first. Each insight
// appears at most once and general_safe is used only when nothing else
// applies.
func Build(res *types.ScanResult) []types.Insight {
	v := res.Vector
	b := builder{seen: make(map[string]bool)}

	b.addIf(v.IsBlacklisted, "blacklisted")
	b.addIf(v.HasIPInURL, "ip_in_url")
	b.addIf(!v.HasHTTPS, "no_https")
	b.addIf(v.HasHTTPS && !v.HasValidSSL, "invalid_ssl")
	b.addIf(v.Indicators.Punycode, "punycode")
	b.addIf(v.HasAtSymbol, "phishing_keywords")
	b.addIf(v.DomainAgeDays != types.UnknownDomainAge && v.DomainAgeDays < 180, "new_domain")
	b.addIf(v.RedirectCount >= 3 || v.Indicators.RedirectLoop || v.Indicators.RedirectDowngrade, "excessive_redirects")
	b.addIf(v.SuspiciousPatterns >= 1, "phishing_keywords")
	b.addIf(v.IsURLShortener, "url_shortener")
	b.addIf(v.Indicators.SuspiciousTLD, "suspicious_tld")
	b.addIf(v.PctEncodedCount >= 3 || v.Indicators.DoubleEncoding, "encoded_obfuscation")

	a := res.Anomaly
	b.addIf(!a.Degraded && a.IsAnomaly &&
		(a.Confidence == types.ConfidenceHigh || a.Confidence == types.ConfidenceMedium), "anomaly_detected")

	if len(b.out) == 0 {
		b.add("general_safe")
	}
	return b.out
}

type builder struct {
	seen map[string]bool
	out  []types.Insight
}

func (b *builder) addIf(cond bool, id string) {
	if cond {
		b.add(id)
	}
}

func (b *builder) add(id string) {
	if b.seen[id] {
		return
	}
	in, ok := Lookup(id)
	if !ok {
		return
	}
	b.seen[id] = true
	b.out = append(b.out, in)
}

// Summary is the one-paragraph headline for a threat level.
func Summary(level types.ThreatLevel) string {
	switch level {
	case types.ThreatLevelHighRisk:
		return "This URL shows multiple high-risk indicators. Do not proceed: " +
			"it may try to steal credentials, install malware or defraud you."
	case types.ThreatLevelSuspicious:
		return "This URL has suspicious characteristics. Verify the site " +
			"through official channels before entering any information."
	default:
		return "No critical threats were detected. The URL appears relatively " +
			"safe, but stay skeptical online."
	}
}

// Tips renders insights as the compact strings stored with scan history.
func Tips(in []types.Insight) []string {
	tips := make([]string, 0, len(in))
	for _, i := range in {
		tips = append(tips, fmt.Sprintf("[%s] %s", i.Severity, i.Title))
	}
	return tips
}

// TipFor picks an awareness tip for a key. The same key always gets the same
// tip.
func TipFor(key string) string {
	idx := murmur3.Sum32([]byte(key)) % uint32(len(AwarenessTips))
	return AwarenessTips[idx]
}
