// Package structure measures lexical properties of a URL. It never touches
// the network.
package structure

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

var (
	DefaultKeywords = []string{
		"login", "signin", "verify", "account", "secure", "update",
		"confirm", "banking", "paypal", "amazon", "google", "microsoft",
		"apple", "netflix", "password", "credential", "validate",
		"authenticate", "suspended", "unusual", "activity", "alert",
		"urgent", "click", "free", "win", "prize", "lottery",
		"crypto", "bitcoin", "wallet", "recovery",
	}

	DefaultSuspiciousTLDs = []string{
		".tk", ".ml", ".ga", ".cf", ".gq", ".xyz", ".top", ".club",
		".online", ".site", ".icu", ".pw", ".cc", ".biz", ".info",
		".vip", ".fun", ".work", ".loan", ".win", ".bid",
	}

	DefaultShorteners = []string{
		"bit.ly", "t.co", "tinyurl.com", "goo.gl", "ow.ly", "buff.ly",
		"is.gd", "rebrand.ly", "cutt.ly", "short.gy",
	}
)

var (
	specialChars   = regexp.MustCompile(`[@%&=~#!$*]`)
	percentEncoded = regexp.MustCompile(`%[0-9a-fA-F]{2}`)
	doubleEncoded  = regexp.MustCompile(`%25[0-9a-fA-F]{2}`)
	dottedQuad     = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
)

// Result is the structural measurement of one URL.
type Result struct {
	URLLength       int
	NumSubdomains   int
	HasIP           bool
	KeywordCount    int
	MatchedKeywords []string
	SpecialChars    int
	Hyphens         int
	PathDepth       int
	PctEncoded      int
	HasAtSymbol     bool
	Shortener       bool
	SuspiciousTLD   bool
	DoubleEncoding  bool
	Punycode        bool
	DigitsInHost    int
}

type Analyzer struct {
	keywords       []string
	suspiciousTLDs []string
	shorteners     map[string]struct{}
}

// NewAnalyzer builds an analyzer from cfg. Empty lists keep the defaults.
func NewAnalyzer(cfg config.StructureConfig) *Analyzer {
	a := &Analyzer{
		keywords:       lowerAll(pick(cfg.Keywords, DefaultKeywords)),
		suspiciousTLDs: lowerAll(pick(cfg.SuspiciousTLDs, DefaultSuspiciousTLDs)),
		shorteners:     make(map[string]struct{}),
	}
	for i, tld := range a.suspiciousTLDs {
		if !strings.HasPrefix(tld, ".") {
			a.suspiciousTLDs[i] = "." + tld
		}
	}
	for _, s := range pick(cfg.Shorteners, DefaultShorteners) {
		a.shorteners[strings.ToLower(s)] = struct{}{}
	}
	return a
}

// Analyze is total: any normalized URL yields a Result.
func (a *Analyzer) Analyze(target types.NormalizedURL) signals.Outcome[Result] {
	raw := target.URL
	lower := strings.ToLower(raw)
	host := target.Host

	r := Result{
		URLLength:      len(raw),
		HasIP:          target.IsIP || net.ParseIP(host) != nil || dottedQuad.MatchString(host),
		SpecialChars:   len(specialChars.FindAllStringIndex(raw, -1)),
		Hyphens:        strings.Count(raw, "-"),
		PctEncoded:     len(percentEncoded.FindAllStringIndex(raw, -1)),
		DoubleEncoding: doubleEncoded.MatchString(raw),
		Punycode:       strings.Contains(host, "xn--"),
		DigitsInHost:   countDigits(host),
	}

	if !r.HasIP {
		r.NumSubdomains = subdomainCount(host, target.Domain)
	}

	for _, kw := range a.keywords {
		if strings.Contains(lower, kw) {
			r.MatchedKeywords = append(r.MatchedKeywords, kw)
		}
	}
	r.KeywordCount = len(r.MatchedKeywords)

	for _, tld := range a.suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			r.SuspiciousTLD = true
			break
		}
	}

	if _, ok := a.shorteners[host]; ok {
		r.Shortener = true
	} else if _, ok := a.shorteners[target.Domain]; ok {
		r.Shortener = true
	}

	if u, err := url.Parse(raw); err == nil {
		r.HasAtSymbol = u.User != nil
		r.PathDepth = strings.Count(strings.Trim(u.Path, "/"), "/")
	}

	return signals.OK(signals.Structure, r)
}

func subdomainCount(host, domain string) int {
	if domain == "" || host == domain {
		return 0
	}
	n := len(strings.Split(host, ".")) - len(strings.Split(domain, "."))
	if n < 0 {
		return 0
	}
	return n
}

func countDigits(s string) int {
	n := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			n++
		}
	}
	return n
}

func pick(override, def []string) []string {
	if len(override) > 0 {
		return override
	}
	return def
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
