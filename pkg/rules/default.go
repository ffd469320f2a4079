package rules

import (
	"math"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

const DefaultVersion = "2025.1"

// Default returns the built-in catalogue. Each call builds a fresh value.
func Default() *Catalogue {
	return &Catalogue{
		Version: DefaultVersion,
		Caps: map[Category]float64{
			CategoryStructure: 50,
			CategoryDomain:    25,
			CategoryTLS:       20,
			CategoryRedirect:  20,
		},
		Rules: append(append(append(append(
			structureRules(),
			domainRules()...),
			tlsRules()...),
			blacklistRules()...),
			redirectRules()...),
	}
}

func structureRules() []Rule {
	return []Rule{
		{
			ID:          "long_url",
			Category:    CategoryStructure,
			Description: "Unusually long URL",
			When:        func(v types.FeatureVector) bool { return v.URLLength > 75 },
			Penalty: func(v types.FeatureVector) float64 {
				return math.Min(15, float64((v.URLLength-75)/10*3))
			},
		},
		{
			ID:          "ip_host",
			Category:    CategoryStructure,
			Description: "IP address used instead of a domain name",
			When:        func(v types.FeatureVector) bool { return v.HasIPInURL },
			Penalty:     fixed(25),
		},
		{
			ID:          "subdomains_excessive",
			Category:    CategoryStructure,
			Description: "Three or more subdomains",
			When:        func(v types.FeatureVector) bool { return v.NumSubdomains >= 3 },
			Penalty:     fixed(10),
		},
		{
			ID:          "subdomains_multiple",
			Category:    CategoryStructure,
			Description: "Two subdomains",
			When:        func(v types.FeatureVector) bool { return v.NumSubdomains == 2 },
			Penalty:     fixed(5),
		},
		{
			ID:          "keywords_multiple",
			Category:    CategoryStructure,
			Description: "Several phishing keywords",
			When:        func(v types.FeatureVector) bool { return v.SuspiciousPatterns >= 3 },
			Penalty:     fixed(15),
		},
		{
			ID:          "keyword_single",
			Category:    CategoryStructure,
			Description: "Phishing keyword present",
			When: func(v types.FeatureVector) bool {
				return v.SuspiciousPatterns >= 1 && v.SuspiciousPatterns < 3
			},
			Penalty: fixed(8),
		},
		{
			ID:          "suspicious_tld",
			Category:    CategoryStructure,
			Description: "High-risk top-level domain",
			When:        func(v types.FeatureVector) bool { return v.Indicators.SuspiciousTLD },
			Penalty:     fixed(12),
		},
		{
			ID:          "hyphens_excessive",
			Category:    CategoryStructure,
			Description: "Four or more hyphens",
			When:        func(v types.FeatureVector) bool { return v.NumHyphens >= 4 },
			Penalty:     fixed(8),
		},
		{
			ID:          "special_chars",
			Category:    CategoryStructure,
			Description: "Many special characters",
			When:        func(v types.FeatureVector) bool { return v.SpecialCharCount >= 5 },
			Penalty:     fixed(7),
		},
		{
			ID:          "at_symbol",
			Category:    CategoryStructure,
			Description: "Credentials embedded before the host (@)",
			When:        func(v types.FeatureVector) bool { return v.HasAtSymbol },
			Penalty:     fixed(15),
		},
		{
			ID:          "percent_encoding",
			Category:    CategoryStructure,
			Description: "Heavy percent-encoding",
			When:        func(v types.FeatureVector) bool { return v.PctEncodedCount >= 3 },
			Penalty:     fixed(8),
		},
		{
			ID:          "double_encoding",
			Category:    CategoryStructure,
			Description: "Double percent-encoding",
			When:        func(v types.FeatureVector) bool { return v.Indicators.DoubleEncoding },
			Penalty:     fixed(12),
		},
		{
			ID:          "punycode_host",
			Category:    CategoryStructure,
			Description: "Punycode host (possible homograph)",
			When:        func(v types.FeatureVector) bool { return v.Indicators.Punycode },
			Penalty:     fixed(10),
		},
		{
			ID:          "url_shortener",
			Category:    CategoryStructure,
			Description: "URL shortener hides the destination",
			When:        func(v types.FeatureVector) bool { return v.IsURLShortener },
			Penalty:     fixed(10),
		},
		{
			ID:          "digits_in_host",
			Category:    CategoryStructure,
			Description: "Many digits in the host name",
			When:        func(v types.FeatureVector) bool { return v.Indicators.DigitsInHost >= 4 },
			Penalty:     fixed(5),
		},
	}
}

func domainRules() []Rule {
	return []Rule{
		{
			ID:          "domain_age_unknown",
			Category:    CategoryDomain,
			Description: "Domain age could not be determined",
			When:        func(v types.FeatureVector) bool { return v.DomainAgeDays == types.UnknownDomainAge },
			Penalty:     fixed(10),
		},
		{
			ID:          "domain_age_very_new",
			Category:    CategoryDomain,
			Description: "Domain registered less than 30 days ago",
			When: func(v types.FeatureVector) bool {
				return v.DomainAgeDays >= 0 && v.DomainAgeDays < 30
			},
			Penalty: fixed(20),
		},
		{
			ID:          "domain_age_recent",
			Category:    CategoryDomain,
			Description: "Domain registered less than 180 days ago",
			When: func(v types.FeatureVector) bool {
				return v.DomainAgeDays >= 30 && v.DomainAgeDays < 180
			},
			Penalty: fixed(12),
		},
		{
			ID:          "domain_age_young",
			Category:    CategoryDomain,
			Description: "Domain registered less than a year ago",
			When: func(v types.FeatureVector) bool {
				return v.DomainAgeDays >= 180 && v.DomainAgeDays < 365
			},
			Penalty: fixed(5),
		},
	}
}

func tlsRules() []Rule {
	return []Rule{
		{
			ID:          "tls_missing",
			Category:    CategoryTLS,
			Description: "No HTTPS",
			When:        func(v types.FeatureVector) bool { return !v.HasHTTPS },
			Penalty:     fixed(20),
		},
		{
			ID:          "tls_invalid",
			Category:    CategoryTLS,
			Description: "HTTPS certificate failed validation",
			When:        func(v types.FeatureVector) bool { return v.HasHTTPS && !v.HasValidSSL },
			Penalty:     fixed(18),
		},
		{
			ID:          "tls_self_signed",
			Category:    CategoryTLS,
			Description: "Self-signed certificate",
			When: func(v types.FeatureVector) bool {
				return v.Indicators.CertObserved && v.Indicators.CertSelfSigned
			},
			Penalty: fixed(15),
		},
		{
			ID:          "tls_expired",
			Category:    CategoryTLS,
			Description: "Certificate expired",
			When: func(v types.FeatureVector) bool {
				return v.Indicators.CertObserved && v.Indicators.CertExpired
			},
			Penalty: fixed(18),
		},
		{
			ID:          "tls_expiring_very_soon",
			Category:    CategoryTLS,
			Description: "Certificate expires within 15 days",
			When: func(v types.FeatureVector) bool {
				i := v.Indicators
				return i.CertObserved && !i.CertExpired && i.CertDaysLeft < 15
			},
			Penalty: fixed(10),
		},
		{
			ID:          "tls_expiring_soon",
			Category:    CategoryTLS,
			Description: "Certificate expires within 30 days",
			When: func(v types.FeatureVector) bool {
				i := v.Indicators
				return i.CertObserved && !i.CertExpired && i.CertDaysLeft >= 15 && i.CertDaysLeft < 30
			},
			Penalty: fixed(5),
		},
		{
			ID:          "tls_login_without_valid_cert",
			Category:    CategoryTLS,
			Description: "Login-style URL without a valid certificate",
			When: func(v types.FeatureVector) bool {
				return !v.HasValidSSL && v.SuspiciousPatterns >= 1
			},
			Penalty: fixed(10),
		},
	}
}

func blacklistRules() []Rule {
	return []Rule{
		{
			ID:          "blacklisted",
			Category:    CategoryBlacklist,
			Description: "Listed by a threat intelligence source",
			When:        func(v types.FeatureVector) bool { return v.IsBlacklisted },
			Penalty:     fixed(40),
		},
	}
}

func redirectRules() []Rule {
	return []Rule{
		{
			ID:          "redirects_excessive",
			Category:    CategoryRedirect,
			Description: "Five or more redirects",
			When:        func(v types.FeatureVector) bool { return v.RedirectCount >= 5 },
			Penalty:     fixed(15),
		},
		{
			ID:          "redirects_multiple",
			Category:    CategoryRedirect,
			Description: "Three or more redirects",
			When: func(v types.FeatureVector) bool {
				return v.RedirectCount >= 3 && v.RedirectCount < 5
			},
			Penalty: fixed(8),
		},
		{
			ID:          "redirect_cross_domain",
			Category:    CategoryRedirect,
			Description: "Redirect chain changes domain",
			When:        func(v types.FeatureVector) bool { return v.Indicators.RedirectCrossDomain },
			Penalty:     fixed(10),
		},
		{
			ID:          "redirect_downgrade",
			Category:    CategoryRedirect,
			Description: "Redirect downgrades HTTPS to HTTP",
			When:        func(v types.FeatureVector) bool { return v.Indicators.RedirectDowngrade },
			Penalty:     fixed(12),
		},
		{
			ID:          "redirect_cap_exceeded",
			Category:    CategoryRedirect,
			Description: "Redirect chain longer than the hop limit",
			When:        func(v types.FeatureVector) bool { return v.Indicators.RedirectCapExceeded },
			Penalty:     fixed(18),
		},
		{
			ID:          "redirect_loop",
			Category:    CategoryRedirect,
			Description: "Redirect loop",
			When:        func(v types.FeatureVector) bool { return v.Indicators.RedirectLoop },
			Penalty:     fixed(18),
		},
	}
}
