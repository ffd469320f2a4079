// Package features merges extractor outcomes into the feature vector.
package features

import (
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/blacklist"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/domainage"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/structure"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/urlnorm"
)

// Outcomes holds one tagged outcome per extractor. A nil pointer means the
// extractor never reported, for example because the scan deadline passed.
type Outcomes struct {
	Structure *signals.Outcome[structure.Result]
	DomainAge *signals.Outcome[domainage.Result]
	TLS       *signals.Outcome[types.CertInfo]
	Blacklist *signals.Outcome[blacklist.Result]
	Redirect  *signals.Outcome[types.RedirectChain]
}

// Assembly is the assembler's output: the vector, the unscored metadata and
// every warning raised along the way.
type Assembly struct {
	Vector   types.FeatureVector
	Aux      types.Aux
	Warnings []types.Warning
	Degraded bool
	// Missing lists extractors that never reported.
	Missing []string
}

// Assemble is pure. Every field starts at its default and is only
// overwritten from an outcome that can be trusted for it.
func Assemble(target types.NormalizedURL, in Outcomes) Assembly {
	a := Assembly{Vector: types.DefaultFeatureVector()}
	v := &a.Vector

	a.Aux.Suffix = urlnorm.Suffix(target.Domain)

	if o := in.Structure; o != nil {
		a.note(o.Extractor, o.Degraded, o.Reason)
		if !o.Degraded {
			s := o.Value
			v.URLLength = s.URLLength
			v.NumSubdomains = s.NumSubdomains
			v.HasIPInURL = s.HasIP
			v.SuspiciousPatterns = s.KeywordCount
			v.SpecialCharCount = s.SpecialChars
			v.NumHyphens = s.Hyphens
			v.PathDepth = s.PathDepth
			v.PctEncodedCount = s.PctEncoded
			v.HasAtSymbol = s.HasAtSymbol
			v.IsURLShortener = s.Shortener
			v.Indicators.SuspiciousTLD = s.SuspiciousTLD
			v.Indicators.DoubleEncoding = s.DoubleEncoding
			v.Indicators.Punycode = s.Punycode
			v.Indicators.DigitsInHost = s.DigitsInHost
			a.Aux.MatchedKeywords = s.MatchedKeywords
		}
	} else {
		a.missing(signals.Structure)
	}

	if o := in.DomainAge; o != nil {
		a.note(o.Extractor, o.Degraded, o.Reason)
		if !o.Degraded {
			v.DomainAgeDays = o.Value.AgeDays
		}
		a.Aux.Whois = o.Value.Info
	} else {
		a.missing(signals.DomainAge)
	}

	if o := in.Redirect; o != nil {
		a.note(o.Extractor, o.Degraded, o.Reason)
		a.Aux.Redirects = o.Value
		if !o.Degraded {
			r := o.Value
			v.RedirectCount = r.Count
			v.Indicators.RedirectCrossDomain = r.CrossDomain
			v.Indicators.RedirectDowngrade = r.Downgrade
			v.Indicators.RedirectCapExceeded = r.CapExceeded
			v.Indicators.RedirectLoop = r.Loop
		}
	} else {
		a.missing(signals.Redirect)
	}

	if o := in.TLS; o != nil {
		a.note(o.Extractor, o.Degraded, o.Reason)
		cert := o.Value
		if !o.Degraded && cert.HandshakeOK {
			a.Aux.Certificate = &cert
			httpsTarget := target.Scheme == types.SchemeHTTPS ||
				a.Aux.Redirects.FinalScheme() == string(types.SchemeHTTPS)
			v.HasHTTPS = httpsTarget
			v.HasValidSSL = httpsTarget && cert.Verified
			v.Indicators.CertObserved = true
			v.Indicators.CertSelfSigned = cert.SelfSigned
			v.Indicators.CertExpired = cert.Expired
			v.Indicators.CertDaysLeft = cert.DaysLeft
		}
	} else {
		a.missing(signals.TLS)
	}

	if o := in.Blacklist; o != nil {
		a.note(o.Extractor, o.Degraded, o.Reason)
		a.Warnings = append(a.Warnings, o.Value.Warnings...)
		a.Aux.Blacklist = o.Value.Info
		if !o.Degraded {
			v.IsBlacklisted = o.Value.Info.Matched
		} else {
			a.Aux.Blacklist.Matched = false
			a.Aux.Blacklist.Source = ""
		}
	} else {
		a.missing(signals.Blacklist)
	}

	return a
}

func (a *Assembly) note(extractor string, degraded bool, reason string) {
	if !degraded {
		return
	}
	a.Degraded = true
	a.Warnings = append(a.Warnings, types.Warning{
		Source: extractor,
		Code:   types.WarningExtractorDegraded,
		Reason: reason,
	})
}

func (a *Assembly) missing(extractor string) {
	a.Degraded = true
	a.Missing = append(a.Missing, extractor)
	a.Warnings = append(a.Warnings, types.Warning{
		Source: extractor,
		Code:   types.WarningExtractorDegraded,
		Reason: "no result before scan deadline",
	})
}
