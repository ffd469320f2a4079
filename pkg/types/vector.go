package types

// FeatureCount is the number of scored model dimensions.
const FeatureCount = 15

// UnknownDomainAge marks a domain whose creation date could not be measured.
const UnknownDomainAge = -1

// FeatureNames lists the model dimensions in vector order. Anomaly models are
// trained against this exact order.
var FeatureNames = [FeatureCount]string{
	"url_length",
	"num_subdomains",
	"has_https",
	"domain_age_days",
	"redirect_count",
	"is_blacklisted",
	"has_ip_in_url",
	"suspicious_patterns",
	"has_valid_ssl",
	"special_char_count",
	"num_hyphens",
	"path_depth",
	"pct_encoded_count",
	"has_at_symbol",
	"is_url_shortener",
}

// FeatureVector is the fixed encoding of a URL's measured signals and the
// only input to both scoring paths. It is a value type; copies never alias.
type FeatureVector struct {
	URLLength          int  `json:"url_length"`
	NumSubdomains      int  `json:"num_subdomains"`
	HasHTTPS           bool `json:"has_https"`
	DomainAgeDays      int  `json:"domain_age_days"`
	RedirectCount      int  `json:"redirect_count"`
	IsBlacklisted      bool `json:"is_blacklisted"`
	HasIPInURL         bool `json:"has_ip_in_url"`
	SuspiciousPatterns int  `json:"suspicious_patterns"`
	HasValidSSL        bool `json:"has_valid_ssl"`
	SpecialCharCount   int  `json:"special_char_count"`
	NumHyphens         int  `json:"num_hyphens"`
	PathDepth          int  `json:"path_depth"`
	PctEncodedCount    int  `json:"pct_encoded_count"`
	HasAtSymbol        bool `json:"has_at_symbol"`
	IsURLShortener     bool `json:"is_url_shortener"`

	// Indicators are rule-only inputs measured by the same extractors. They
	// are not model dimensions.
	Indicators Indicators `json:"indicators"`
}

// Indicators hold derived flags the rule catalogue scores but the anomaly
// model does not see.
type Indicators struct {
	SuspiciousTLD       bool `json:"suspicious_tld"`
	DoubleEncoding      bool `json:"double_encoding"`
	Punycode            bool `json:"punycode"`
	DigitsInHost        int  `json:"digits_in_host"`
	CertObserved        bool `json:"cert_observed"`
	CertSelfSigned      bool `json:"cert_self_signed"`
	CertExpired         bool `json:"cert_expired"`
	CertDaysLeft        int  `json:"cert_days_left"`
	RedirectCrossDomain bool `json:"redirect_cross_domain"`
	RedirectDowngrade   bool `json:"redirect_downgrade"`
	RedirectCapExceeded bool `json:"redirect_cap_exceeded"`
	RedirectLoop        bool `json:"redirect_loop"`
}

// DefaultFeatureVector returns the vector used before any extractor reports:
// zero counts, false flags and an unknown domain age.
func DefaultFeatureVector() FeatureVector {
	return FeatureVector{DomainAgeDays: UnknownDomainAge}
}

// Values returns the model dimensions in FeatureNames order, with booleans
// encoded as 0 or 1.
func (v FeatureVector) Values() [FeatureCount]float64 {
	return [FeatureCount]float64{
		float64(v.URLLength),
		float64(v.NumSubdomains),
		boolToFloat(v.HasHTTPS),
		float64(v.DomainAgeDays),
		float64(v.RedirectCount),
		boolToFloat(v.IsBlacklisted),
		boolToFloat(v.HasIPInURL),
		float64(v.SuspiciousPatterns),
		boolToFloat(v.HasValidSSL),
		float64(v.SpecialCharCount),
		float64(v.NumHyphens),
		float64(v.PathDepth),
		float64(v.PctEncodedCount),
		boolToFloat(v.HasAtSymbol),
		boolToFloat(v.IsURLShortener),
	}
}

// Map returns the model dimensions keyed by feature name.
func (v FeatureVector) Map() map[string]float64 {
	values := v.Values()
	m := make(map[string]float64, FeatureCount)
	for i, name := range FeatureNames {
		m[name] = values[i]
	}
	return m
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
