package insights

import "github.com/CodeMonkeyCybersecurity/safelink/pkg/types"

// Severity labels, highest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

var library = map[string]types.Insight{
	"ip_in_url": {
		Title:    "IP address used instead of a domain name",
		Severity: SeverityHigh,
		Explanation: "Legitimate sites use domain names. A raw IP address such as " +
			"http://192.0.2.10/login is a classic sign of phishing or malware " +
			"infrastructure that avoids domain registration scrutiny.",
		Actions: []string{
			"Do not open the link.",
			"Report the URL to your security team.",
			"If you already visited it, run a malware scan.",
		},
		LearnMore: "OWASP: phishing techniques",
	},
	"no_https": {
		Title:    "No HTTPS",
		Severity: SeverityHigh,
		Explanation: "Without HTTPS, everything you send travels in plaintext and " +
			"can be read or modified by anyone on the network path.",
		Actions: []string{
			"Do not enter personal information on this site.",
			"Look for the padlock in the address bar.",
			"Use a VPN on untrusted networks.",
		},
		LearnMore: "Let's Encrypt: why HTTPS matters",
	},
	"invalid_ssl": {
		Title:    "Invalid or untrusted certificate",
		Severity: SeverityHigh,
		Explanation: "The certificate is expired, self-signed or not trusted for " +
			"this host. Phishing sites often present a padlock backed by a " +
			"certificate no browser would accept.",
		Actions: []string{
			"Never click through certificate warnings.",
			"Inspect the certificate issuer and subject.",
			"Make sure you are on the domain you expect.",
		},
		LearnMore: "Certificate validation basics",
	},
	"new_domain": {
		Title:    "Newly registered domain",
		Severity: SeverityMedium,
		Explanation: "Most malicious domains are used within weeks of registration " +
			"and then abandoned. A domain younger than six months deserves extra " +
			"caution, especially when it imitates a known brand.",
		Actions: []string{
			"Find the organisation through a search engine or a bookmark instead.",
			"Hover over links to preview where they lead.",
		},
		LearnMore: "CISA: recognizing phishing",
	},
	"blacklisted": {
		Title:    "Listed by threat intelligence",
		Severity: SeverityCritical,
		Explanation: "Security researchers or automated feeds have reported this " +
			"URL or domain as malicious. A blocklist match is one of the strongest " +
			"indicators available.",
		Actions: []string{
			"Do not visit this URL.",
			"If you entered credentials, change them now.",
			"Run a full malware scan.",
			"Report the URL to your security team.",
		},
		LearnMore: "Google Safe Browsing",
	},
	"excessive_redirects": {
		Title:    "Long or suspicious redirect chain",
		Severity: SeverityMedium,
		Explanation: "Several redirects, especially across domains or from HTTPS " +
			"to HTTP, are used to hide the real destination and slip past URL " +
			"filters.",
		Actions: []string{
			"Expand the link with a preview service before opening it.",
			"Be wary of links from email or social media that bounce between sites.",
		},
		LearnMore: "How HTTP redirects work",
	},
	"phishing_keywords": {
		Title:    "Phishing keywords in the URL",
		Severity: SeverityMedium,
		Explanation: "Words like verify, secure, account or login, or brand names " +
			"placed in the URL, are used to create urgency and borrow trust.",
		Actions: []string{
			"Pause before acting on urgent requests.",
			"Go to the organisation's site directly.",
			"Confirm through an official channel.",
		},
		LearnMore: "APWG phishing trends",
	},
	"suspicious_tld": {
		Title:    "High-risk top-level domain",
		Severity: SeverityMedium,
		Explanation: "Free or very cheap TLDs host a disproportionate share of " +
			"phishing and malware sites. Not every site there is malicious, but " +
			"it warrants scrutiny.",
		Actions: []string{
			"Research the site independently before trusting it.",
		},
		LearnMore: "Spamhaus TLD statistics",
	},
	"url_shortener": {
		Title:    "URL shortener hides the destination",
		Severity: SeverityLow,
		Explanation: "Shortened links conceal where they lead, so their risk cannot " +
			"be judged until the destination is revealed.",
		Actions: []string{
			"Preview shortened links before opening them.",
			"When in doubt, search for the content directly.",
		},
		LearnMore: "URL shorteners and security",
	},
	"punycode": {
		Title:    "Possible homograph attack",
		Severity: SeverityHigh,
		Explanation: "The host uses punycode (xn--). Look-alike characters from " +
			"other alphabets can make a domain appear identical to a trusted one.",
		Actions: []string{
			"Type important addresses by hand.",
			"Configure your browser to display punycode hosts.",
		},
		LearnMore: "ICANN: internationalized domain names",
	},
	"encoded_obfuscation": {
		Title:    "Encoding used for obfuscation",
		Severity: SeverityMedium,
		Explanation: "Heavy or double percent-encoding hides paths and payloads " +
			"from scanners and readers.",
		Actions: []string{
			"Decode the URL before visiting it.",
			"Report obfuscated links to your security team.",
		},
		LearnMore: "OWASP: URL encoding",
	},
	"anomaly_detected": {
		Title:    "Anomalous URL profile",
		Severity: SeverityMedium,
		Explanation: "The anomaly model found this URL's features far from the " +
			"profile of ordinary safe links. New malicious infrastructure often " +
			"shows up here before it reaches any blocklist.",
		Actions: []string{
			"Treat the URL with caution even if it looks legitimate.",
			"Get a second opinion from another scanner.",
		},
		LearnMore: "Anomaly detection in security",
	},
	"general_safe": {
		Title:    "No significant threats found",
		Severity: SeverityInfo,
		Explanation: "The domain is established, HTTPS is configured and no " +
			"suspicious patterns were detected. No automated check is perfect, so " +
			"stay careful with sensitive information.",
		Actions: []string{
			"Use a password manager.",
			"Enable two-factor authentication on important accounts.",
		},
		LearnMore: "NIST Cybersecurity Framework",
	},
}

// Lookup returns the library entry for id.
func Lookup(id string) (types.Insight, bool) {
	in, ok := library[id]
	if !ok {
		return types.Insight{}, false
	}
	in.ID = id
	in.Actions = append([]string(nil), in.Actions...)
	return in, true
}

// AwarenessTips are general advice lines shown next to results.
var AwarenessTips = []string{
	"Look for HTTPS and the padlock before entering personal information.",
	"Hover over links to preview their destination before clicking.",
	"Use a password manager and a unique password for every site.",
	"Enable two-factor authentication wherever it is offered.",
	"Keep your browser and operating system up to date.",
	"Be skeptical of messages that demand you act now.",
	"Use a VPN on public Wi-Fi.",
	"Check whether your email address appears in known breaches.",
}
