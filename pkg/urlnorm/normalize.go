// Package urlnorm turns raw user input into a canonical scan target.
package urlnorm

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

var labelPattern = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]{0,61}[a-z0-9_])?$`)

// Normalize validates raw and returns its canonical form. Every failure wraps
// types.ErrInvalidURL. It performs no network I/O.
func Normalize(raw string) (types.NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.NormalizedURL{}, fmt.Errorf("%w: empty input", types.ErrInvalidURL)
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return types.NormalizedURL{}, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != string(types.SchemeHTTP) && scheme != string(types.SchemeHTTPS) {
		return types.NormalizedURL{}, fmt.Errorf("%w: unsupported scheme %q", types.ErrInvalidURL, u.Scheme)
	}
	u.Scheme = scheme
	u.Fragment = ""
	u.RawFragment = ""

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return types.NormalizedURL{}, fmt.Errorf("%w: missing host", types.ErrInvalidURL)
	}
	if !isASCII(host) {
		ascii, err := idna.ToASCII(host)
		if err != nil {
			return types.NormalizedURL{}, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
		}
		host = ascii
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	if ip := net.ParseIP(host); ip != nil {
		return types.NormalizedURL{
			URL:    u.String(),
			Host:   host,
			Domain: host,
			Scheme: types.Scheme(scheme),
			IsIP:   true,
		}, nil
	}

	domain, err := RegistrableDomain(host)
	if err != nil {
		return types.NormalizedURL{}, err
	}

	return types.NormalizedURL{
		URL:    u.String(),
		Host:   host,
		Domain: domain,
		Scheme: types.Scheme(scheme),
	}, nil
}

// RegistrableDomain returns the eTLD+1 of host. IP literals are returned
// unchanged.
func RegistrableDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host, nil
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("%w: single-label host %q", types.ErrInvalidURL, host)
	}
	for _, label := range labels {
		if !labelPattern.MatchString(label) {
			return "", fmt.Errorf("%w: invalid host label %q", types.ErrInvalidURL, label)
		}
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	return domain, nil
}

// Suffix returns the public suffix of domain, or "" for IP literals.
func Suffix(domain string) string {
	if net.ParseIP(domain) != nil {
		return ""
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
