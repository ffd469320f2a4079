// Package blacklist checks a scan target against an ordered chain of
// reputation sources.
package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/murmur3"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Match is a single source's verdict.
type Match struct {
	Matched bool
	Source  string
}

// Source is one reputation backend. Lookup must be safe for concurrent use
// and treat its data as read-only.
type Source interface {
	Name() string
	Lookup(ctx context.Context, domain, urlHash string) (Match, error)
}

type Result struct {
	Info     types.BlacklistInfo
	Warnings []types.Warning
}

type Matcher struct {
	sources []Source
	timeout time.Duration
}

func NewMatcher(timeout time.Duration, sources ...Source) *Matcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Matcher{sources: sources, timeout: timeout}
}

func (m *Matcher) Sources() []string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return names
}

// Fingerprint is the murmur3 128-bit hash of a normalized URL, hex encoded.
func Fingerprint(normalizedURL string) string {
	h1, h2 := murmur3.Sum128([]byte(normalizedURL))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Check consults sources in order and stops at the first match. Source
// errors become warnings; only when every source failed is the outcome
// degraded.
func (m *Matcher) Check(ctx context.Context, target types.NormalizedURL) signals.Outcome[Result] {
	hash := Fingerprint(target.URL)
	res := Result{Info: types.BlacklistInfo{URLHash: hash}}

	failures := 0
	for _, src := range m.sources {
		if err := ctx.Err(); err != nil {
			return signals.Degraded(signals.Blacklist, res, "blacklist check interrupted: %v", err)
		}

		lookupCtx, cancel := context.WithTimeout(ctx, m.timeout)
		match, err := src.Lookup(lookupCtx, target.Domain, hash)
		cancel()

		if err != nil {
			failures++
			res.Warnings = append(res.Warnings, types.Warning{
				Source: signals.Blacklist + ":" + src.Name(),
				Code:   types.WarningSourceUnavailable,
				Reason: err.Error(),
			})
			continue
		}
		if match.Matched {
			res.Info.Matched = true
			res.Info.Source = match.Source
			if res.Info.Source == "" {
				res.Info.Source = src.Name()
			}
			return signals.OK(signals.Blacklist, res)
		}
	}

	if len(m.sources) > 0 && failures == len(m.sources) {
		return signals.Degraded(signals.Blacklist, res, "all %d blacklist sources failed", failures)
	}
	return signals.OK(signals.Blacklist, res)
}
