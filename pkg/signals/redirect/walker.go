// Package redirect follows a URL's redirect chain one hop at a time.
package redirect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/urlnorm"
)

type Walker struct {
	client       *http.Client
	maxHops      int
	hopTimeout   time.Duration
	chainTimeout time.Duration
	userAgent    string
}

// NewWalker wraps client, which must not follow redirects itself.
func NewWalker(client *http.Client, cfg config.RedirectConfig) *Walker {
	w := &Walker{
		client:       client,
		maxHops:      cfg.MaxHops,
		hopTimeout:   cfg.HopTimeout,
		chainTimeout: cfg.ChainTimeout,
		userAgent:    cfg.UserAgent,
	}
	if w.hopTimeout <= 0 {
		w.hopTimeout = 4 * time.Second
	}
	if w.chainTimeout <= 0 {
		w.chainTimeout = 10 * time.Second
	}
	return w
}

// NewDefaultWalker builds the walker with the SSRF-guarded client.
func NewDefaultWalker(cfg config.RedirectConfig) *Walker {
	client := httpclient.NewSecureClient(httpclient.Config{
		Timeout:       cfg.HopTimeout,
		BlockPrivate:  cfg.BlockPrivate,
		SkipTLSVerify: true,
		UserAgent:     cfg.UserAgent,
	})
	return NewWalker(client, cfg)
}

// Walk records every hop actually fetched. It stops on a non-redirect
// response, the hop cap, a revisited URL or a timeout. Only a failure of the
// very first request is a degraded outcome.
func (w *Walker) Walk(ctx context.Context, target types.NormalizedURL) signals.Outcome[types.RedirectChain] {
	ctx, cancel := context.WithTimeout(ctx, w.chainTimeout)
	defer cancel()

	chain := types.RedirectChain{FinalURL: target.URL}
	seen := map[string]struct{}{target.URL: {}}
	current := target.URL

	for {
		hop, location, err := w.fetch(ctx, current, len(chain.Hops))
		if err != nil {
			if len(chain.Hops) == 0 {
				return signals.Degraded(signals.Redirect, chain, "initial request failed: %v", err)
			}
			chain.Truncated = true
			break
		}

		chain.Hops = append(chain.Hops, hop)
		chain.FinalURL = hop.URL

		if location == "" {
			break
		}
		if chain.Count >= w.maxHops {
			chain.Truncated = true
			chain.CapExceeded = true
			break
		}

		next, ok := resolveLocation(current, location)
		if !ok {
			break
		}

		chain.Count++
		if _, revisit := seen[next]; revisit {
			chain.Loop = true
			break
		}
		seen[next] = struct{}{}
		current = next
	}

	for i := 1; i < len(chain.Hops); i++ {
		prev, cur := chain.Hops[i-1], chain.Hops[i]
		if prev.Domain != cur.Domain {
			chain.CrossDomain = true
		}
		if prev.Scheme == string(types.SchemeHTTPS) && cur.Scheme == string(types.SchemeHTTP) {
			chain.Downgrade = true
		}
	}

	return signals.OK(signals.Redirect, chain)
}

func (w *Walker) fetch(ctx context.Context, rawURL string, index int) (types.Hop, string, error) {
	hopCtx, cancel := context.WithTimeout(ctx, w.hopTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.Hop{}, "", fmt.Errorf("failed to build request: %w", err)
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return types.Hop{}, "", err
	}
	httpclient.CloseBody(resp)

	hop := types.Hop{
		Index:      index,
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		ElapsedMs:  time.Since(start).Milliseconds(),
	}
	if u, err := url.Parse(rawURL); err == nil {
		hop.Scheme = strings.ToLower(u.Scheme)
		host := strings.ToLower(u.Hostname())
		hop.Domain = host
		if domain, err := urlnorm.RegistrableDomain(host); err == nil {
			hop.Domain = domain
		}
	}

	var location string
	if isRedirect(resp.StatusCode) {
		location = resp.Header.Get("Location")
	}
	return hop, location, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// resolveLocation makes location absolute against base. Only http and https
// targets are followed.
func resolveLocation(base, location string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", false
	}
	next := b.ResolveReference(ref)
	next.Fragment = ""
	if next.Scheme != "http" && next.Scheme != "https" {
		return "", false
	}
	return next.String(), true
}
