package domainage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// ErrNotRegistered means the registry answered but holds no record.
var ErrNotRegistered = errors.New("domain not registered")

// Registry looks up registration data for a registrable domain.
type Registry interface {
	Lookup(ctx context.Context, domain string) (*types.WhoisInfo, error)
}

// WhoisRegistry queries public WHOIS servers over port 43.
type WhoisRegistry struct {
	client *whois.Client
}

func NewWhoisRegistry(timeout time.Duration) *WhoisRegistry {
	client := whois.NewClient()
	client.SetTimeout(timeout)
	return &WhoisRegistry{client: client}
}

func (r *WhoisRegistry) Lookup(ctx context.Context, domain string) (*types.WhoisInfo, error) {
	type response struct {
		raw string
		err error
	}

	// The whois client has no context support; the buffered channel lets the
	// goroutine finish after we stop waiting.
	ch := make(chan response, 1)
	go func() {
		raw, err := r.client.Whois(domain)
		ch <- response{raw: raw, err: err}
	}()

	var resp response
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp = <-ch:
	}
	if resp.err != nil {
		return nil, fmt.Errorf("whois query failed: %w", resp.err)
	}

	return ParseWhois(resp.raw)
}

// ParseWhois extracts registrar and lifecycle dates from a raw WHOIS reply.
func ParseWhois(raw string) (*types.WhoisInfo, error) {
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("whois parse failed: %w", err)
	}

	info := &types.WhoisInfo{Source: "whois"}
	if parsed.Registrar != nil {
		info.Registrar = parsed.Registrar.Name
	}
	if parsed.Domain != nil {
		if t, ok := ParseDate(parsed.Domain.CreatedDate); ok {
			info.CreatedAt = &t
		}
		if t, ok := ParseDate(parsed.Domain.ExpirationDate); ok {
			info.ExpiresAt = &t
		}
	}
	return info, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"02-Jan-2006",
	"02.01.2006",
	"January 2 2006",
	time.UnixDate,
}

// ParseDate accepts the date formats registries commonly return.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
