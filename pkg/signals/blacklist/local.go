package blacklist

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var sampleDomains = []string{
	"malware-test.com",
	"phishing-example.net",
	"evil-site.tk",
	"fakepaypal-secure.com",
	"login-amazon-verify.xyz",
}

// sampleDomainHashes are 16-character MD5 prefixes of listed domains, the
// shape of hash-prefix reputation feeds.
var sampleDomainHashes = []string{
	"7f3a0f4d2b8c1e9a",
	"a1b2c3d4e5f67890",
}

// Feed is the on-disk YAML format of a local blacklist.
type Feed struct {
	Domains      []string `yaml:"domains"`
	URLs         []string `yaml:"urls"`
	DomainHashes []string `yaml:"domain_hashes"`
}

func LoadFeed(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist feed: %w", err)
	}

	var feed Feed
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse blacklist feed %s: %w", path, err)
	}
	return &feed, nil
}

// LocalSource is an in-memory set built once at startup.
type LocalSource struct {
	domains map[string]struct{}
	urls    map[string]struct{}
	hashes  map[string]struct{}
}

// NewLocalSource combines the built-in sample with an optional feed. Feed
// URLs must already be normalized; they are stored by fingerprint.
func NewLocalSource(feed *Feed) *LocalSource {
	s := &LocalSource{
		domains: make(map[string]struct{}),
		urls:    make(map[string]struct{}),
		hashes:  make(map[string]struct{}),
	}
	for _, d := range sampleDomains {
		s.domains[d] = struct{}{}
	}
	for _, h := range sampleDomainHashes {
		s.hashes[h] = struct{}{}
	}

	if feed != nil {
		for _, d := range feed.Domains {
			s.domains[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
		for _, u := range feed.URLs {
			s.urls[Fingerprint(strings.TrimSpace(u))] = struct{}{}
		}
		for _, h := range feed.DomainHashes {
			h = strings.ToLower(strings.TrimSpace(h))
			if len(h) > 16 {
				h = h[:16]
			}
			s.hashes[h] = struct{}{}
		}
	}
	return s
}

func (s *LocalSource) Name() string { return "local" }

func (s *LocalSource) Lookup(ctx context.Context, domain, urlHash string) (Match, error) {
	domain = strings.ToLower(domain)
	if _, ok := s.domains[domain]; ok {
		return Match{Matched: true, Source: "local"}, nil
	}
	if _, ok := s.urls[urlHash]; ok {
		return Match{Matched: true, Source: "local"}, nil
	}
	if _, ok := s.hashes[DomainHashPrefix(domain)]; ok {
		return Match{Matched: true, Source: "local-hash"}, nil
	}
	return Match{}, nil
}

// DomainHashPrefix returns the first 16 hex characters of md5(domain).
func DomainHashPrefix(domain string) string {
	sum := md5.Sum([]byte(domain)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}

func (s *LocalSource) Size() int {
	return len(s.domains) + len(s.urls) + len(s.hashes)
}
