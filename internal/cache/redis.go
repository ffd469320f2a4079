package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/blacklist"
)

const whoisPrefix = "safelink:whois:"

func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// WhoisCache stores domain creation dates so repeat scans skip the registry.
type WhoisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewWhoisCache(client redis.UniversalClient, ttl time.Duration) *WhoisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WhoisCache{client: client, ttl: ttl}
}

// Get returns the cached creation date. A miss is (zero, false, nil).
func (c *WhoisCache) Get(ctx context.Context, domain string) (time.Time, bool, error) {
	val, err := c.client.Get(ctx, whoisKey(domain)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("whois cache get: %w", err)
	}

	created, err := time.Parse(time.RFC3339, val)
	if err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return time.Time{}, false, nil
	}
	return created, true, nil
}

func (c *WhoisCache) Set(ctx context.Context, domain string, created time.Time) error {
	if err := c.client.Set(ctx, whoisKey(domain), created.UTC().Format(time.RFC3339), c.ttl).Err(); err != nil {
		return fmt.Errorf("whois cache set: %w", err)
	}
	return nil
}

func whoisKey(domain string) string {
	return whoisPrefix + strings.ToLower(domain)
}

// BlacklistWriter loads feed entries into the sets the redis blacklist
// source reads.
type BlacklistWriter struct {
	client redis.UniversalClient
}

func NewBlacklistWriter(client redis.UniversalClient) *BlacklistWriter {
	return &BlacklistWriter{client: client}
}

// Add inserts domains and URL fingerprints in one pipeline and returns the
// number of new members.
func (w *BlacklistWriter) Add(ctx context.Context, domains, urlHashes []string) (int64, error) {
	pipe := w.client.Pipeline()

	var domainCmd, urlCmd *redis.IntCmd
	if len(domains) > 0 {
		members := make([]interface{}, len(domains))
		for i, d := range domains {
			members[i] = strings.ToLower(d)
		}
		domainCmd = pipe.SAdd(ctx, blacklist.RedisDomainSet, members...)
	}
	if len(urlHashes) > 0 {
		members := make([]interface{}, len(urlHashes))
		for i, h := range urlHashes {
			members[i] = h
		}
		urlCmd = pipe.SAdd(ctx, blacklist.RedisURLSet, members...)
	}
	if domainCmd == nil && urlCmd == nil {
		return 0, nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("blacklist import: %w", err)
	}

	var added int64
	if domainCmd != nil {
		added += domainCmd.Val()
	}
	if urlCmd != nil {
		added += urlCmd.Val()
	}
	return added, nil
}

func (w *BlacklistWriter) Remove(ctx context.Context, domain string) error {
	return w.client.SRem(ctx, blacklist.RedisDomainSet, strings.ToLower(domain)).Err()
}
