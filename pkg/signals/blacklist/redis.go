package blacklist

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	RedisDomainSet = "safelink:blacklist:domains"
	RedisURLSet    = "safelink:blacklist:urls"
)

// RedisSource reads the shared blacklist sets that feed imports populate.
type RedisSource struct {
	client redis.UniversalClient
}

func NewRedisSource(client redis.UniversalClient) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Name() string { return "redis" }

func (s *RedisSource) Lookup(ctx context.Context, domain, urlHash string) (Match, error) {
	pipe := s.client.Pipeline()
	domainCmd := pipe.SIsMember(ctx, RedisDomainSet, strings.ToLower(domain))
	urlCmd := pipe.SIsMember(ctx, RedisURLSet, urlHash)

	if _, err := pipe.Exec(ctx); err != nil {
		return Match{}, fmt.Errorf("redis blacklist lookup: %w", err)
	}

	if domainCmd.Val() || urlCmd.Val() {
		return Match{Matched: true, Source: "redis"}, nil
	}
	return Match{}, nil
}
