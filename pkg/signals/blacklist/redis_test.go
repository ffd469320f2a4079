package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()

	listedURL := Fingerprint("https://cdn.example/kit/login")
	require.NoError(t, client.SAdd(ctx, RedisDomainSet, "phish.example").Err())
	require.NoError(t, client.SAdd(ctx, RedisURLSet, listedURL).Err())

	src := NewRedisSource(client)

	match, err := src.Lookup(ctx, "phish.example", Fingerprint("https://phish.example/"))
	require.NoError(t, err)
	assert.True(t, match.Matched)
	assert.Equal(t, "redis", match.Source)

	match, err = src.Lookup(ctx, "cdn.example", listedURL)
	require.NoError(t, err)
	assert.True(t, match.Matched)

	match, err = src.Lookup(ctx, "cdn.example", Fingerprint("https://cdn.example/"))
	require.NoError(t, err)
	assert.False(t, match.Matched)

	require.NoError(t, container.Terminate(ctx))
	_, err = src.Lookup(ctx, "phish.example", "")
	assert.Error(t, err)
}
