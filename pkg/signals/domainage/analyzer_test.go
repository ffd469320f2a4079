package domainage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/urlnorm"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRegistry struct {
	mu    sync.Mutex
	info  *types.WhoisInfo
	err   error
	delay time.Duration
	calls int
}

func (f *fakeRegistry) Lookup(ctx context.Context, domain string) (*types.WhoisInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.info, f.err
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	getErr  error
}

func (m *memoryCache) Get(ctx context.Context, domain string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return time.Time{}, false, m.getErr
	}
	t, ok := m.entries[domain]
	return t, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, domain string, created time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[domain] = created
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LoggerConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func target(t *testing.T, raw string) types.NormalizedURL {
	t.Helper()
	n, err := urlnorm.Normalize(raw)
	require.NoError(t, err)
	return n
}

func whoisConfig() config.WhoisConfig {
	cfg := config.DefaultConfig().Scanner.Whois
	cfg.Timeout = 100 * time.Millisecond
	return cfg
}

func TestAnalyzeComputesAge(t *testing.T) {
	created := fixedNow.AddDate(0, 0, -42)
	reg := &fakeRegistry{info: &types.WhoisInfo{Registrar: "Example Registrar", CreatedAt: &created, Source: "whois"}}
	a := NewAnalyzer(reg, whoisConfig(), testLogger(t), WithClock(func() time.Time { return fixedNow }))

	out := a.Analyze(context.Background(), target(t, "https://login.fresh-domain.com/"))

	assert.False(t, out.Degraded)
	assert.Equal(t, 42, out.Value.AgeDays)
	assert.Equal(t, "Example Registrar", out.Value.Info.Registrar)
}

func TestAnalyzeTimeoutDegradesToUnknown(t *testing.T) {
	reg := &fakeRegistry{delay: time.Second}
	a := NewAnalyzer(reg, whoisConfig(), testLogger(t))

	start := time.Now()
	out := a.Analyze(context.Background(), target(t, "https://slow-registry.com/"))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, out.Degraded)
	assert.Equal(t, types.UnknownDomainAge, out.Value.AgeDays)
	assert.Contains(t, out.Reason, "slow-registry.com")
}

func TestAnalyzeRegistryErrors(t *testing.T) {
	tests := []struct {
		name string
		reg  *fakeRegistry
	}{
		{"not registered", &fakeRegistry{err: ErrNotRegistered}},
		{"registry failure", &fakeRegistry{err: errors.New("connection refused")}},
		{"withheld creation date", &fakeRegistry{info: &types.WhoisInfo{Registrar: "Privacy Inc"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(tt.reg, whoisConfig(), testLogger(t))
			out := a.Analyze(context.Background(), target(t, "https://unknown.example.org/"))

			assert.True(t, out.Degraded)
			assert.Equal(t, types.UnknownDomainAge, out.Value.AgeDays)
		})
	}
}

func TestAnalyzeSkipsLookup(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("must not be called")}
	a := NewAnalyzer(reg, whoisConfig(), testLogger(t))

	out := a.Analyze(context.Background(), target(t, "https://www.github.com/org/repo"))
	assert.False(t, out.Degraded)
	assert.Equal(t, 5000, out.Value.AgeDays)

	out = a.Analyze(context.Background(), target(t, "http://10.1.2.3/"))
	assert.False(t, out.Degraded)
	assert.Equal(t, types.UnknownDomainAge, out.Value.AgeDays)

	assert.Equal(t, 0, reg.calls)
}

func TestAnalyzeUsesCache(t *testing.T) {
	created := fixedNow.AddDate(-2, 0, 0)
	reg := &fakeRegistry{info: &types.WhoisInfo{CreatedAt: &created, Source: "whois"}}
	cache := &memoryCache{entries: map[string]time.Time{}}
	a := NewAnalyzer(reg, whoisConfig(), testLogger(t),
		WithCache(cache),
		WithClock(func() time.Time { return fixedNow }),
	)

	first := a.Analyze(context.Background(), target(t, "https://cached.example.net/"))
	second := a.Analyze(context.Background(), target(t, "https://www.cached.example.net/"))

	assert.Equal(t, 1, reg.calls)
	assert.Equal(t, first.Value.AgeDays, second.Value.AgeDays)
	assert.Equal(t, "cache", second.Value.Info.Source)
}

func TestAnalyzeCacheErrorFallsThrough(t *testing.T) {
	created := fixedNow.AddDate(0, -1, 0)
	reg := &fakeRegistry{info: &types.WhoisInfo{CreatedAt: &created}}
	cache := &memoryCache{entries: map[string]time.Time{}, getErr: errors.New("redis down")}
	a := NewAnalyzer(reg, whoisConfig(), testLogger(t),
		WithCache(cache),
		WithClock(func() time.Time { return fixedNow }),
	)

	out := a.Analyze(context.Background(), target(t, "https://example.net/"))
	assert.False(t, out.Degraded)
	assert.Equal(t, 31, out.Value.AgeDays)
	assert.Equal(t, 1, reg.calls)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"1997-09-15T04:00:00Z", time.Date(1997, 9, 15, 4, 0, 0, 0, time.UTC)},
		{"2020-01-02 03:04:05", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2021-03-04", time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"15-Sep-1997", time.Date(1997, 9, 15, 0, 0, 0, 0, time.UTC)},
		{"2001.02.03", time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		require.True(t, ok, tt.in)
		assert.True(t, tt.want.Equal(got), "%s parsed as %s", tt.in, got)
	}

	_, ok := ParseDate("before the war")
	assert.False(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
}
