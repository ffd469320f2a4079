package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zapcore"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"url form", "postgres://safelink:hunter2@db:5432/safelink?sslmode=disable", "postgres://safelink:xxxxx@db:5432/safelink?sslmode=disable"},
		{"key value form", "host=db user=safelink password=hunter2 dbname=safelink", "host=db user=safelink password=xxxxx dbname=safelink"},
		{"no password", "postgres://db/safelink", "postgres://db/safelink"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskDSN(tt.dsn)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "hunter2")
		})
	}
}

func TestBuildListQuery(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	query, args := buildListQuery(core.ScanFilter{
		UserID:      "u1",
		Domain:      "Example.COM",
		ThreatLevel: types.ThreatLevelHighRisk,
		FromDate:    &from,
		Offset:      20,
	})

	assert.Contains(t, query, "user_id = :user_id")
	assert.Contains(t, query, "domain = :domain")
	assert.Contains(t, query, "threat_level = :threat_level")
	assert.Contains(t, query, "scanned_at >= :from_date")
	assert.NotContains(t, query, ":to_date")
	assert.Contains(t, query, "ORDER BY scanned_at DESC")
	assert.Contains(t, query, "OFFSET :offset")

	assert.Equal(t, "example.com", args["domain"])
	assert.Equal(t, "high_risk", args["threat_level"])
	assert.Equal(t, DefaultListLimit, args["limit"])
	assert.Equal(t, 20, args["offset"])
}

func TestBuildListQueryLimits(t *testing.T) {
	_, args := buildListQuery(core.ScanFilter{UserID: "u1", Limit: 10000})
	assert.Equal(t, MaxListLimit, args["limit"])

	query, args := buildListQuery(core.ScanFilter{UserID: "u1", Limit: 5})
	assert.Equal(t, 5, args["limit"])
	assert.NotContains(t, query, "OFFSET")
}

func TestMigrationsAreOrderedAndReversible(t *testing.T) {
	all := GetAllMigrations()
	require.NotEmpty(t, all)

	seen := map[string]bool{}
	for i, m := range all {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Down, "migration %d", m.Version)
		assert.False(t, seen[m.Checksum()], "duplicate checksum for %d", m.Version)
		seen[m.Checksum()] = true
	}

	pending := pendingMigrations(all, map[int]bool{1: true})
	require.Len(t, pending, len(all)-1)
	assert.Equal(t, 2, pending[0].Version)
}

func sampleResult(userID string, at time.Time, risk float64, level types.ThreatLevel) *types.ScanResult {
	return &types.ScanResult{
		ID:        uuid.New().String(),
		UserID:    userID,
		ScannedAt: at,
		Target: types.NormalizedURL{
			URL:    "https://login.example.com/verify",
			Host:   "login.example.com",
			Domain: "example.com",
			Scheme: types.SchemeHTTPS,
		},
		Vector: types.FeatureVector{
			URLLength:          31,
			NumSubdomains:      1,
			HasHTTPS:           true,
			DomainAgeDays:      12,
			SuspiciousPatterns: 2,
			PathDepth:          1,
		},
		Rules: types.RuleResult{
			Score: 28,
			Triggered: []types.TriggeredRule{
				{ID: "keyword_single", Category: "structure", Penalty: 8},
				{ID: "domain_age_very_new", Category: "domain", Penalty: 20},
			},
			CatalogueVersion: "2025.1",
		},
		Anomaly: types.AnomalyResult{
			Score:        70,
			Raw:          -0.5,
			Confidence:   types.ConfidenceMedium,
			ModelVersion: "baseline-2025.1",
		},
		RiskScore:   risk,
		ThreatLevel: level,
		Breakdown: types.RiskBreakdown{
			RuleScore: 28, AnomalyScore: 70, RuleWeight: 0.6, AnomalyWeight: 0.4,
			Risk: risk, Level: level,
		},
		Aux: types.Aux{
			Redirects:   types.RedirectChain{FinalURL: "https://login.example.com/verify"},
			Certificate: &types.CertInfo{HandshakeOK: true, Issuer: "Test CA", DaysLeft: 40},
		},
		Warnings: []types.Warning{{Source: "blacklist", Code: types.WarningExtractorDegraded, Reason: "timeout"}},
		Degraded: true,
		Insights: []types.Insight{{ID: "new_domain", Title: "Newly Registered Domain", Severity: "high"}},
		Summary:  "This link looks suspicious.",
	}
}

func setupTestStore(t *testing.T) core.ScanStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("safelink_test"),
		postgres.WithUsername("safelink_test"),
		postgres.WithPassword("safelink_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := config.DefaultConfig().Database
	cfg.DSN = dsn
	store, err := NewStore(cfg, logger.NewFromCore(zapcore.NewNopCore()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	res := sampleResult("alice", now, 46.8, types.ThreatLevelSuspicious)
	require.NoError(t, store.SaveScan(ctx, res))

	got, err := store.GetScan(ctx, "alice", res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
	assert.True(t, now.Equal(got.ScannedAt))
	assert.Equal(t, res.Vector, got.Vector)
	assert.Equal(t, res.Rules, got.Rules)
	assert.Equal(t, res.Anomaly, got.Anomaly)
	assert.Equal(t, res.Target, got.Target)
	assert.Equal(t, res.Warnings, got.Warnings)
	assert.Equal(t, res.Insights, got.Insights)
	assert.Equal(t, res.Breakdown, got.Breakdown)
	require.NotNil(t, got.Aux.Certificate)
	assert.Equal(t, "Test CA", got.Aux.Certificate.Issuer)
	assert.True(t, got.Degraded)

	_, err = store.GetScan(ctx, "mallory", res.ID)
	assert.ErrorIs(t, err, types.ErrScanNotFound)

	_, err = store.GetScan(ctx, "alice", "not-a-uuid")
	assert.ErrorIs(t, err, types.ErrScanNotFound)

	assert.ErrorIs(t, store.DeleteScan(ctx, "mallory", res.ID), types.ErrScanNotFound)
	require.NoError(t, store.DeleteScan(ctx, "alice", res.ID))
	assert.ErrorIs(t, store.DeleteScan(ctx, "alice", res.ID), types.ErrScanNotFound)
}

func TestStoreListAndTrend(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	today := time.Now().UTC().Truncate(24 * time.Hour).Add(time.Hour)
	yesterday := today.AddDate(0, 0, -1)
	old := today.AddDate(0, 0, -40)

	require.NoError(t, store.SaveScan(ctx, sampleResult("alice", yesterday, 20, types.ThreatLevelSafe)))
	require.NoError(t, store.SaveScan(ctx, sampleResult("alice", today, 80, types.ThreatLevelHighRisk)))
	require.NoError(t, store.SaveScan(ctx, sampleResult("alice", today.Add(time.Minute), 40, types.ThreatLevelSuspicious)))
	require.NoError(t, store.SaveScan(ctx, sampleResult("alice", old, 90, types.ThreatLevelHighRisk)))
	require.NoError(t, store.SaveScan(ctx, sampleResult("bob", today, 10, types.ThreatLevelSafe)))

	all, err := store.ListScans(ctx, core.ScanFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 40.0, all[0].RiskScore, "newest first")
	assert.Equal(t, 90.0, all[3].RiskScore)

	page, err := store.ListScans(ctx, core.ScanFilter{UserID: "alice", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 80.0, page[0].RiskScore)

	high, err := store.ListScans(ctx, core.ScanFilter{UserID: "alice", ThreatLevel: types.ThreatLevelHighRisk})
	require.NoError(t, err)
	assert.Len(t, high, 2)

	_, err = store.ListScans(ctx, core.ScanFilter{})
	assert.Error(t, err)

	trend, err := store.RiskTrend(ctx, "alice", 7)
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.True(t, trend[0].Day.Equal(yesterday.Truncate(24*time.Hour)))
	assert.Equal(t, 20.0, trend[0].AvgRisk)
	assert.Equal(t, 1, trend[0].Scans)
	assert.Equal(t, 60.0, trend[1].AvgRisk)
	assert.Equal(t, 2, trend[1].Scans)

	_, err = store.RiskTrend(ctx, "alice", 0)
	assert.Error(t, err)
}

func TestMigrationRunnerStatusAndRollback(t *testing.T) {
	store := setupTestStore(t)
	db := store.(*sqlStore).db
	ctx := context.Background()

	runner := NewMigrationRunner(db, logger.NewFromCore(zapcore.NewNopCore()))

	status, err := runner.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.UpToDate)
	assert.Equal(t, len(GetAllMigrations()), status.CurrentVersion)

	require.NoError(t, runner.RollbackMigration(ctx, len(GetAllMigrations())))
	status, err = runner.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PendingCount)

	require.NoError(t, runner.RunMigrations(ctx))
	exists, err := CheckTableExists(ctx, db, "scan_history")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Error(t, runner.RollbackMigration(ctx, 99))
}
