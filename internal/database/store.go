// Package database persists scan history in PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	sqlxtypes "github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/insights"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type sqlStore struct {
	db     *sqlx.DB
	cfg    config.DatabaseConfig
	logger *logger.Logger
}

// Open connects and configures the pool without touching the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sqlx.DB, error) {
	if cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		log.LogError(ctx, err, "database.Connect",
			"driver", cfg.Driver,
			"dsn_masked", MaskDSN(cfg.DSN),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.LogDuration(ctx, "database.Connect", start, "driver", cfg.Driver)

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.WithContext(ctx).Debugw("Database connection pool configured",
		"max_open_conns", cfg.MaxConnections,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
	)
	return db, nil
}

// NewStore connects and applies pending migrations.
func NewStore(cfg config.DatabaseConfig, log *logger.Logger) (core.ScanStore, error) {
	log = log.WithComponent("database")

	var err error
	start := time.Now()
	ctx, span := log.StartOperation(context.Background(), "database.NewStore",
		"driver", cfg.Driver,
		"dsn_masked", MaskDSN(cfg.DSN),
		"max_connections", cfg.MaxConnections,
	)
	defer func() {
		log.FinishOperation(ctx, span, "database.NewStore", start, err)
	}()

	db, err := Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	migrateStart := time.Now()
	if err = NewMigrationRunner(db, log).RunMigrations(ctx); err != nil {
		log.LogError(ctx, err, "database.Migrate",
			"duration_ms", time.Since(migrateStart).Milliseconds(),
		)
		_ = db.Close()
		err = fmt.Errorf("failed to run migrations: %w", err)
		return nil, err
	}

	log.WithContext(ctx).Infow("Database store initialized successfully",
		"driver", cfg.Driver,
		"total_init_duration_ms", time.Since(start).Milliseconds(),
	)

	return &sqlStore{db: db, cfg: cfg, logger: log}, nil
}

var dsnPassword = regexp.MustCompile(`(?i)(password=)\S+`)

// MaskDSN hides credentials in a DSN for logging and display.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}xxxxx")
}

// scanRow mirrors a scan_history row.
type scanRow struct {
	ID          string            `db:"id"`
	UserID      string            `db:"user_id"`
	URL         string            `db:"url"`
	Domain      string            `db:"domain"`
	ScannedAt   time.Time         `db:"scanned_at"`
	RiskScore   float64           `db:"risk_score"`
	ThreatLevel types.ThreatLevel `db:"threat_level"`
	RuleScore   float64           `db:"rule_score"`
	MLAnomaly   float64           `db:"ml_anomaly_score"`

	URLLength          int  `db:"url_length"`
	NumSubdomains      int  `db:"num_subdomains"`
	HasHTTPS           bool `db:"has_https"`
	DomainAgeDays      int  `db:"domain_age_days"`
	RedirectCount      int  `db:"redirect_count"`
	IsBlacklisted      bool `db:"is_blacklisted"`
	HasIPInURL         bool `db:"has_ip_in_url"`
	SuspiciousPatterns int  `db:"suspicious_patterns"`
	HasValidSSL        bool `db:"has_valid_ssl"`
	SpecialCharCount   int  `db:"special_char_count"`
	NumHyphens         int  `db:"num_hyphens"`
	PathDepth          int  `db:"path_depth"`
	PctEncodedCount    int  `db:"pct_encoded_count"`
	HasAtSymbol        bool `db:"has_at_symbol"`
	IsURLShortener     bool `db:"is_url_shortener"`

	FeatureVector   sqlxtypes.JSONText     `db:"feature_vector"`
	TriggeredRules  sqlxtypes.JSONText     `db:"triggered_rules"`
	RedirectChain   sqlxtypes.JSONText     `db:"redirect_chain"`
	SSLInfo         sqlxtypes.NullJSONText `db:"ssl_info"`
	EducationalTips sqlxtypes.JSONText     `db:"educational_tips"`

	Anomaly          sqlxtypes.JSONText `db:"anomaly"`
	Insights         sqlxtypes.JSONText `db:"insights"`
	Warnings         sqlxtypes.JSONText `db:"warnings"`
	Aux              sqlxtypes.JSONText `db:"aux"`
	Target           sqlxtypes.JSONText `db:"target"`
	Breakdown        sqlxtypes.JSONText `db:"breakdown"`
	Summary          string             `db:"summary"`
	Degraded         bool               `db:"degraded"`
	DeadlineExceeded bool               `db:"deadline_exceeded"`
	DurationMs       int64              `db:"duration_ms"`
	CatalogueVersion string             `db:"catalogue_version"`
	ModelVersion     string             `db:"model_version"`
}

func toRow(res *types.ScanResult) (*scanRow, error) {
	v := res.Vector
	row := &scanRow{
		ID:          res.ID,
		UserID:      res.UserID,
		URL:         res.Target.URL,
		Domain:      res.Target.Domain,
		ScannedAt:   res.ScannedAt.UTC(),
		RiskScore:   res.RiskScore,
		ThreatLevel: res.ThreatLevel,
		RuleScore:   res.Rules.Score,
		MLAnomaly:   res.Anomaly.Score,

		URLLength:          v.URLLength,
		NumSubdomains:      v.NumSubdomains,
		HasHTTPS:           v.HasHTTPS,
		DomainAgeDays:      v.DomainAgeDays,
		RedirectCount:      v.RedirectCount,
		IsBlacklisted:      v.IsBlacklisted,
		HasIPInURL:         v.HasIPInURL,
		SuspiciousPatterns: v.SuspiciousPatterns,
		HasValidSSL:        v.HasValidSSL,
		SpecialCharCount:   v.SpecialCharCount,
		NumHyphens:         v.NumHyphens,
		PathDepth:          v.PathDepth,
		PctEncodedCount:    v.PctEncodedCount,
		HasAtSymbol:        v.HasAtSymbol,
		IsURLShortener:     v.IsURLShortener,

		Summary:          res.Summary,
		Degraded:         res.Degraded,
		DeadlineExceeded: res.DeadlineExceeded,
		DurationMs:       res.DurationMs,
		CatalogueVersion: res.Rules.CatalogueVersion,
		ModelVersion:     res.Anomaly.ModelVersion,
	}

	triggered := res.Rules.Triggered
	if triggered == nil {
		triggered = []types.TriggeredRule{}
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []types.Warning{}
	}
	ins := res.Insights
	if ins == nil {
		ins = []types.Insight{}
	}

	fields := []struct {
		name string
		dst  *sqlxtypes.JSONText
		src  interface{}
	}{
		{"feature_vector", &row.FeatureVector, v},
		{"triggered_rules", &row.TriggeredRules, triggered},
		{"redirect_chain", &row.RedirectChain, res.Aux.Redirects},
		{"educational_tips", &row.EducationalTips, insights.Tips(ins)},
		{"anomaly", &row.Anomaly, res.Anomaly},
		{"insights", &row.Insights, ins},
		{"warnings", &row.Warnings, warnings},
		{"aux", &row.Aux, res.Aux},
		{"target", &row.Target, res.Target},
		{"breakdown", &row.Breakdown, res.Breakdown},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", f.name, err)
		}
		*f.dst = data
	}

	if res.Aux.Certificate != nil {
		data, err := json.Marshal(res.Aux.Certificate)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ssl_info: %w", err)
		}
		row.SSLInfo = sqlxtypes.NullJSONText{JSONText: data, Valid: true}
	}

	return row, nil
}

func (r *scanRow) toResult() (*types.ScanResult, error) {
	res := &types.ScanResult{
		ID:               r.ID,
		UserID:           r.UserID,
		ScannedAt:        r.ScannedAt.UTC(),
		RiskScore:        r.RiskScore,
		ThreatLevel:      r.ThreatLevel,
		Summary:          r.Summary,
		Degraded:         r.Degraded,
		DeadlineExceeded: r.DeadlineExceeded,
		DurationMs:       r.DurationMs,
	}

	fields := []struct {
		name string
		src  sqlxtypes.JSONText
		dst  interface{}
	}{
		{"feature_vector", r.FeatureVector, &res.Vector},
		{"triggered_rules", r.TriggeredRules, &res.Rules.Triggered},
		{"anomaly", r.Anomaly, &res.Anomaly},
		{"insights", r.Insights, &res.Insights},
		{"warnings", r.Warnings, &res.Warnings},
		{"aux", r.Aux, &res.Aux},
		{"target", r.Target, &res.Target},
		{"breakdown", r.Breakdown, &res.Breakdown},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := f.src.Unmarshal(f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}

	// Columns are authoritative over the JSON copies.
	res.Rules.Score = r.RuleScore
	res.Rules.CatalogueVersion = r.CatalogueVersion
	res.Anomaly.Score = r.MLAnomaly
	res.Anomaly.ModelVersion = r.ModelVersion
	res.Target.URL = r.URL
	res.Target.Domain = r.Domain

	if r.SSLInfo.Valid && res.Aux.Certificate == nil {
		var cert types.CertInfo
		if err := r.SSLInfo.Unmarshal(&cert); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ssl_info: %w", err)
		}
		res.Aux.Certificate = &cert
	}

	return res, nil
}

const insertScan = `
	INSERT INTO scan_history (
		id, user_id, url, domain, scanned_at,
		risk_score, threat_level, rule_score, ml_anomaly_score,
		url_length, num_subdomains, has_https, domain_age_days, redirect_count,
		is_blacklisted, has_ip_in_url, suspicious_patterns, has_valid_ssl,
		special_char_count, num_hyphens, path_depth, pct_encoded_count,
		has_at_symbol, is_url_shortener,
		feature_vector, triggered_rules, redirect_chain, ssl_info, educational_tips,
		anomaly, insights, warnings, aux, target, breakdown, summary,
		degraded, deadline_exceeded, duration_ms, catalogue_version, model_version
	) VALUES (
		:id, :user_id, :url, :domain, :scanned_at,
		:risk_score, :threat_level, :rule_score, :ml_anomaly_score,
		:url_length, :num_subdomains, :has_https, :domain_age_days, :redirect_count,
		:is_blacklisted, :has_ip_in_url, :suspicious_patterns, :has_valid_ssl,
		:special_char_count, :num_hyphens, :path_depth, :pct_encoded_count,
		:has_at_symbol, :is_url_shortener,
		:feature_vector, :triggered_rules, :redirect_chain, :ssl_info, :educational_tips,
		:anomaly, :insights, :warnings, :aux, :target, :breakdown, :summary,
		:degraded, :deadline_exceeded, :duration_ms, :catalogue_version, :model_version
	)
`

func (s *sqlStore) SaveScan(ctx context.Context, scan *types.ScanResult) error {
	start := time.Now()
	var err error
	ctx, span := s.logger.StartOperation(ctx, "database.SaveScan",
		"scan_id", scan.ID,
		"domain", scan.Target.Domain,
	)
	defer func() {
		s.logger.FinishOperation(ctx, span, "database.SaveScan", start, err)
	}()

	if scan.UserID == "" {
		err = fmt.Errorf("scan %s has no owner", scan.ID)
		return err
	}

	row, err := toRow(scan)
	if err != nil {
		s.logger.LogError(ctx, err, "database.SaveScan.marshal", "scan_id", scan.ID)
		return err
	}

	queryStart := time.Now()
	result, err := s.db.NamedExecContext(ctx, insertScan, row)
	if err != nil {
		s.logger.LogError(ctx, err, "database.SaveScan.insert",
			"scan_id", scan.ID,
			"query_duration_ms", time.Since(queryStart).Milliseconds(),
		)
		err = fmt.Errorf("failed to insert scan: %w", err)
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.LogDatabaseOperation(ctx, "INSERT", "scan_history", rowsAffected, time.Since(queryStart),
		"scan_id", scan.ID,
		"user_id", scan.UserID,
	)
	return nil
}

func (s *sqlStore) GetScan(ctx context.Context, userID, scanID string) (*types.ScanResult, error) {
	if _, err := uuid.Parse(scanID); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrScanNotFound, scanID)
	}

	start := time.Now()
	var row scanRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM scan_history WHERE id = $1 AND user_id = $2`, scanID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrScanNotFound, scanID)
		}
		s.logger.LogError(ctx, err, "database.GetScan", "scan_id", scanID)
		return nil, fmt.Errorf("failed to load scan: %w", err)
	}
	s.logger.LogDatabaseOperation(ctx, "SELECT", "scan_history", 1, time.Since(start), "scan_id", scanID)

	return row.toResult()
}

// buildListQuery renders the filter into a named query. Results are newest
// first.
func buildListQuery(filter core.ScanFilter) (string, map[string]interface{}) {
	var b strings.Builder
	b.WriteString(`SELECT id, user_id, url, domain, risk_score, threat_level, rule_score, ml_anomaly_score, scanned_at
		FROM scan_history WHERE user_id = :user_id`)
	args := map[string]interface{}{"user_id": filter.UserID}

	if filter.Domain != "" {
		b.WriteString(" AND domain = :domain")
		args["domain"] = strings.ToLower(filter.Domain)
	}
	if filter.ThreatLevel != "" {
		b.WriteString(" AND threat_level = :threat_level")
		args["threat_level"] = string(filter.ThreatLevel)
	}
	if filter.FromDate != nil {
		b.WriteString(" AND scanned_at >= :from_date")
		args["from_date"] = filter.FromDate.UTC()
	}
	if filter.ToDate != nil {
		b.WriteString(" AND scanned_at <= :to_date")
		args["to_date"] = filter.ToDate.UTC()
	}

	b.WriteString(" ORDER BY scanned_at DESC, id")

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	b.WriteString(" LIMIT :limit")
	args["limit"] = limit

	if filter.Offset > 0 {
		b.WriteString(" OFFSET :offset")
		args["offset"] = filter.Offset
	}

	return b.String(), args
}

func (s *sqlStore) ListScans(ctx context.Context, filter core.ScanFilter) ([]types.ScanRecord, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("user id is required to list scans")
	}

	named, namedArgs := buildListQuery(filter)
	query, args, err := s.db.BindNamed(named, namedArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to bind list query: %w", err)
	}

	start := time.Now()
	records := []types.ScanRecord{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		s.logger.LogError(ctx, err, "database.ListScans", "user_id", filter.UserID)
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	s.logger.LogDatabaseOperation(ctx, "SELECT", "scan_history", int64(len(records)), time.Since(start),
		"user_id", filter.UserID,
	)

	for i := range records {
		records[i].ScannedAt = records[i].ScannedAt.UTC()
	}
	return records, nil
}

func (s *sqlStore) DeleteScan(ctx context.Context, userID, scanID string) error {
	if _, err := uuid.Parse(scanID); err != nil {
		return fmt.Errorf("%w: %s", types.ErrScanNotFound, scanID)
	}

	start := time.Now()
	result, err := s.db.ExecContext(ctx, `DELETE FROM scan_history WHERE id = $1 AND user_id = $2`, scanID, userID)
	if err != nil {
		s.logger.LogError(ctx, err, "database.DeleteScan", "scan_id", scanID)
		return fmt.Errorf("failed to delete scan: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.LogDatabaseOperation(ctx, "DELETE", "scan_history", rowsAffected, time.Since(start), "scan_id", scanID)
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", types.ErrScanNotFound, scanID)
	}
	return nil
}

// RiskTrend returns the daily average risk over the last days days, oldest
// first. Days without scans are omitted.
func (s *sqlStore) RiskTrend(ctx context.Context, userID string, days int) ([]types.TrendPoint, error) {
	if days < 1 {
		return nil, fmt.Errorf("trend window must be at least one day, got %d", days)
	}

	since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	query := `
		SELECT date_trunc('day', scanned_at AT TIME ZONE 'UTC') AS day,
			   AVG(risk_score) AS avg_risk,
			   COUNT(*) AS scans
		FROM scan_history
		WHERE user_id = $1 AND scanned_at >= $2
		GROUP BY day
		ORDER BY day
	`

	start := time.Now()
	points := []types.TrendPoint{}
	if err := s.db.SelectContext(ctx, &points, query, userID, since); err != nil {
		s.logger.LogError(ctx, err, "database.RiskTrend", "user_id", userID)
		return nil, fmt.Errorf("failed to compute risk trend: %w", err)
	}
	s.logger.LogDatabaseOperation(ctx, "SELECT", "scan_history", int64(len(points)), time.Since(start),
		"user_id", userID,
		"days", days,
	)

	for i := range points {
		d := points[i].Day
		points[i].Day = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return points, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
