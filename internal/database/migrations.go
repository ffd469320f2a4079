package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
)

// Migration represents a single database migration
type Migration struct {
	Version     int
	Description string
	Up          string // SQL to apply migration
	Down        string // SQL to rollback migration (optional)
}

// Checksum fingerprints the Up script so an edited migration can be spotted
// against the recorded row.
func (m Migration) Checksum() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.Up))
	return fmt.Sprintf("%016x", h.Sum64())
}

// MigrationStatus summarizes the schema state.
type MigrationStatus struct {
	CurrentVersion int  `json:"current_version"`
	LatestVersion  int  `json:"latest_version"`
	PendingCount   int  `json:"pending_count"`
	AppliedCount   int  `json:"applied_count"`
	UpToDate       bool `json:"is_up_to_date"`
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sqlx.DB, log *logger.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:  db,
		log: log.WithComponent("migrations"),
	}
}

// GetAllMigrations returns all available migrations in order
func GetAllMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create scan_history table",
			Up: `
				CREATE TABLE IF NOT EXISTS scan_history (
					id UUID PRIMARY KEY,
					user_id TEXT NOT NULL,
					url TEXT NOT NULL,
					domain TEXT NOT NULL,
					scanned_at TIMESTAMPTZ NOT NULL,

					risk_score DOUBLE PRECISION NOT NULL,
					threat_level TEXT NOT NULL,
					rule_score DOUBLE PRECISION NOT NULL,
					ml_anomaly_score DOUBLE PRECISION NOT NULL,

					url_length INTEGER NOT NULL,
					num_subdomains INTEGER NOT NULL,
					has_https BOOLEAN NOT NULL,
					domain_age_days INTEGER NOT NULL,
					redirect_count INTEGER NOT NULL,
					is_blacklisted BOOLEAN NOT NULL,
					has_ip_in_url BOOLEAN NOT NULL,
					suspicious_patterns INTEGER NOT NULL,
					has_valid_ssl BOOLEAN NOT NULL,
					special_char_count INTEGER NOT NULL,
					num_hyphens INTEGER NOT NULL,
					path_depth INTEGER NOT NULL,
					pct_encoded_count INTEGER NOT NULL,
					has_at_symbol BOOLEAN NOT NULL,
					is_url_shortener BOOLEAN NOT NULL,

					feature_vector JSONB NOT NULL,
					triggered_rules JSONB NOT NULL DEFAULT '[]',
					redirect_chain JSONB NOT NULL DEFAULT '{}',
					ssl_info JSONB,
					educational_tips JSONB NOT NULL DEFAULT '[]'
				);

				CREATE INDEX IF NOT EXISTS idx_scan_history_user_scanned
					ON scan_history(user_id, scanned_at DESC);
				CREATE INDEX IF NOT EXISTS idx_scan_history_domain ON scan_history(domain);
				CREATE INDEX IF NOT EXISTS idx_scan_history_threat_level ON scan_history(threat_level);
			`,
			Down: `
				DROP TABLE IF EXISTS scan_history;
			`,
		},
		{
			Version:     2,
			Description: "Record scan provenance and degradation",
			Up: `
				ALTER TABLE scan_history
					ADD COLUMN IF NOT EXISTS anomaly JSONB NOT NULL DEFAULT '{}',
					ADD COLUMN IF NOT EXISTS insights JSONB NOT NULL DEFAULT '[]',
					ADD COLUMN IF NOT EXISTS warnings JSONB NOT NULL DEFAULT '[]',
					ADD COLUMN IF NOT EXISTS aux JSONB NOT NULL DEFAULT '{}',
					ADD COLUMN IF NOT EXISTS target JSONB NOT NULL DEFAULT '{}',
					ADD COLUMN IF NOT EXISTS summary TEXT NOT NULL DEFAULT '',
					ADD COLUMN IF NOT EXISTS degraded BOOLEAN NOT NULL DEFAULT FALSE,
					ADD COLUMN IF NOT EXISTS deadline_exceeded BOOLEAN NOT NULL DEFAULT FALSE,
					ADD COLUMN IF NOT EXISTS duration_ms BIGINT NOT NULL DEFAULT 0,
					ADD COLUMN IF NOT EXISTS catalogue_version TEXT NOT NULL DEFAULT '',
					ADD COLUMN IF NOT EXISTS model_version TEXT NOT NULL DEFAULT '';
			`,
			Down: `
				ALTER TABLE scan_history
					DROP COLUMN IF EXISTS anomaly,
					DROP COLUMN IF EXISTS insights,
					DROP COLUMN IF EXISTS warnings,
					DROP COLUMN IF EXISTS aux,
					DROP COLUMN IF EXISTS target,
					DROP COLUMN IF EXISTS summary,
					DROP COLUMN IF EXISTS degraded,
					DROP COLUMN IF EXISTS deadline_exceeded,
					DROP COLUMN IF EXISTS duration_ms,
					DROP COLUMN IF EXISTS catalogue_version,
					DROP COLUMN IF EXISTS model_version;
			`,
		},
		{
			Version:     3,
			Description: "Store the risk breakdown of each scan",
			Up: `
				ALTER TABLE scan_history
					ADD COLUMN IF NOT EXISTS breakdown JSONB NOT NULL DEFAULT '{}';
			`,
			Down: `
				ALTER TABLE scan_history
					DROP COLUMN IF EXISTS breakdown;
			`,
		},
	}
}

// ensureMigrationsTable creates the migrations tracking table if it doesn't exist
func (mr *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			checksum TEXT NOT NULL
		);
	`

	if _, err := mr.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return nil
}

// getAppliedMigrations returns a map of applied migration versions
func (mr *MigrationRunner) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	var versions []int
	if err := mr.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	for _, v := range versions {
		applied[v] = true
	}

	return applied, nil
}

func sortedMigrations() []Migration {
	all := GetAllMigrations()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Version < all[j].Version
	})
	return all
}

// RunMigrations applies all pending migrations
func (mr *MigrationRunner) RunMigrations(ctx context.Context) error {
	mr.log.Infow("Starting database migration check")

	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	appliedMigrations, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	allMigrations := sortedMigrations()
	pending := pendingMigrations(allMigrations, appliedMigrations)

	if len(pending) == 0 {
		mr.log.Infow("Database schema is up to date",
			"latest_version", allMigrations[len(allMigrations)-1].Version,
		)
		return nil
	}

	mr.log.Infow("Found pending migrations", "pending_count", len(pending))

	for _, migration := range pending {
		if err := mr.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	mr.log.Infow("All migrations applied successfully", "migrations_applied", len(pending))
	return nil
}

func pendingMigrations(all []Migration, applied map[int]bool) []Migration {
	var pending []Migration
	for _, m := range all {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// applyMigration applies a single migration
func (mr *MigrationRunner) applyMigration(ctx context.Context, migration Migration) error {
	mr.log.Infow("Applying migration",
		"version", migration.Version,
		"description", migration.Description,
	)

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		mr.log.Errorw("Migration failed",
			"version", migration.Version,
			"error", err,
		)
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	recordQuery := `
		INSERT INTO schema_migrations (version, description, applied_at, checksum)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, recordQuery, migration.Version, migration.Description, time.Now().UTC(), migration.Checksum()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	mr.log.Infow("Migration applied successfully", "version", migration.Version)
	return nil
}

// GetMigrationStatus returns the current migration status
func (mr *MigrationRunner) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	appliedMigrations, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	allMigrations := sortedMigrations()
	status := &MigrationStatus{
		AppliedCount: len(appliedMigrations),
		PendingCount: len(pendingMigrations(allMigrations, appliedMigrations)),
	}
	if len(allMigrations) > 0 {
		status.LatestVersion = allMigrations[len(allMigrations)-1].Version
	}
	for version := range appliedMigrations {
		if version > status.CurrentVersion {
			status.CurrentVersion = version
		}
	}
	status.UpToDate = status.PendingCount == 0

	return status, nil
}

// RollbackMigration rolls back one applied migration
func (mr *MigrationRunner) RollbackMigration(ctx context.Context, version int) error {
	mr.log.Warnw("Rolling back migration", "version", version)

	var migration *Migration
	for _, m := range GetAllMigrations() {
		if m.Version == version {
			m := m
			migration = &m
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	if migration.Down == "" {
		return fmt.Errorf("migration version %d has no rollback SQL", version)
	}

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	mr.log.Infow("Migration rolled back successfully", "version", version)
	return nil
}

// CheckTableExists checks if a table exists
func CheckTableExists(ctx context.Context, db *sqlx.DB, tableName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_name = $1
		)
	`

	var exists bool
	err := db.QueryRowContext(ctx, query, tableName).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}

	return exists, nil
}
