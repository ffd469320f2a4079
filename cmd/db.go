package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/database"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing the scan history database, including migrations.`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending database migrations",
	Long: `Run all pending database migrations to update the schema.

This command will:
1. Connect to the PostgreSQL database
2. Check for pending migrations
3. Apply migrations in order
4. Track migration status

The database connection can be configured via:
- Config file (.safelink.yaml)
- --db-dsn, SAFELINK_DATABASE_DSN or DATABASE_URL`,
	RunE: runDBMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database migration status",
	Long:  `Display the current status of database migrations including version and pending migrations.`,
	RunE:  runDBStatus,
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback [version]",
	Short: "Rollback a specific migration",
	Long: `Rollback a specific migration version.

Warning: This will undo changes made by the migration. Use with caution.`,
	Args: cobra.ExactArgs(1),
	RunE: runDBRollback,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbRollbackCmd)

	dbRollbackCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

// migrationRunner opens a connection without migrating it.
func migrationRunner(ctx context.Context) (*database.MigrationRunner, func(), error) {
	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database.NewMigrationRunner(db, log), func() { _ = db.Close() }, nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	log.Infow("Starting database migration",
		"component", "db_migrate",
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	runner, closeDB, err := migrationRunner(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := runner.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Infow("Database migration completed successfully",
		"component", "db_migrate",
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	runner, closeDB, err := migrationRunner(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	status, err := runner.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Database Migration Status")
	fmt.Fprintln(out, "=========================")
	fmt.Fprintf(out, "Current Version:  %d\n", status.CurrentVersion)
	fmt.Fprintf(out, "Latest Version:   %d\n", status.LatestVersion)
	fmt.Fprintf(out, "Applied:          %d migrations\n", status.AppliedCount)
	fmt.Fprintf(out, "Pending:          %d migrations\n", status.PendingCount)

	if status.UpToDate {
		fmt.Fprintln(out, "\nStatus: Database is up to date")
	} else {
		fmt.Fprintln(out, "\nStatus: Pending migrations need to be applied")
		fmt.Fprintln(out, "\nRun 'safelink db migrate' to apply pending migrations")
	}
	return nil
}

func runDBRollback(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version number: %s", args[0])
	}

	log.Warnw("Rolling back database migration",
		"component", "db_rollback",
		"version", version,
	)

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		fmt.Fprintf(cmd.OutOrStdout(), "WARNING: You are about to rollback migration version %d\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "This will undo changes made by this migration.\n")
		fmt.Fprintf(cmd.OutOrStdout(), "\nType 'yes' to continue: ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			return fmt.Errorf("rollback cancelled")
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	runner, closeDB, err := migrationRunner(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := runner.RollbackMigration(ctx, version); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	log.Infow("Migration rolled back successfully",
		"component", "db_rollback",
		"version", version,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Migration %d rolled back successfully\n", version)
	return nil
}
