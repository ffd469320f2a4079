package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/database"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/scanner"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "safelink",
	Short: "Assess how risky a URL is before you open it",
	Long: `SafeLink scores a URL for phishing and malware risk.

Each scan measures the URL's structure, domain age, TLS certificate,
blacklist status and redirect chain, then combines a transparent rule
score with an anomaly model into a 0-100 risk score and a threat level.

COMMANDS:
  safelink scan <url>...        Scan one or more URLs
  safelink scan --file urls.txt Scan a list of URLs
  safelink serve                Start the HTTP API
  safelink history list         Show your recent scans
  safelink rules                List the rule catalogue
  safelink model                Show the anomaly model in use
  safelink blacklist import     Load a feed into the redis blacklist
  safelink db status            Show schema migration status`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			// Sync errors on stdout/stderr are expected on Linux
			if err := log.Sync(); err != nil && !strings.Contains(err.Error(), "invalid argument") {
				fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", err)
			}
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.safelink.yaml or $HOME/.safelink.yaml)")

	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (json, console)")
	defaults := config.DefaultConfig()
	rootCmd.PersistentFlags().String("db-dsn", defaults.Database.DSN, "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("redis-addr", defaults.Redis.Addr, "Redis server address (setting it enables redis)")
	rootCmd.PersistentFlags().Duration("deadline", defaults.Scanner.Deadline, "overall scan deadline")
	rootCmd.PersistentFlags().String("user", "", "user id that owns scan history")

	bindFlag("logger.level", "log-level")
	bindFlag("logger.format", "log-format")
	bindFlag("database.dsn", "db-dsn")
	bindFlag("redis.addr", "redis-addr")
	bindFlag("scanner.deadline", "deadline")
	bindFlag("user", "user")

	_ = viper.BindEnv("database.dsn", "SAFELINK_DATABASE_DSN", "DATABASE_URL")
	_ = viper.BindEnv("redis.addr", "SAFELINK_REDIS_ADDR", "REDIS_URL")
	_ = viper.BindEnv("user", "SAFELINK_USER", "USER")
}

func bindFlag(key, flag string) {
	_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

// envKeys are the settings that can also come from SAFELINK_* variables.
var envKeys = []string{
	"logger.level",
	"logger.format",
	"database.driver",
	"database.max_connections",
	"redis.enabled",
	"redis.password",
	"redis.db",
	"telemetry.enabled",
	"telemetry.endpoint",
	"telemetry.sample_rate",
	"security.api_key",
	"security.rate_limit.requests_per_second",
	"security.rate_limit.burst_size",
	"server.host",
	"server.port",
	"server.enable_cors",
	"server.tls_cert",
	"server.tls_key",
	"scanner.concurrency",
	"scanner.whois.timeout",
	"scanner.whois.known_domains",
	"scanner.tls.timeout",
	"scanner.tls.check_revocation",
	"scanner.redirect.max_hops",
	"scanner.redirect.block_private",
	"scanner.blacklist.sources",
	"scanner.blacklist.feed_file",
	"scanner.blacklist.dnsbl_zones",
	"rules.overrides_file",
	"anomaly.model_path",
	"anomaly.endpoint",
	"scoring.rule_weight",
	"scoring.anomaly_weight",
	"scoring.suspicious_at",
	"scoring.high_risk_at",
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".safelink")
	}

	viper.SetEnvPrefix("SAFELINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	loaded, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// loadConfig overlays whatever v holds onto the defaults and validates the
// result.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	c := config.DefaultConfig()
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// An explicitly supplied address turns redis on unless redis.enabled
	// says otherwise.
	if v.IsSet("redis.addr") && !v.IsSet("redis.enabled") {
		c.Redis.Enabled = true
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// currentUser is the owner recorded on scans made from the CLI.
func currentUser() string {
	if u := viper.GetString("user"); u != "" {
		return u
	}
	return "local"
}

// openStore connects to the history database.
func openStore() (core.ScanStore, error) {
	store, err := database.NewStore(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// buildScanner wires a scanner from cfg. The returned cleanup releases
// everything it opened.
func buildScanner(ctx context.Context, store core.ScanStore) (*scanner.Scanner, func(), error) {
	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		log.Warnw("Telemetry disabled", "error", err)
		tel = nil
	}

	factory := scanner.NewFactory(cfg, store, tel, log)
	s, err := factory.Build()
	if err != nil {
		_ = factory.Close()
		if tel != nil {
			_ = tel.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		if err := factory.Close(); err != nil {
			log.Warnw("Failed to close scanner resources", "error", err)
		}
		if tel != nil {
			if err := tel.Close(); err != nil {
				log.Warnw("Failed to flush telemetry", "error", err)
			}
		}
	}
	return s, cleanup, nil
}
