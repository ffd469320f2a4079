package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/database"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after files, env vars and flags are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// writeConfig renders c as YAML keyed like the config file, with secrets
// masked.
func writeConfig(w io.Writer, c *config.Config) error {
	v := viper.New()
	for key, value := range flattenConfig(c) {
		v.Set(key, value)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v.AllSettings())
}

func flattenConfig(c *config.Config) map[string]interface{} {
	secret := func(s string) string {
		if s == "" {
			return ""
		}
		return "xxxxx"
	}

	return map[string]interface{}{
		"logger.level":                            c.Logger.Level,
		"logger.format":                           c.Logger.Format,
		"database.driver":                         c.Database.Driver,
		"database.dsn":                            database.MaskDSN(c.Database.DSN),
		"database.max_connections":                c.Database.MaxConnections,
		"redis.enabled":                           c.Redis.Enabled,
		"redis.addr":                              c.Redis.Addr,
		"redis.password":                          secret(c.Redis.Password),
		"telemetry.enabled":                       c.Telemetry.Enabled,
		"telemetry.endpoint":                      c.Telemetry.Endpoint,
		"security.api_key":                        secret(c.Security.APIKey),
		"security.rate_limit.requests_per_second": c.Security.RateLimit.RequestsPerSecond,
		"security.rate_limit.burst_size":          c.Security.RateLimit.BurstSize,
		"server.host":                             c.Server.Host,
		"server.port":                             c.Server.Port,
		"server.enable_cors":                      c.Server.EnableCORS,
		"scanner.deadline":                        c.Scanner.Deadline.String(),
		"scanner.concurrency":                     c.Scanner.Concurrency,
		"scanner.whois.timeout":                   c.Scanner.Whois.Timeout.String(),
		"scanner.tls.timeout":                     c.Scanner.TLS.Timeout.String(),
		"scanner.tls.check_revocation":            c.Scanner.TLS.CheckRevocation,
		"scanner.redirect.max_hops":               c.Scanner.Redirect.MaxHops,
		"scanner.redirect.block_private":          c.Scanner.Redirect.BlockPrivate,
		"scanner.blacklist.sources":               c.Scanner.Blacklist.Sources,
		"scanner.blacklist.feed_file":             c.Scanner.Blacklist.FeedFile,
		"scanner.blacklist.dnsbl_zones":           c.Scanner.Blacklist.DNSBLZones,
		"rules.overrides_file":                    c.Rules.OverridesFile,
		"anomaly.model_path":                      c.Anomaly.ModelPath,
		"anomaly.endpoint":                        c.Anomaly.Endpoint,
		"anomaly.band_low":                        c.Anomaly.BandLow,
		"anomaly.band_high":                       c.Anomaly.BandHigh,
		"scoring.rule_weight":                     c.Scoring.RuleWeight,
		"scoring.anomaly_weight":                  c.Scoring.AnomalyWeight,
		"scoring.suspicious_at":                   c.Scoring.SuspiciousAt,
		"scoring.high_risk_at":                    c.Scoring.HighRiskAt,
	}
}
