package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/api"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/shutdown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SafeLink HTTP API server",
	Long: `Start the HTTP API server for SafeLink.

This server provides:
- POST /api/v1/scan for browser extensions and other clients
- Scan history, trend and rule catalogue endpoints
- A health check at /health

Every /api/v1 request needs "Authorization: Bearer <security.api_key>" and
an X-User-ID header naming the history owner.

Example:
  SAFELINK_SECURITY_API_KEY=secret safelink serve --port 8080
  safelink serve --config config.yaml --tls-cert cert.pem --tls-key key.pem
`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := config.DefaultConfig().Server
	serveCmd.Flags().Int("port", defaults.Port, "Port to listen on")
	serveCmd.Flags().String("host", defaults.Host, "Host to bind to")
	serveCmd.Flags().Bool("cors", defaults.EnableCORS, "Enable CORS for browser extensions")
	serveCmd.Flags().String("tls-cert", "", "Path to TLS certificate (optional)")
	serveCmd.Flags().String("tls-key", "", "Path to TLS private key (optional)")
	serveCmd.Flags().Bool("no-history", false, "Do not connect to the history database")
	serveCmd.Flags().Duration("grace", 15*time.Second, "Time allowed for in-flight requests on shutdown")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.enable_cors", serveCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("server.tls_cert", serveCmd.Flags().Lookup("tls-cert"))
	_ = viper.BindPFlag("server.tls_key", serveCmd.Flags().Lookup("tls-key"))
}

func runServe(cmd *cobra.Command, args []string) error {
	srvCfg := cfg.Server
	if srvCfg.TLSCert != "" || srvCfg.TLSKey != "" {
		if srvCfg.TLSCert == "" || srvCfg.TLSKey == "" {
			return fmt.Errorf("both --tls-cert and --tls-key must be provided for TLS")
		}
		if _, err := os.Stat(srvCfg.TLSCert); err != nil {
			return fmt.Errorf("TLS cert file not found or not readable: %w", err)
		}
		if _, err := os.Stat(srvCfg.TLSKey); err != nil {
			return fmt.Errorf("TLS key file not found or not readable: %w", err)
		}
	}

	serverLog := log.WithComponent("api-server")
	serverLog.Infow("Starting SafeLink API server",
		"host", srvCfg.Host,
		"port", srvCfg.Port,
		"cors_enabled", srvCfg.EnableCORS,
		"tls_enabled", srvCfg.TLSCert != "",
		"config_file", viper.ConfigFileUsed(),
	)

	ctx, stop := shutdown.NotifyContext(cmd.Context())
	defer stop()

	handler := shutdown.NewHandler(log)

	var store core.ScanStore
	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		s, err := openStore()
		if err != nil {
			return err
		}
		store = s
		handler.Register("store", func(context.Context) error { return s.Close() })
	}

	s, cleanup, err := buildScanner(ctx, store)
	if err != nil {
		_ = handler.Shutdown(5 * time.Second)
		return fmt.Errorf("failed to build scanner: %w", err)
	}
	handler.Register("scanner", func(context.Context) error { cleanup(); return nil })

	server, err := api.NewServer(cfg, s, store, serverLog)
	if err != nil {
		_ = handler.Shutdown(5 * time.Second)
		return err
	}

	grace, _ := cmd.Flags().GetDuration("grace")
	runErr := server.Run(ctx, grace)

	if err := handler.Shutdown(grace); err != nil {
		serverLog.Warnw("Shutdown finished with errors", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	serverLog.Infow("Server stopped")
	return nil
}
