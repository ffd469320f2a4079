package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse your scan history",
	Long: `Browse scans recorded with "safelink scan --save" or through the API.

History is scoped to the current user (--user, SAFELINK_USER or $USER).`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scans, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [scan-id]",
	Short: "Show the full result of one scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [scan-id]",
	Short: "Delete one scan from history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show average daily risk",
	RunE:  runHistoryTrend,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyTrendCmd)

	historyListCmd.Flags().Int("limit", 20, "maximum number of scans")
	historyListCmd.Flags().Int("offset", 0, "number of scans to skip")
	historyListCmd.Flags().String("domain", "", "only scans of this registrable domain")
	historyListCmd.Flags().String("level", "", "only scans at this threat level (safe, suspicious, high_risk)")
	historyListCmd.Flags().String("since", "", "only scans on or after this date (YYYY-MM-DD)")
	historyListCmd.Flags().Bool("json", false, "print as JSON")

	historyShowCmd.Flags().Bool("json", false, "print as JSON")

	historyTrendCmd.Flags().Int("days", 30, "window size in days")
	historyTrendCmd.Flags().Bool("json", false, "print as JSON")
}

// historyFilter turns list flags into a store filter.
func historyFilter(cmd *cobra.Command, userID string) (core.ScanFilter, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	domain, _ := cmd.Flags().GetString("domain")
	level, _ := cmd.Flags().GetString("level")
	since, _ := cmd.Flags().GetString("since")

	filter := core.ScanFilter{
		UserID: userID,
		Domain: strings.ToLower(domain),
		Limit:  limit,
		Offset: offset,
	}
	if limit < 0 || offset < 0 {
		return filter, errors.New("--limit and --offset must not be negative")
	}

	switch types.ThreatLevel(level) {
	case "":
	case types.ThreatLevelSafe, types.ThreatLevelSuspicious, types.ThreatLevelHighRisk:
		filter.ThreatLevel = types.ThreatLevel(level)
	default:
		return filter, fmt.Errorf("unknown threat level %q", level)
	}

	if since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return filter, fmt.Errorf("invalid --since date: %w", err)
		}
		filter.FromDate = &t
	}
	return filter, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	filter, err := historyFilter(cmd, currentUser())
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	records, err := store.ListScans(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), records)
	}
	printRecords(cmd.OutOrStdout(), records)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	res, err := store.GetScan(ctx, currentUser(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load scan %s: %w", args[0], err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}

	printScanResult(cmd.OutOrStdout(), res)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := store.DeleteScan(ctx, currentUser(), args[0]); err != nil {
		return fmt.Errorf("failed to delete scan %s: %w", args[0], err)
	}

	log.Infow("Scan deleted", "component", "cli_history", "scan_id", args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted scan %s\n", args[0])
	return nil
}

func runHistoryTrend(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	if days < 1 || days > 365 {
		return errors.New("--days must be between 1 and 365")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	points, err := store.RiskTrend(ctx, currentUser(), days)
	if err != nil {
		return fmt.Errorf("failed to compute trend: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), points)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Average risk over the last %d days\n\n", days)
	printTrend(cmd.OutOrStdout(), points)
	return nil
}
