package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/insights"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/rules"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Shared display helper functions for all commands

func colorThreatLevel(level types.ThreatLevel) string {
	switch level {
	case types.ThreatLevelHighRisk:
		return color.New(color.FgRed, color.Bold).Sprint("HIGH RISK")
	case types.ThreatLevelSuspicious:
		return color.New(color.FgYellow, color.Bold).Sprint("SUSPICIOUS")
	case types.ThreatLevelSafe:
		return color.New(color.FgGreen, color.Bold).Sprint("SAFE")
	default:
		return string(level)
	}
}

func colorSeverity(severity string) string {
	switch severity {
	case insights.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRITICAL")
	case insights.SeverityHigh:
		return color.New(color.FgRed).Sprint("HIGH")
	case insights.SeverityMedium:
		return color.New(color.FgYellow).Sprint("MEDIUM")
	case insights.SeverityLow:
		return color.New(color.FgCyan).Sprint("LOW")
	case insights.SeverityInfo:
		return color.New(color.FgWhite).Sprint("INFO")
	default:
		return strings.ToUpper(severity)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatDomainAge(days int) string {
	if days == types.UnknownDomainAge {
		return "unknown"
	}
	return fmt.Sprintf("%d days", days)
}

// printScanResult renders one result for a terminal.
func printScanResult(w io.Writer, res *types.ScanResult) {
	bold := color.New(color.Bold)

	fmt.Fprintf(w, "\n%s %s\n", bold.Sprint("URL:"), res.Target.URL)
	fmt.Fprintf(w, "%s %s  (risk %.1f / 100)\n", bold.Sprint("Verdict:"), colorThreatLevel(res.ThreatLevel), res.RiskScore)
	if res.Summary != "" {
		fmt.Fprintf(w, "  %s\n", res.Summary)
	}

	if res.Breakdown.Level != "" {
		fmt.Fprintf(w, "  Score: %s\n", res.Breakdown.Formula())
	}
	fmt.Fprintf(w, "  Rules %.1f (catalogue %s) | Anomaly %.1f, confidence %s (model %s)\n",
		res.Rules.Score, res.Rules.CatalogueVersion,
		res.Anomaly.Score, res.Anomaly.Confidence, res.Anomaly.ModelVersion)

	v := res.Vector
	fmt.Fprintf(w, "\n%s\n", bold.Sprint("Signals"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Domain\t%s\n", res.Target.Domain)
	fmt.Fprintf(tw, "  Domain age\t%s\n", formatDomainAge(v.DomainAgeDays))
	fmt.Fprintf(tw, "  HTTPS / valid cert\t%s / %s\n", yesNo(v.HasHTTPS), yesNo(v.HasValidSSL))
	fmt.Fprintf(tw, "  Blacklisted\t%s\n", yesNo(v.IsBlacklisted))
	fmt.Fprintf(tw, "  Redirects\t%d\n", v.RedirectCount)
	fmt.Fprintf(tw, "  Suspicious keywords\t%d\n", v.SuspiciousPatterns)
	_ = tw.Flush()

	if len(res.Rules.Triggered) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold.Sprint("Triggered rules"))
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, t := range res.Rules.Triggered {
			fmt.Fprintf(tw, "  +%.0f\t%s\t%s\n", t.Penalty, t.ID, t.Description)
		}
		_ = tw.Flush()
	}

	if len(res.Insights) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold.Sprint("What this means"))
		for _, in := range res.Insights {
			fmt.Fprintf(w, "  %s %s\n", colorSeverity(in.Severity), in.Title)
			if in.Explanation != "" {
				fmt.Fprintf(w, "      %s\n", in.Explanation)
			}
			for _, a := range in.Actions {
				fmt.Fprintf(w, "      - %s\n", a)
			}
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "\n%s\n", color.YellowString("Warnings"))
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  [%s] %s: %s\n", warn.Code, warn.Source, warn.Reason)
		}
	}

	fmt.Fprintf(w, "\nTip: %s\n", insights.TipFor(res.ID))
	fmt.Fprintf(w, "Scan %s took %dms\n", res.ID, res.DurationMs)
}

func printRecords(w io.Writer, records []types.ScanRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No scans found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCANNED\tRISK\tLEVEL\tURL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n",
			r.ID, r.ScannedAt.Format("2006-01-02 15:04"), r.RiskScore, colorThreatLevel(r.ThreatLevel), truncate(r.URL, 60))
	}
	_ = tw.Flush()
}

func printTrend(w io.Writer, points []types.TrendPoint) {
	if len(points) == 0 {
		fmt.Fprintln(w, "No scans in this window")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSCANS\tAVG RISK\t")
	for _, p := range points {
		bar := strings.Repeat("#", int(p.AvgRisk/5))
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%s\n", p.Day.Format("2006-01-02"), p.Scans, p.AvgRisk, bar)
	}
	_ = tw.Flush()
}

func printRules(w io.Writer, cat *rules.Catalogue) {
	fmt.Fprintf(w, "Rule catalogue %s (%d rules)\n\n", cat.Version, len(cat.Rules))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tID\tPENALTY\tDESCRIPTION")
	for _, info := range cat.Describe(types.DefaultFeatureVector()) {
		penalty := fmt.Sprintf("%.0f", info.Penalty)
		if info.Penalty == 0 {
			penalty = "varies"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Category, info.ID, penalty, info.Description)
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nCategory caps:")
	for _, c := range rules.Categories {
		if limit, ok := cat.Caps[c]; ok {
			fmt.Fprintf(w, "  %-10s %.0f\n", c, limit)
		} else {
			fmt.Fprintf(w, "  %-10s uncapped\n", c)
		}
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
