package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/insights"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/scanner"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [url...]",
	Short: "Scan one or more URLs",
	Long: `Scan URLs and print a risk verdict for each.

Scans run concurrently up to scanner.concurrency. A scan never fails because
a lookup failed: unreachable sources fall back to neutral values and are
listed under Warnings.

Examples:
  safelink scan https://example.com
  safelink scan paypa1-login.tk/verify --json
  safelink scan --file urls.txt --save
  cat urls.txt | safelink scan --file -`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("file", "f", "", "read URLs from a file, one per line (- for stdin)")
	scanCmd.Flags().Bool("json", false, "print results as JSON")
	scanCmd.Flags().Bool("save", false, "record results in scan history")
	scanCmd.Flags().Bool("fail-on-risk", false, "exit with an error when any URL is high risk")
}

func runScan(cmd *cobra.Command, args []string) error {
	inputs := append([]string{}, args...)

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		fromFile, err := readURLFile(file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		inputs = append(inputs, fromFile...)
	}
	if len(inputs) == 0 {
		return errors.New("no URLs given: pass them as arguments or with --file")
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	save, _ := cmd.Flags().GetBool("save")
	failOnRisk, _ := cmd.Flags().GetBool("fail-on-risk")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var store core.ScanStore
	if save {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	s, cleanup, err := buildScanner(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to build scanner: %w", err)
	}
	defer cleanup()

	log.Infow("Starting scan",
		"component", "cli_scan",
		"urls", len(inputs),
		"concurrency", cfg.Scanner.Concurrency,
		"save", save,
	)

	start := time.Now()
	items := s.ScanMany(ctx, inputs, currentUser(), cfg.Scanner.Concurrency)
	log.LogDuration(ctx, "cli_scan", start, "urls", len(inputs))

	out := cmd.OutOrStdout()
	if asJSON {
		return printBatchJSON(out, items, failOnRisk)
	}
	return printBatch(out, items, failOnRisk)
}

// readURLFile returns the non-empty, non-comment lines of path. A path of
// "-" reads stdin.
func readURLFile(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open URL file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}
	return urls, nil
}

type batchOutput struct {
	Input  string            `json:"input"`
	Error  string            `json:"error,omitempty"`
	Result *types.ScanResult `json:"result,omitempty"`
	Tips   []string          `json:"educational_tips,omitempty"`
}

func printBatchJSON(w io.Writer, items []scanner.BatchItem, failOnRisk bool) error {
	out := make([]batchOutput, 0, len(items))
	for _, item := range items {
		o := batchOutput{Input: item.Input, Result: item.Result}
		if item.Err != nil {
			o.Error = item.Err.Error()
		} else if item.Result != nil {
			o.Tips = insights.Tips(item.Result.Insights)
		}
		out = append(out, o)
	}
	if err := printJSON(w, out); err != nil {
		return err
	}
	return batchVerdict(items, failOnRisk)
}

func printBatch(w io.Writer, items []scanner.BatchItem, failOnRisk bool) error {
	counts := make(map[types.ThreatLevel]int)
	invalid := 0
	for _, item := range items {
		if item.Err != nil {
			invalid++
			fmt.Fprintf(w, "\n%s %s: %v\n", color.RedString("Skipped"), item.Input, item.Err)
			continue
		}
		counts[item.Result.ThreatLevel]++
		printScanResult(w, item.Result)
	}

	if len(items) > 1 {
		fmt.Fprintf(w, "\nScanned %d URLs: %d safe, %d suspicious, %d high risk",
			len(items)-invalid,
			counts[types.ThreatLevelSafe],
			counts[types.ThreatLevelSuspicious],
			counts[types.ThreatLevelHighRisk])
		if invalid > 0 {
			fmt.Fprintf(w, ", %d invalid", invalid)
		}
		fmt.Fprintln(w)
	}
	return batchVerdict(items, failOnRisk)
}

// batchVerdict is the command's exit status. Invalid input is always an
// error; high risk only when asked.
func batchVerdict(items []scanner.BatchItem, failOnRisk bool) error {
	var invalid, risky int
	for _, item := range items {
		switch {
		case item.Err != nil:
			invalid++
		case failOnRisk && item.Result.ThreatLevel == types.ThreatLevelHighRisk:
			risky++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d URLs were invalid", invalid, len(items))
	}
	if risky > 0 {
		return fmt.Errorf("%d URLs are high risk", risky)
	}
	return nil
}
