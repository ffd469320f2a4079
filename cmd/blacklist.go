package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/cache"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals/blacklist"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/urlnorm"
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the shared redis blacklist",
	Long: `Manage the blacklist sets the "redis" blacklist source reads.

Add "redis" to scanner.blacklist.sources to have scans consult them.`,
}

var blacklistImportCmd = &cobra.Command{
	Use:   "import [feed.yaml]",
	Short: "Load a YAML feed into redis",
	Long: `Load the domains and URLs of a feed file into redis.

The feed has the same format as scanner.blacklist.feed_file:

  domains:
    - evil.example
  urls:
    - http://login.example.net/verify

URLs are normalized and stored by fingerprint.`,
	Args: cobra.ExactArgs(1),
	RunE: runBlacklistImport,
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove [domain]",
	Short: "Remove a domain from the redis blacklist",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlacklistRemove,
}

func init() {
	rootCmd.AddCommand(blacklistCmd)
	blacklistCmd.AddCommand(blacklistImportCmd, blacklistRemoveCmd)
}

// feedEntries turns a feed into the members the redis sets hold. URLs that
// do not normalize are returned separately.
func feedEntries(feed *blacklist.Feed) (domains, hashes, rejected []string) {
	domains = append(domains, feed.Domains...)
	for _, raw := range feed.URLs {
		target, err := urlnorm.Normalize(raw)
		if err != nil {
			rejected = append(rejected, raw)
			continue
		}
		hashes = append(hashes, blacklist.Fingerprint(target.URL))
	}
	return domains, hashes, rejected
}

func runBlacklistImport(cmd *cobra.Command, args []string) error {
	feed, err := blacklist.LoadFeed(args[0])
	if err != nil {
		return err
	}

	domains, hashes, rejected := feedEntries(feed)
	for _, raw := range rejected {
		log.Warnw("Skipping invalid feed URL", "component", "cli_blacklist", "url", raw)
	}

	client, err := cache.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	added, err := cache.NewBlacklistWriter(client).Add(ctx, domains, hashes)
	if err != nil {
		return err
	}

	log.Infow("Blacklist feed imported",
		"component", "cli_blacklist",
		"feed", args[0],
		"domains", len(domains),
		"urls", len(hashes),
		"added", added,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d domains and %d URLs (%d new, %d skipped)\n",
		len(domains), len(hashes), added, len(rejected))
	return nil
}

func runBlacklistRemove(cmd *cobra.Command, args []string) error {
	client, err := cache.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := cache.NewBlacklistWriter(client).Remove(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to remove %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}
