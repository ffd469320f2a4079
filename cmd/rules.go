package cmd

import (
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/rules"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the rule catalogue",
	Long: `List every rule the scorer evaluates, with its category and penalty.

Penalties that depend on the measured value are shown as "varies". When
rules.overrides_file is set the listing reflects the overrides.`,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().Bool("json", false, "print as JSON")
}

func runRules(cmd *cobra.Command, args []string) error {
	cat, err := rules.Load(cfg.Rules.OverridesFile)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"catalogue_version": cat.Version,
			"category_caps":     cat.Caps,
			"rules":             cat.Describe(types.DefaultFeatureVector()),
		})
	}
	printRules(cmd.OutOrStdout(), cat)
	return nil
}
