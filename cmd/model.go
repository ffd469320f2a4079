package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/anomaly"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show the anomaly model in use",
	Long: `Show which anomaly model the scanner will load and sanity-check it by
scoring a neutral feature vector.

The model is, in order of preference, the remote scorer at anomaly.endpoint,
the forest file at anomaly.model_path, or the built-in baseline.`,
	RunE: runModel,
}

func init() {
	rootCmd.AddCommand(modelCmd)
}

func runModel(cmd *cobra.Command, args []string) error {
	scorer, err := anomaly.NewScorerFromConfig(cfg.Anomaly, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	model := scorer.Model()

	source := "built-in baseline"
	switch {
	case cfg.Anomaly.Endpoint != "":
		source = "remote " + cfg.Anomaly.Endpoint
	case cfg.Anomaly.ModelPath != "":
		source = cfg.Anomaly.ModelPath
	}

	fmt.Fprintf(out, "Model:    %s\n", model.Version())
	fmt.Fprintf(out, "Source:   %s\n", source)
	if forest, ok := model.(*anomaly.Forest); ok {
		fmt.Fprintf(out, "Trees:    %d\n", forest.Trees())
	}
	fmt.Fprintf(out, "Band:     [%.2f, %.2f]\n", cfg.Anomaly.BandLow, cfg.Anomaly.BandHigh)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	res := scorer.Score(ctx, types.DefaultFeatureVector())
	if res.Degraded {
		fmt.Fprintf(out, "Probe:    %s\n", color.RedString("unavailable"))
		return fmt.Errorf("anomaly model %s did not answer", model.Version())
	}
	fmt.Fprintf(out, "Probe:    neutral vector scored %.2f (confidence %s)\n", res.Score, res.Confidence)
	return nil
}
