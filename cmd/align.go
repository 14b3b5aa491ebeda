package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/tampercheck/internal/align"
	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/render"
	"github.com/spf13/cobra"
)

var (
	alignControlPath string
	alignTestPath    string
	alignOutPath     string
	alignJSON        bool
	alignIters       int
	alignPop         int
	alignSeed        int64
	alignGrid        int
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Search the scale and offset that best overlay the test image",
	Long: `Runs a Mayfly search over scale and offsets, comparing the rendered test
layer against the control on a coarse copy of the display surface. The result
is a suggestion for the compare command's --scale/--offset flags.`,
	RunE: runAlign,
}

func init() {
	alignCmd.Flags().StringVar(&alignControlPath, "control", "", "Control image path (required)")
	alignCmd.Flags().StringVar(&alignTestPath, "test", "", "Test image path (required)")
	alignCmd.Flags().StringVar(&alignOutPath, "out", "", "Write a preview with the found transform here")
	alignCmd.Flags().BoolVar(&alignJSON, "json", false, "Print the result as JSON")
	alignCmd.Flags().IntVar(&alignIters, "iters", 0, "Max iterations (default from config)")
	alignCmd.Flags().IntVar(&alignPop, "pop", 0, "Population size, at least 20 (default from config)")
	alignCmd.Flags().Int64Var(&alignSeed, "seed", 0, "Random seed (default from config)")
	alignCmd.Flags().IntVar(&alignGrid, "grid", 0, "Long side of the evaluation grid (default from config)")

	alignCmd.MarkFlagRequired("control")
	alignCmd.MarkFlagRequired("test")
	rootCmd.AddCommand(alignCmd)
}

func runAlign(cmd *cobra.Command, args []string) error {
	params := cfg.AlignParams()
	if cmd.Flags().Changed("iters") {
		params.Iterations = alignIters
	}
	if cmd.Flags().Changed("pop") {
		params.Population = alignPop
	}
	if cmd.Flags().Changed("seed") {
		params.Seed = alignSeed
	}
	if cmd.Flags().Changed("grid") {
		params.Grid = alignGrid
	}

	control, test, err := loadPair(alignControlPath, alignTestPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := align.Align(ctx, control.Pix, test.Pix, cfg.Surface(), params)
	if err != nil {
		return fmt.Errorf("alignment failed: %w", err)
	}

	if alignOutPath != "" {
		preview := render.Composite(control.Pix, test.Pix, cfg.Surface(), res.Transform, cfg.DefaultOpacity, nil)
		if err := imageio.SavePNG(alignOutPath, preview); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if alignJSON {
		return json.NewEncoder(w).Encode(map[string]any{
			"transform":   res.Transform,
			"cost":        res.Cost,
			"baseline":    res.Baseline,
			"evaluations": res.Evaluations,
		})
	}

	if !res.Improved() {
		fmt.Fprintf(w, "No better overlay found than the identity (difference %.2f)\n", res.Baseline)
		return nil
	}
	t := res.Transform
	fmt.Fprintf(w, "Suggested transform: --scale %.3f --offset-x %.1f --offset-y %.1f\n", t.Scale, t.OffsetX, t.OffsetY)
	fmt.Fprintf(w, "Mean difference: %.2f -> %.2f (%d evaluations in %s)\n",
		res.Baseline, res.Cost, res.Evaluations, res.Elapsed.Round(time.Millisecond))
	return nil
}
