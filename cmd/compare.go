package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/tampercheck/internal/compare"
	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/viewport"
	"github.com/spf13/cobra"
)

var (
	controlPath string
	testPath    string
	heatmapPath string
	jsonOutput  bool
	perceptual  bool
	cmpView     viewFlags
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare a selected region of a control and a test image",
	Long: `Maps the selection from display space into both images, extracts the two
regions at the selection's size and reports whether the test region was
tampered with.`,
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&controlPath, "control", "", "Control image path (required)")
	compareCmd.Flags().StringVar(&testPath, "test", "", "Test image path (required)")
	compareCmd.Flags().StringVar(&heatmapPath, "out", "", "Write the difference heatmap PNG here")
	compareCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	compareCmd.Flags().BoolVar(&perceptual, "perceptual", false, "Also report mean CIEDE2000")
	cmpView.register(compareCmd.Flags())

	compareCmd.MarkFlagRequired("control")
	compareCmd.MarkFlagRequired("test")
	compareCmd.MarkFlagRequired("select")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	session, err := cmpView.session()
	if err != nil {
		return err
	}

	control, test, err := loadPair(controlPath, testPath)
	if err != nil {
		return err
	}

	opts := compare.DefaultOptions()
	opts.ScaleRange = cfg.ScaleRange()
	opts.Perceptual = perceptual || cfg.Perceptual

	start := time.Now()
	out, err := compare.Run(control, test, session, opts)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}
	slog.Info("Comparison finished", "elapsed", time.Since(start), "verdict", out.Result.Verdict.Label())

	if heatmapPath != "" {
		if err := imageio.SavePNG(heatmapPath, out.Result.Heatmap); err != nil {
			return err
		}
		slog.Info("Wrote heatmap", "path", heatmapPath)
	}

	payload, err := out.Payload()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	fmt.Fprintln(w, payload.Summary())
	fmt.Fprintln(w, payload.Description)
	fmt.Fprintf(w, "Control region: %s\n", out.ControlRect)
	fmt.Fprintf(w, "Test region:    %s\n", out.TestRect)
	if opts.Perceptual {
		fmt.Fprintf(w, "Mean ΔE2000:    %.2f\n", out.DeltaE)
	}
	return nil
}

// loadPair loads and tags the control and test images.
func loadPair(controlPath, testPath string) (compare.SourceImage, compare.SourceImage, error) {
	c, err := imageio.Load(controlPath)
	if err != nil {
		return compare.SourceImage{}, compare.SourceImage{}, fmt.Errorf("control: %w", err)
	}
	t, err := imageio.Load(testPath)
	if err != nil {
		return compare.SourceImage{}, compare.SourceImage{}, fmt.Errorf("test: %w", err)
	}
	slog.Info("Loaded images",
		"control", fmt.Sprintf("%dx%d", c.Bounds().Dx(), c.Bounds().Dy()),
		"test", fmt.Sprintf("%dx%d", t.Bounds().Dx(), t.Bounds().Dy()))

	return compare.SourceImage{Role: viewport.Control, Pix: c}, compare.SourceImage{Role: viewport.Test, Pix: t}, nil
}
