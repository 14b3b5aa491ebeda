package main

import (
	"encoding/json"
	"fmt"

	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/viewport"
	"github.com/spf13/cobra"
)

var (
	mapControlSize string
	mapTestSize    string
	mapControlPath string
	mapTestPath    string
	mapJSON        bool
	mapView        viewFlags
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Map a display selection into control and test pixel coordinates",
	Long: `Prints the source rectangles a selection covers in both images. Image sizes
come from --control-size/--test-size or are read from the image files.`,
	RunE: runMap,
}

func init() {
	mapCmd.Flags().StringVar(&mapControlSize, "control-size", "", "Control image size WxH")
	mapCmd.Flags().StringVar(&mapTestSize, "test-size", "", "Test image size WxH")
	mapCmd.Flags().StringVar(&mapControlPath, "control", "", "Control image path (instead of --control-size)")
	mapCmd.Flags().StringVar(&mapTestPath, "test", "", "Test image path (instead of --test-size)")
	mapCmd.Flags().BoolVar(&mapJSON, "json", false, "Print the rectangles as JSON")
	mapView.register(mapCmd.Flags())

	mapCmd.MarkFlagsMutuallyExclusive("control-size", "control")
	mapCmd.MarkFlagsMutuallyExclusive("test-size", "test")
	mapCmd.MarkFlagRequired("select")
	rootCmd.AddCommand(mapCmd)
}

func runMap(cmd *cobra.Command, args []string) error {
	session, err := mapView.session()
	if err != nil {
		return err
	}

	control, err := resolveSize("control", mapControlSize, mapControlPath)
	if err != nil {
		return err
	}
	test, err := resolveSize("test", mapTestSize, mapTestPath)
	if err != nil {
		return err
	}

	if err := cfg.ScaleRange().Check(session.Transform); err != nil {
		return err
	}
	controlRect, testRect, err := viewport.MapBoth(session.Selection, control, test, session.Transform, session.Surface)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if mapJSON {
		return json.NewEncoder(w).Encode(map[string]viewport.Rect{
			"selection":    session.Selection.Normalize(),
			"control_rect": controlRect,
			"test_rect":    testRect,
		})
	}

	fmt.Fprintf(w, "Selection:      %s\n", session.Selection.Normalize())
	fmt.Fprintf(w, "Control region: %s\n", controlRect)
	fmt.Fprintf(w, "Test region:    %s\n", testRect)
	return nil
}

// resolveSize takes an explicit WxH or reads the size from an image file.
func resolveSize(role, size, path string) (viewport.Size, error) {
	switch {
	case size != "":
		w, h, err := parseSize(size)
		if err != nil {
			return viewport.Size{}, fmt.Errorf("invalid --%s-size: %w", role, err)
		}
		return viewport.Size{W: w, H: h}, nil
	case path != "":
		img, err := imageio.Load(path)
		if err != nil {
			return viewport.Size{}, fmt.Errorf("%s: %w", role, err)
		}
		return viewport.SizeOf(img), nil
	}
	return viewport.Size{}, fmt.Errorf("either --%s-size or --%s is required", role, role)
}
