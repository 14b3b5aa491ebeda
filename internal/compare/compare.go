// Package compare runs one tampering check: it resolves a display-space
// selection into both source images, extracts the two regions at the
// selection's size and classifies their difference.
//
// All state arrives by value in Session; nothing is retained between calls,
// so comparisons for different sessions can run concurrently.
package compare

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/cwbudde/tampercheck/internal/diff"
	"github.com/cwbudde/tampercheck/internal/errs"
	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/region"
	"github.com/cwbudde/tampercheck/internal/viewport"
	"golang.org/x/image/draw"
)

// SourceImage is a loaded, read-only image tagged with its role.
type SourceImage struct {
	Role viewport.Role
	Pix  *image.NRGBA
}

// Size returns the native pixel dimensions.
func (s SourceImage) Size() viewport.Size {
	return viewport.SizeOf(s.Pix)
}

// Session is the operator's current view: surface, test transform,
// selection and overlay opacity. The caller owns it.
type Session struct {
	Surface   viewport.Surface
	Transform viewport.Transform
	Selection viewport.Rect
	Opacity   float64
}

// NewSession returns the workspace defaults for the given surface.
func NewSession(surface viewport.Surface) Session {
	return Session{
		Surface:   surface,
		Transform: viewport.Identity,
		Opacity:   DefaultOpacity,
	}
}

// DefaultOpacity is the initial test overlay opacity.
const DefaultOpacity = 0.7

// Options tune a comparison.
type Options struct {
	ScaleRange viewport.ScaleRange
	Interp     draw.Interpolator // resampler for extraction; bilinear when nil
	Perceptual bool              // also compute mean ΔE2000
}

// DefaultOptions returns the workspace scale range and bilinear sampling.
func DefaultOptions() Options {
	return Options{ScaleRange: viewport.DefaultScaleRange}
}

// Outcome is everything produced by one comparison.
type Outcome struct {
	Selection   viewport.Rect // display selection clipped to the surface
	ControlRect viewport.Rect // selection in control pixels
	TestRect    viewport.Rect // selection in test pixels
	Control     *region.Region
	Test        *region.Region
	Partial     bool    // either region had missing data
	DeltaE      float64 // mean CIEDE2000, only when Options.Perceptual
	Result      *diff.Result
}

// Run performs the comparison for one session.
func Run(control, test SourceImage, s Session, opts Options) (*Outcome, error) {
	if control.Role != viewport.Control || test.Role != viewport.Test {
		return nil, fmt.Errorf("expected control and test images, got %s and %s", control.Role, test.Role)
	}
	if control.Pix == nil || test.Pix == nil {
		return nil, errs.New(errs.EmptyRegion, "compare.Run", "both images must be loaded")
	}

	if opts.ScaleRange == (viewport.ScaleRange{}) {
		opts.ScaleRange = viewport.DefaultScaleRange
	}
	if err := opts.ScaleRange.Check(s.Transform); err != nil {
		return nil, err
	}

	// Clipping bounds the extraction buffers by the surface size
	sel, err := s.Selection.ClipTo(s.Surface)
	if err != nil {
		return nil, err
	}
	controlRect, testRect, err := viewport.MapBoth(sel, control.Size(), test.Size(), s.Transform, s.Surface)
	if err != nil {
		return nil, err
	}

	w, h := region.OutputSize(sel)
	cr, err := region.Extract(control.Pix, controlRect, w, h, opts.Interp)
	if err != nil {
		return nil, fmt.Errorf("control region: %w", err)
	}
	tr, err := region.Extract(test.Pix, testRect, w, h, opts.Interp)
	if err != nil {
		return nil, fmt.Errorf("test region: %w", err)
	}

	res, err := diff.Classify(cr.Image, tr.Image)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Selection:   sel,
		ControlRect: controlRect,
		TestRect:    testRect,
		Control:     cr,
		Test:        tr,
		Partial:     cr.Clipped || tr.Clipped,
		Result:      res,
	}

	if opts.Perceptual {
		out.DeltaE, err = diff.MeanDeltaE(cr.Image, tr.Image)
		if err != nil {
			return nil, err
		}
	}

	if out.Partial {
		slog.Warn("Comparison used partial regions",
			"control_coverage", cr.Coverage, "test_coverage", tr.Coverage)
	}
	slog.Debug("Comparison complete",
		"selection", sel.String(),
		"control_rect", controlRect.String(),
		"test_rect", testRect.String(),
		"avg_diff", res.AvgDifference,
		"verdict", res.Verdict.Label(),
	)

	return out, nil
}

// Regions classifies two already extracted regions, such as the crops the
// browser workspace uploads.
func Regions(a, b image.Image) (*diff.Result, error) {
	return diff.Classify(imageio.Opaque(a), imageio.Opaque(b))
}
