// Package align searches for the test transform that best lays the test
// image over the control image. It renders both onto a coarse copy of the
// display surface and minimises their mean absolute difference with a
// Mayfly optimizer.
package align

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/tampercheck/internal/diff"
	"github.com/cwbudde/tampercheck/internal/errs"
	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/region"
	"github.com/cwbudde/tampercheck/internal/render"
	"github.com/cwbudde/tampercheck/internal/viewport"
	xdraw "golang.org/x/image/draw"
)

// Params configures a search.
type Params struct {
	Iterations int
	Population int
	Seed       int64
	Grid       int // long side of the evaluation grid in pixels
	ScaleRange viewport.ScaleRange
}

// DefaultParams returns a search budget suited to interactive use.
func DefaultParams() Params {
	return Params{
		Iterations: 60,
		Population: 20,
		Seed:       1,
		Grid:       160,
		ScaleRange: viewport.DefaultScaleRange,
	}
}

// Validate checks the search budget.
func (p Params) Validate() error {
	if p.Iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", p.Iterations)
	}
	if p.Population < 20 {
		return fmt.Errorf("population must be at least 20, got %d", p.Population)
	}
	if p.Grid < 8 {
		return fmt.Errorf("grid must be at least 8 pixels, got %d", p.Grid)
	}
	if p.ScaleRange.Min <= 0 || p.ScaleRange.Max < p.ScaleRange.Min {
		return fmt.Errorf("invalid scale range [%g, %g]", p.ScaleRange.Min, p.ScaleRange.Max)
	}
	return nil
}

// Result is the best transform found.
type Result struct {
	Transform   viewport.Transform
	Cost        float64 // mean absolute difference on the grid, 0..255
	Baseline    float64 // cost of the identity transform
	Evaluations int
	Elapsed     time.Duration
}

// Improved reports whether the search beat the identity transform.
func (r *Result) Improved() bool {
	return r.Cost < r.Baseline
}

// Aligner holds the rendered control grid for one image pair. It reuses a
// single render buffer and is not safe for concurrent use.
type Aligner struct {
	surface   viewport.Surface
	test      *image.NRGBA
	reference *image.NRGBA
	buf       *image.RGBA
	params    Params
}

// New prepares an aligner. Alpha in either image is ignored.
func New(control, test image.Image, surface viewport.Surface, p Params) (*Aligner, error) {
	if err := surface.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if control == nil || test == nil {
		return nil, errs.New(errs.EmptyRegion, "align.New", "both images must be loaded")
	}

	w, h := gridSize(surface, p.Grid)
	ref := image.NewRGBA(image.Rect(0, 0, w, h))
	render.Layer(ref, imageio.Opaque(control), surface, viewport.Identity, render.LayerOptions{Op: xdraw.Src})

	return &Aligner{
		surface:   surface,
		test:      imageio.Opaque(test),
		reference: asNRGBA(ref),
		buf:       image.NewRGBA(image.Rect(0, 0, w, h)),
		params:    p,
	}, nil
}

// Cost renders the test image with t onto the grid and returns its mean
// absolute difference from the control. Surface area the test layer does
// not reach counts as black, so shrinking the layer is not free.
func (a *Aligner) Cost(t viewport.Transform) float64 {
	draw.Draw(a.buf, a.buf.Bounds(), image.NewUniform(region.Missing), image.Point{}, draw.Src)
	render.Layer(a.buf, a.test, a.surface, t, render.LayerOptions{Op: xdraw.Src})

	d, err := diff.MeanAbsDiff(a.reference, asNRGBA(a.buf))
	if err != nil {
		return math.Inf(1)
	}
	return d
}

// Decode maps a point of the search box to a transform. Scale spans the
// allowed range, offsets span half the surface either way.
func (a *Aligner) Decode(x []float64) viewport.Transform {
	return viewport.Transform{
		Scale:   a.params.ScaleRange.Clamp(x[0]),
		OffsetX: x[1],
		OffsetY: x[2],
	}
}

// Run searches for the best transform. The optimizer is not interruptible;
// once ctx is done the remaining evaluations return +Inf and Run reports
// ctx.Err().
func (a *Aligner) Run(ctx context.Context, o Optimizer) (*Result, error) {
	start := time.Now()
	baseline := a.Cost(viewport.Identity)

	lower := []float64{a.params.ScaleRange.Min, -a.surface.W / 2, -a.surface.H / 2}
	upper := []float64{a.params.ScaleRange.Max, a.surface.W / 2, a.surface.H / 2}

	evals := 0
	eval := func(x []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		evals++
		return a.Cost(a.Decode(x))
	}

	best, cost := o.Run(eval, lower, upper, 3)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Transform:   a.Decode(best),
		Cost:        cost,
		Baseline:    baseline,
		Evaluations: evals,
		Elapsed:     time.Since(start),
	}

	// Never hand back something worse than leaving the image alone
	if !res.Improved() {
		res.Transform = viewport.Identity
		res.Cost = baseline
	}

	slog.Info("Alignment complete",
		"scale", res.Transform.Scale,
		"offset_x", res.Transform.OffsetX,
		"offset_y", res.Transform.OffsetY,
		"cost", res.Cost,
		"baseline", baseline,
		"evaluations", evals,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// Align is a convenience wrapper running a Mayfly search with p.
func Align(ctx context.Context, control, test image.Image, surface viewport.Surface, p Params) (*Result, error) {
	a, err := New(control, test, surface, p)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, NewMayfly(p.Iterations, p.Population, p.Seed))
}

// gridSize scales the surface so its long side is at most long pixels.
func gridSize(surface viewport.Surface, long int) (int, int) {
	k := float64(long) / math.Max(surface.W, surface.H)
	if k > 1 {
		k = 1
	}
	w := int(math.Max(1, math.Round(surface.W*k)))
	h := int(math.Max(1, math.Round(surface.H*k)))
	return w, h
}

// asNRGBA views an opaque RGBA buffer as NRGBA without copying.
func asNRGBA(img *image.RGBA) *image.NRGBA {
	return &image.NRGBA{Pix: img.Pix, Stride: img.Stride, Rect: img.Rect}
}
