// Package render draws the workspace: the control image stretched over the
// display surface, the test image on top with its own scale, offset and
// opacity, and the selection outline.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/cwbudde/tampercheck/internal/viewport"
	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// SelectionColor and SelectionWidth style the selection outline.
var (
	SelectionColor = color.NRGBA{255, 0, 0, 255}
	SelectionWidth = 2.0
)

// LayerOptions controls how a single image is drawn onto the surface grid.
type LayerOptions struct {
	Opacity float64           // 0..1, treated as 1 when zero
	Op      draw.Op           // zero value is draw.Over
	Interp  draw.Interpolator // draw.ApproxBiLinear when nil
}

// Layer draws img stretched to surface and transformed by t into dst. The
// pixel grid of dst covers the whole surface, so a dst smaller than the
// surface renders a proportionally downscaled view.
func Layer(dst draw.Image, img image.Image, surface viewport.Surface, t viewport.Transform, opts LayerOptions) {
	db := dst.Bounds()
	sb := img.Bounds()
	if db.Empty() || sb.Empty() {
		return
	}

	// Surface units to dst pixels
	rx := float64(db.Dx()) / surface.W
	ry := float64(db.Dy()) / surface.H

	place := viewport.Placement(t, surface)
	kx := place.W / float64(sb.Dx()) * rx
	ky := place.H / float64(sb.Dy()) * ry

	s2d := f64.Aff3{
		kx, 0, float64(db.Min.X) + place.X*rx - float64(sb.Min.X)*kx,
		0, ky, float64(db.Min.Y) + place.Y*ry - float64(sb.Min.Y)*ky,
	}

	interp := opts.Interp
	if interp == nil {
		interp = draw.ApproxBiLinear
	}

	var do *draw.Options
	if opts.Opacity > 0 && opts.Opacity < 1 {
		alpha := uint8(math.Round(opts.Opacity * 255))
		do = &draw.Options{SrcMask: image.NewUniform(color.Alpha{A: alpha})}
	}

	interp.Transform(dst, s2d, img, sb, opts.Op, do)
}

// Composite renders the workspace at surface resolution. sel may be nil.
func Composite(control, test image.Image, surface viewport.Surface, t viewport.Transform, opacity float64, sel *viewport.Rect) *image.RGBA {
	w := int(math.Ceil(surface.W))
	h := int(math.Ceil(surface.H))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	if control != nil {
		Layer(dst, control, surface, viewport.Identity, LayerOptions{Op: draw.Src})
	}
	if test != nil {
		Layer(dst, test, surface, t, LayerOptions{Op: draw.Over, Opacity: opacity})
	}
	if sel != nil && !sel.Empty() {
		DrawSelection(dst, sel.Normalize())
	}

	return dst
}

// DrawSelection strokes the selection outline onto dst.
func DrawSelection(dst *image.RGBA, sel viewport.Rect) {
	dc := gg.NewContextForRGBA(dst)
	dc.SetColor(SelectionColor)
	dc.SetLineWidth(SelectionWidth)
	dc.DrawRectangle(sel.X, sel.Y, sel.W, sel.H)
	dc.Stroke()
}
