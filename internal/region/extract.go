// Package region materialises a source-space rectangle as a pixel buffer of
// a requested size, the way the workspace canvas draws a source rectangle
// into a selection-sized canvas.
//
// Parts of the rectangle that fall outside the source image are missing
// data. They are filled with opaque black and reported through Clipped and
// Coverage; a rectangle with no overlap at all is an OutOfBounds error.
package region

import (
	"image"
	"image/color"
	"math"

	"github.com/cwbudde/tampercheck/internal/errs"
	"github.com/cwbudde/tampercheck/internal/viewport"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Region is an extracted, opaque RGB buffer.
type Region struct {
	Image    *image.NRGBA
	Source   viewport.Rect   // requested rectangle in native pixels
	Covered  image.Rectangle // part of the source image actually sampled
	Coverage float64         // fraction of output pixels backed by source data
	Clipped  bool            // true when Coverage < 1
}

// Missing is the fill used for pixels with no source data.
var Missing = color.NRGBA{0, 0, 0, 0xff}

// OutputSize converts a display selection into the pixel size of the
// extracted buffers. Extents are truncated like a canvas size.
func OutputSize(sel viewport.Rect) (int, int) {
	sel = sel.Normalize()
	return int(math.Floor(sel.W)), int(math.Floor(sel.H))
}

// Extract samples rect (in native pixels of src) into an outW x outH buffer.
// interp selects the resampler; nil means bilinear.
func Extract(src image.Image, rect viewport.Rect, outW, outH int, interp draw.Interpolator) (*Region, error) {
	if outW < 1 || outH < 1 {
		return nil, errs.New(errs.EmptyRegion, "Extract", "output size %dx%d", outW, outH)
	}
	rect = rect.Normalize()
	if rect.Empty() {
		return nil, errs.New(errs.EmptyRegion, "Extract", "source rect %v has zero area", rect)
	}
	if interp == nil {
		interp = draw.ApproxBiLinear
	}

	bounds := src.Bounds()
	size := viewport.Size{W: bounds.Dx(), H: bounds.Dy()}

	coverage := coverageOf(rect, size, outW, outH)
	if coverage == 0 {
		return nil, errs.New(errs.OutOfBounds, "Extract", "rect %v lies outside the %dx%d image", rect, size.W, size.H)
	}

	// Sample from an opaque copy of just the overlapping area (plus a one
	// pixel border for the filter), so alpha never reaches the output.
	covered := rect.Pixels().Add(bounds.Min).Intersect(bounds)
	sampled := covered.Inset(-1).Intersect(bounds)
	opaque := opaqueCopy(src, sampled)

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(Missing), image.Point{}, draw.Src)

	kx := float64(outW) / rect.W
	ky := float64(outH) / rect.H
	s2d := f64.Aff3{
		kx, 0, -(rect.X + float64(bounds.Min.X)) * kx,
		0, ky, -(rect.Y + float64(bounds.Min.Y)) * ky,
	}
	interp.Transform(dst, s2d, opaque, sampled, draw.Src, nil)

	// Every pixel is opaque, so the premultiplied layout is also valid NRGBA.
	out := &image.NRGBA{Pix: dst.Pix, Stride: dst.Stride, Rect: dst.Rect}

	return &Region{
		Image:    out,
		Source:   rect,
		Covered:  covered.Sub(bounds.Min),
		Coverage: coverage,
		Clipped:  coverage < 1,
	}, nil
}

// coverageOf counts output pixels whose sample centre lands inside the image.
func coverageOf(rect viewport.Rect, size viewport.Size, outW, outH int) float64 {
	cols := 0
	for x := 0; x < outW; x++ {
		sx := rect.X + (float64(x)+0.5)*rect.W/float64(outW)
		if sx >= 0 && sx < float64(size.W) {
			cols++
		}
	}
	rows := 0
	for y := 0; y < outH; y++ {
		sy := rect.Y + (float64(y)+0.5)*rect.H/float64(outH)
		if sy >= 0 && sy < float64(size.H) {
			rows++
		}
	}
	return float64(cols*rows) / float64(outW*outH)
}

// opaqueCopy copies r out of src as RGBA with alpha forced to 0xff. Colour
// values are the non-premultiplied ones; alpha is discarded, not composited.
func opaqueCopy(src image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(r)

	if n, ok := src.(*image.NRGBA); ok {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			si := n.PixOffset(r.Min.X, y)
			di := dst.PixOffset(r.Min.X, y)
			for x := r.Min.X; x < r.Max.X; x++ {
				dst.Pix[di+0] = n.Pix[si+0]
				dst.Pix[di+1] = n.Pix[si+1]
				dst.Pix[di+2] = n.Pix[si+2]
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
		return dst
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{c.R, c.G, c.B, 0xff})
		}
	}
	return dst
}
