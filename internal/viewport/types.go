package viewport

import (
	"fmt"
	"image"
	"math"

	"github.com/cwbudde/tampercheck/internal/errs"
)

// Role tags a source image as the trusted reference or the image under test.
type Role int

const (
	Control Role = iota
	Test
)

func (r Role) String() string {
	switch r {
	case Control:
		return "control"
	case Test:
		return "test"
	default:
		return "unknown"
	}
}

// ParseRole accepts "control" or "test".
func ParseRole(s string) (Role, error) {
	switch s {
	case "control":
		return Control, nil
	case "test":
		return Test, nil
	default:
		return 0, fmt.Errorf("unknown image role: %q", s)
	}
}

// Surface is the shared display coordinate space both images are stretched
// to fill before any further transform.
type Surface struct {
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// DefaultSurface matches the 800x600 workspace canvas.
var DefaultSurface = Surface{W: 800, H: 600}

// Validate rejects surfaces that cannot be divided by.
func (s Surface) Validate() error {
	if !(s.W > 0) || !(s.H > 0) || math.IsInf(s.W, 0) || math.IsInf(s.H, 0) {
		return errs.New(errs.InvalidTransform, "Surface.Validate", "surface %gx%g must have positive finite extents", s.W, s.H)
	}
	return nil
}

// Size is the native pixel size of a source image.
type Size struct {
	W int `json:"width"`
	H int `json:"height"`
}

// SizeOf returns the pixel dimensions of img.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{W: b.Dx(), H: b.Dy()}
}

// Rect is an axis-aligned rectangle. Depending on context it is in display
// surface units or in native source pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// RectFromPoints builds a normalized rectangle from a drag gesture's start
// and end points, whichever direction it was dragged.
func RectFromPoints(x0, y0, x1, y1 float64) Rect {
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}.Normalize()
}

// Normalize moves the origin to the top-left corner so both extents are
// non-negative.
func (r Rect) Normalize() Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// Empty reports whether r has zero area once normalized.
func (r Rect) Empty() bool {
	n := r.Normalize()
	return !(n.W > 0) || !(n.H > 0)
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Pixels returns the smallest integer rectangle containing r.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.Right())), int(math.Ceil(r.Bottom())),
	)
}

// ClipTo normalizes r and intersects it with the surface, so the selection
// never asks for more pixels than the canvas shows. A zero-area or non-finite
// rect is an EmptyRegion error, one lying entirely off the surface is
// OutOfBounds.
func (r Rect) ClipTo(s Surface) (Rect, error) {
	if err := s.Validate(); err != nil {
		return Rect{}, err
	}
	for _, v := range [...]float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Rect{}, errs.New(errs.EmptyRegion, "Rect.ClipTo", "selection %v is not finite", r)
		}
	}
	r = r.Normalize()
	if r.Empty() {
		return Rect{}, errs.New(errs.EmptyRegion, "Rect.ClipTo", "selection %v has zero area", r)
	}

	x0, y0 := math.Max(r.X, 0), math.Max(r.Y, 0)
	x1, y1 := math.Min(r.Right(), s.W), math.Min(r.Bottom(), s.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}, errs.New(errs.OutOfBounds, "Rect.ClipTo", "selection %v lies outside the %gx%g surface", r, s.W, s.H)
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, nil
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f,%.2f %.2fx%.2f)", r.X, r.Y, r.W, r.H)
}

// Transform is the scale and translation applied to the test image on top of
// its stretch to the surface. Offsets are in surface units.
type Transform struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Identity is the transform the control image is always rendered with.
var Identity = Transform{Scale: 1}

// Validate checks that the transform can be inverted.
func (t Transform) Validate() error {
	if !(t.Scale > 0) || math.IsInf(t.Scale, 0) {
		return errs.New(errs.InvalidTransform, "Transform.Validate", "scale %g must be positive and finite", t.Scale)
	}
	if math.IsNaN(t.OffsetX) || math.IsNaN(t.OffsetY) || math.IsInf(t.OffsetX, 0) || math.IsInf(t.OffsetY, 0) {
		return errs.New(errs.InvalidTransform, "Transform.Validate", "offset (%g,%g) must be finite", t.OffsetX, t.OffsetY)
	}
	return nil
}

// Translate accumulates a drag delta.
func (t Transform) Translate(dx, dy float64) Transform {
	t.OffsetX += dx
	t.OffsetY += dy
	return t
}

// ScaleRange bounds the scale an operator may pick.
type ScaleRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultScaleRange is the workspace slider range.
var DefaultScaleRange = ScaleRange{Min: 0.1, Max: 2.0}

// Clamp pins s into the range.
func (sr ScaleRange) Clamp(s float64) float64 {
	return math.Max(sr.Min, math.Min(sr.Max, s))
}

// Check returns an InvalidTransform error when t's scale is outside the range.
func (sr ScaleRange) Check(t Transform) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Scale < sr.Min || t.Scale > sr.Max {
		return errs.New(errs.InvalidTransform, "ScaleRange.Check", "scale %g outside [%g, %g]", t.Scale, sr.Min, sr.Max)
	}
	return nil
}
