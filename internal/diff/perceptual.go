package diff

import (
	"image"

	"github.com/cwbudde/tampercheck/internal/errs"
	"github.com/lucasb-eyer/go-colorful"
)

// MeanDeltaE returns the mean CIEDE2000 distance between corresponding
// pixels. It is reported alongside the verdict but never changes it.
func MeanDeltaE(a, b *image.NRGBA) (float64, error) {
	if a == nil || a.Rect.Empty() || b == nil || b.Rect.Empty() {
		return 0, errs.New(errs.EmptyRegion, "MeanDeltaE", "empty region")
	}
	width, height := a.Rect.Dx(), a.Rect.Dy()
	if width != b.Rect.Dx() || height != b.Rect.Dy() {
		return 0, errs.New(errs.DimensionMismatch, "MeanDeltaE",
			"%dx%d vs %dx%d", width, height, b.Rect.Dx(), b.Rect.Dy())
	}

	var total float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := a.PixOffset(a.Rect.Min.X+x, a.Rect.Min.Y+y)
			j := b.PixOffset(b.Rect.Min.X+x, b.Rect.Min.Y+y)

			c1 := colorful.Color{
				R: float64(a.Pix[i+0]) / 255.0,
				G: float64(a.Pix[i+1]) / 255.0,
				B: float64(a.Pix[i+2]) / 255.0,
			}
			c2 := colorful.Color{
				R: float64(b.Pix[j+0]) / 255.0,
				G: float64(b.Pix[j+1]) / 255.0,
				B: float64(b.Pix[j+2]) / 255.0,
			}
			total += c1.DistanceCIEDE2000(c2)
		}
	}

	return total / float64(width*height), nil
}
