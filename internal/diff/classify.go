// Package diff compares two equally sized RGB regions and classifies how
// likely the test region has been tampered with.
package diff

import (
	"image"

	"github.com/cwbudde/tampercheck/internal/errs"
)

// Verdict is the three-way tampering classification.
type Verdict int

const (
	NoTampering Verdict = iota
	PossibleTampering
	TamperingDetected
)

// Label returns the human-readable verdict shown to the operator.
func (v Verdict) Label() string {
	switch v {
	case TamperingDetected:
		return "Tampering Detected"
	case PossibleTampering:
		return "Possible Tampering Detected"
	default:
		return "No Tampering Detected"
	}
}

// Description returns the fixed explanation bound to the verdict.
func (v Verdict) Description() string {
	switch v {
	case TamperingDetected:
		return "Significant differences found in the anti-tampering pattern. Verify carefully."
	case PossibleTampering:
		return "Some differences detected in the anti-tampering pattern. Further verification recommended."
	default:
		return "The anti-tampering patterns match within acceptable parameters."
	}
}

func (v Verdict) String() string { return v.Label() }

// MarshalText encodes the verdict as its label.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.Label()), nil
}

// Verdict thresholds on the mean absolute difference.
const (
	HighThreshold   = 50.0
	MediumThreshold = 30.0
)

// thresholds is ordered by priority; the first entry the score exceeds wins.
var thresholds = []struct {
	above   float64
	verdict Verdict
}{
	{HighThreshold, TamperingDetected},
	{MediumThreshold, PossibleTampering},
}

// Judge maps a mean absolute difference to a verdict. Boundaries are
// exclusive on the high side: exactly 50 is PossibleTampering.
func Judge(avg float64) Verdict {
	for _, th := range thresholds {
		if avg > th.above {
			return th.verdict
		}
	}
	return NoTampering
}

// Result is the outcome of one comparison. It is built fresh per call and
// not modified afterwards.
type Result struct {
	AvgDifference float64
	ChannelMeans  [3]float64 // mean |diff| for R, G, B
	Verdict       Verdict
	Description   string
	Heatmap       *image.NRGBA // contrast-boosted difference, same size as the inputs
}

// Classify computes the mean absolute RGB difference between a and b, the
// heatmap and the verdict. Alpha is ignored.
//
// Both regions must be non-empty and have identical dimensions; nothing is
// cropped, padded or resized.
func Classify(a, b *image.NRGBA) (*Result, error) {
	if a == nil || a.Rect.Empty() {
		return nil, errs.New(errs.EmptyRegion, "Classify", "first region is empty")
	}
	if b == nil || b.Rect.Empty() {
		return nil, errs.New(errs.EmptyRegion, "Classify", "second region is empty")
	}

	width, height := a.Rect.Dx(), a.Rect.Dy()
	if width != b.Rect.Dx() || height != b.Rect.Dy() {
		return nil, errs.New(errs.DimensionMismatch, "Classify",
			"%dx%d vs %dx%d", width, height, b.Rect.Dx(), b.Rect.Dy())
	}

	heat := image.NewNRGBA(image.Rect(0, 0, width, height))
	sums := absDiff(
		a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y):],
		b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y):],
		heat.Pix,
		a.Stride, b.Stride, heat.Stride,
		width, height,
	)

	n := float64(width * height)
	res := &Result{Heatmap: heat}
	var total uint64
	for c := 0; c < 3; c++ {
		res.ChannelMeans[c] = float64(sums[c]) / n
		total += sums[c]
	}
	res.AvgDifference = float64(total) / (n * 3)
	res.Verdict = Judge(res.AvgDifference)
	res.Description = res.Verdict.Description()

	return res, nil
}

// MeanAbsDiff returns only the score, without allocating a heatmap. Used by
// alignment search where the heatmap is never shown.
func MeanAbsDiff(a, b *image.NRGBA) (float64, error) {
	if a == nil || a.Rect.Empty() || b == nil || b.Rect.Empty() {
		return 0, errs.New(errs.EmptyRegion, "MeanAbsDiff", "empty region")
	}
	width, height := a.Rect.Dx(), a.Rect.Dy()
	if width != b.Rect.Dx() || height != b.Rect.Dy() {
		return 0, errs.New(errs.DimensionMismatch, "MeanAbsDiff",
			"%dx%d vs %dx%d", width, height, b.Rect.Dx(), b.Rect.Dy())
	}

	sums := absDiff(
		a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y):],
		b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y):],
		nil,
		a.Stride, b.Stride, 0,
		width, height,
	)
	return float64(sums[0]+sums[1]+sums[2]) / float64(width*height*3), nil
}
