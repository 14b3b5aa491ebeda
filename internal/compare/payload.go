package compare

import (
	"fmt"

	"github.com/cwbudde/tampercheck/internal/diff"
	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/viewport"
)

// Payload is the record handed to the presentation layer. The first four
// fields are what the workspace page renders.
type Payload struct {
	Result      string  `json:"result"`
	AvgDiff     float64 `json:"avg_diff"`
	Description string  `json:"description"`
	DiffImage   string  `json:"diff_image"` // PNG data URL of the heatmap

	ChannelMeans    [3]float64     `json:"channel_means"`
	Partial         bool           `json:"partial,omitempty"`
	ControlCoverage float64        `json:"control_coverage,omitempty"`
	TestCoverage    float64        `json:"test_coverage,omitempty"`
	DeltaE          float64        `json:"delta_e,omitempty"`
	ControlRect     *viewport.Rect `json:"control_rect,omitempty"`
	TestRect        *viewport.Rect `json:"test_rect,omitempty"`
}

// NewPayload encodes a classifier result.
func NewPayload(res *diff.Result) (*Payload, error) {
	img, err := imageio.EncodeDataURL(res.Heatmap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode heatmap: %w", err)
	}

	return &Payload{
		Result:       res.Verdict.Label(),
		AvgDiff:      res.AvgDifference,
		Description:  res.Description,
		DiffImage:    img,
		ChannelMeans: res.ChannelMeans,
	}, nil
}

// Payload encodes the outcome, including the mapping and coverage details.
func (o *Outcome) Payload() (*Payload, error) {
	p, err := NewPayload(o.Result)
	if err != nil {
		return nil, err
	}

	cr, tr := o.ControlRect, o.TestRect
	p.ControlRect = &cr
	p.TestRect = &tr
	p.Partial = o.Partial
	p.ControlCoverage = o.Control.Coverage
	p.TestCoverage = o.Test.Coverage
	p.DeltaE = o.DeltaE
	return p, nil
}

// Summary is a one-line human readable verdict, avg_diff to two decimals.
func (p *Payload) Summary() string {
	s := fmt.Sprintf("%s (average difference %.2f)", p.Result, p.AvgDiff)
	if p.Partial {
		s += fmt.Sprintf(" [partial: control %.0f%%, test %.0f%% covered]", p.ControlCoverage*100, p.TestCoverage*100)
	}
	return s
}
