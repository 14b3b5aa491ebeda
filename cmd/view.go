package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/tampercheck/internal/compare"
	"github.com/cwbudde/tampercheck/internal/viewport"
	"github.com/spf13/pflag"
)

// viewFlags are the workspace view shared by compare and map.
type viewFlags struct {
	surface   string
	scale     float64
	offsetX   float64
	offsetY   float64
	selection string
}

func (v *viewFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&v.surface, "surface", "", "Display surface WxH (default from config, 800x600)")
	fs.Float64Var(&v.scale, "scale", 1, "Test image scale")
	fs.Float64Var(&v.offsetX, "offset-x", 0, "Test image horizontal offset in surface units")
	fs.Float64Var(&v.offsetY, "offset-y", 0, "Test image vertical offset in surface units")
	fs.StringVar(&v.selection, "select", "", "Selection x,y,w,h in surface units (required)")
}

// session builds the comparison view, falling back to the configured surface.
func (v *viewFlags) session() (compare.Session, error) {
	surface := cfg.Surface()
	if v.surface != "" {
		w, h, err := parseSize(v.surface)
		if err != nil {
			return compare.Session{}, fmt.Errorf("invalid --surface: %w", err)
		}
		surface = viewport.Surface{W: float64(w), H: float64(h)}
	}

	sel, err := parseRect(v.selection)
	if err != nil {
		return compare.Session{}, fmt.Errorf("invalid --select: %w", err)
	}

	s := compare.NewSession(surface)
	s.Opacity = cfg.DefaultOpacity
	s.Transform = viewport.Transform{Scale: v.scale, OffsetX: v.offsetX, OffsetY: v.offsetY}
	s.Selection = sel
	return s, nil
}

// parseSize parses "WxH".
func parseSize(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected WxH, got %q", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad width in %q: %w", s, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad height in %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q must be positive", s)
	}
	return w, h, nil
}

// parseRect parses "x,y,w,h". Negative extents are allowed and normalised
// later, like a reverse drag.
func parseRect(s string) (viewport.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return viewport.Rect{}, fmt.Errorf("expected x,y,w,h, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return viewport.Rect{}, fmt.Errorf("bad number %q: %w", p, err)
		}
		v[i] = f
	}
	return viewport.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}
