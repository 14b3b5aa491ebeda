// Package viewport maps rectangles between the shared display surface and
// the native pixel space of each source image.
//
// Both images are stretched to exactly fill the surface, ignoring their
// native aspect ratio. The test image is then scaled about the surface
// centre and translated:
//
//	native --stretch--> surface --scale about centre--> --translate--> display
//
// The control image only gets the stretch. MapToTestSpace is the exact
// inverse of that chain, including the aspect distortion.
package viewport

// MapToControlSpace converts a display rectangle into control image pixels.
// It is a pure scale with no translation; a degenerate rect maps to a
// degenerate result.
func MapToControlSpace(rect Rect, control Size, surface Surface) Rect {
	sx := float64(control.W) / surface.W
	sy := float64(control.H) / surface.H

	return Rect{
		X: rect.X * sx,
		Y: rect.Y * sy,
		W: rect.W * sx,
		H: rect.H * sy,
	}
}

// MapToTestSpace converts a display rectangle into test image pixels by
// undoing the translation, then the centre-relative scale, then the stretch.
//
// Returns an InvalidTransform error instead of dividing by a zero scale.
// The result may extend outside the image; clipping is left to extraction.
func MapToTestSpace(rect Rect, test Size, t Transform, surface Surface) (Rect, error) {
	if err := t.Validate(); err != nil {
		return Rect{}, err
	}
	if err := surface.Validate(); err != nil {
		return Rect{}, err
	}

	cx, cy := centerOffset(t.Scale, surface)

	rel := Rect{
		X: (rect.X - t.OffsetX - cx) / t.Scale,
		Y: (rect.Y - t.OffsetY - cy) / t.Scale,
		W: rect.W / t.Scale,
		H: rect.H / t.Scale,
	}

	return MapToControlSpace(rel, test, surface), nil
}

// Forward maps a rectangle in native test pixels to where it is drawn on the
// display surface. It is the render transform MapToTestSpace inverts.
func Forward(src Rect, test Size, t Transform, surface Surface) Rect {
	sx := surface.W / float64(test.W)
	sy := surface.H / float64(test.H)
	cx, cy := centerOffset(t.Scale, surface)

	return Rect{
		X: src.X*sx*t.Scale + cx + t.OffsetX,
		Y: src.Y*sy*t.Scale + cy + t.OffsetY,
		W: src.W * sx * t.Scale,
		H: src.H * sy * t.Scale,
	}
}

// Placement returns where the whole test image lands on the surface.
func Placement(t Transform, surface Surface) Rect {
	cx, cy := centerOffset(t.Scale, surface)
	return Rect{
		X: cx + t.OffsetX,
		Y: cy + t.OffsetY,
		W: surface.W * t.Scale,
		H: surface.H * t.Scale,
	}
}

// MapBoth resolves a selection into source rectangles for both images. The
// selection is clipped to the surface first.
func MapBoth(sel Rect, control, test Size, t Transform, surface Surface) (controlRect, testRect Rect, err error) {
	sel, err = sel.ClipTo(surface)
	if err != nil {
		return Rect{}, Rect{}, err
	}

	controlRect = MapToControlSpace(sel, control, surface)
	testRect, err = MapToTestSpace(sel, test, t, surface)
	if err != nil {
		return Rect{}, Rect{}, err
	}
	return controlRect, testRect, nil
}

// centerOffset is the shift that keeps a scaled layer centred on the surface.
func centerOffset(scale float64, surface Surface) (float64, float64) {
	return surface.W * (1 - scale) / 2, surface.H * (1 - scale) / 2
}
