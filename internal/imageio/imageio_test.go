package imageio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
)

func checkerboard(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 255, 255})
			}
		}
	}
	return img
}

func TestDataURLRoundTrip(t *testing.T) {
	src := checkerboard(7, 5)

	url, err := EncodeDataURL(src)
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("Unexpected prefix: %.40s", url)
	}

	got, err := DecodeDataURL(url, 0)
	if err != nil {
		t.Fatalf("DecodeDataURL failed: %v", err)
	}
	if got.Bounds() != src.Bounds() {
		t.Fatalf("Bounds mismatch: %v vs %v", got.Bounds(), src.Bounds())
	}
	if got.NRGBAAt(1, 0) != src.NRGBAAt(1, 0) {
		t.Errorf("Pixel mismatch: %v vs %v", got.NRGBAAt(1, 0), src.NRGBAAt(1, 0))
	}
}

func TestDecodeDataURL_BareBase64(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, checkerboard(2, 2)); err != nil {
		t.Fatal(err)
	}

	img, err := DecodeDataURL(base64.StdEncoding.EncodeToString(buf.Bytes()), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 2 {
		t.Errorf("Expected width 2, got %d", img.Bounds().Dx())
	}
}

func TestDecodeDataURL_Malformed(t *testing.T) {
	cases := []string{
		"data:image/png;base64",
		"data:image/png,notbase64",
		"data:image/png;base64,!!!",
		base64.StdEncoding.EncodeToString([]byte("not an image")),
	}
	for _, c := range cases {
		if _, err := DecodeDataURL(c, 0); err == nil {
			t.Errorf("Expected error for %q", c)
		}
	}
}

func TestToNRGBA_NormalisesOrigin(t *testing.T) {
	parent := checkerboard(10, 10)
	sub := parent.SubImage(image.Rect(3, 4, 8, 9))

	got := ToNRGBA(sub)
	if got.Rect.Min != (image.Point{}) {
		t.Errorf("Expected zero origin, got %v", got.Rect.Min)
	}
	if got.NRGBAAt(0, 0) != parent.NRGBAAt(3, 4) {
		t.Errorf("Pixel mismatch after clone")
	}

	if same := ToNRGBA(parent); same != parent {
		t.Error("Zero-origin NRGBA should be returned as is")
	}
}

func TestLoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.png")
	src := checkerboard(6, 4)

	if err := SavePNG(path, src); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Bounds() != src.Bounds() {
		t.Errorf("Bounds mismatch: %v vs %v", got.Bounds(), src.Bounds())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestOpaque(t *testing.T) {
	src := image.NewNRGBA(image.Rect(3, 3, 5, 5))
	src.SetNRGBA(3, 3, color.NRGBA{10, 20, 30, 0})
	src.SetNRGBA(4, 4, color.NRGBA{200, 100, 50, 128})

	out := Opaque(src)
	if out.Rect != image.Rect(0, 0, 2, 2) {
		t.Fatalf("Expected zero-origin 2x2, got %v", out.Rect)
	}
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{10, 20, 30, 255}) {
		t.Errorf("Transparent pixel should keep its colour, got %v", got)
	}
	if got := out.NRGBAAt(1, 1); got != (color.NRGBA{200, 100, 50, 255}) {
		t.Errorf("Half transparent pixel should keep its colour, got %v", got)
	}
	if src.NRGBAAt(4, 4).A != 128 {
		t.Error("Opaque must not modify its input")
	}
	if Opaque(nil) != nil {
		t.Error("Opaque(nil) should be nil")
	}
}

func TestDecodeMax(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, checkerboard(40, 30)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		maxPixels int64
		wantErr   bool
	}{
		{"no cap", 0, false},
		{"exact fit", 40 * 30, false},
		{"one pixel short", 40*30 - 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeMax(bytes.NewReader(buf.Bytes()), tt.maxPixels)
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Errorf("Expected ErrTooLarge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			// The header bytes consumed by the size check must be replayed
			if img.Bounds() != image.Rect(0, 0, 40, 30) || img.NRGBAAt(1, 0) != (color.NRGBA{0, 0, 255, 255}) {
				t.Errorf("Unexpected decode result %v", img.Bounds())
			}
		})
	}
}

func TestDecodeDataURL_PixelCap(t *testing.T) {
	url, err := EncodeDataURL(checkerboard(100, 100))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeDataURL(url, 100*99); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}
