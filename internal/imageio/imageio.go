// Package imageio loads and encodes the images compared by tampercheck.
// Everything comes back as *image.NRGBA with its origin at (0,0).
package imageio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	// Register decoders used by uploaded photos and screenshots
	_ "image/gif"
	_ "image/jpeg"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load opens and decodes an image file, applying EXIF orientation.
func Load(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Decode reads any registered image format, applying EXIF orientation.
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ToNRGBA(img), nil
}

// ErrTooLarge is returned when an image declares more pixels than allowed.
var ErrTooLarge = errors.New("image exceeds pixel limit")

// DecodeMax is Decode with a cap on width*height. The cap is checked against
// the header before any pixel buffer is allocated. A non-positive maxPixels
// disables it.
func DecodeMax(r io.Reader, maxPixels int64) (*image.NRGBA, error) {
	if maxPixels > 0 {
		// Replay the header bytes DecodeConfig consumed
		var head bytes.Buffer
		cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		if n := int64(cfg.Width) * int64(cfg.Height); n > maxPixels {
			return nil, fmt.Errorf("%w: %dx%d is more than %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
		}
		r = io.MultiReader(&head, r)
	}
	return Decode(r)
}

// ToNRGBA returns img as a zero-origin *image.NRGBA, copying only when
// needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// DecodeDataURL decodes a "data:image/...;base64," URL or bare base64 text,
// rejecting images above maxPixels like DecodeMax.
func DecodeDataURL(s string, maxPixels int64) (*image.NRGBA, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data URL: missing comma")
		}
		if !strings.Contains(s[:i], ";base64") {
			return nil, fmt.Errorf("malformed data URL: only base64 payloads are supported")
		}
		payload = s[i+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return DecodeMax(bytes.NewReader(raw), maxPixels)
}

// EncodeDataURL encodes img as a PNG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return f.Close()
}

// Opaque returns a zero-origin copy of img with alpha forced to 0xff. Colour
// values are the non-premultiplied ones; alpha is discarded, not composited.
func Opaque(img image.Image) *image.NRGBA {
	if img == nil {
		return nil
	}
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
