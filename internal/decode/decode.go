// Package decode normalizes heterogeneous input image formats into the
// uniform NRGBA pixel buffer the comparison engine operates on. The engine
// itself never touches format-specific codecs.
package decode

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/xerrors"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptImage      = errors.New("corrupt image data")
)

// jpegQuality is used when a diff mask is written back out as JPEG.
const jpegQuality = 90

// File decodes the image at path. formatHint may name the expected format
// ("png", "jpeg", "tiff", "bmp") or be empty to sniff it from the content.
// The detected format is returned so output can mirror the input format.
func File(path string, formatHint string) (*image.NRGBA, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", xerrors.Errorf("failed to read %s: %w", path, err)
	}
	img, format, err := Bytes(data, formatHint)
	if err != nil {
		return nil, "", xerrors.Errorf("%s: %w", path, err)
	}
	return img, format, nil
}

// Bytes decodes an in-memory image the same way File does.
func Bytes(data []byte, formatHint string) (*image.NRGBA, string, error) {
	reader := bytes.NewReader(data)

	var img image.Image
	var format string
	var err error
	switch formatHint {
	case "":
		img, format, err = image.Decode(reader)
		if err != nil {
			if errors.Is(err, image.ErrFormat) {
				return nil, "", xerrors.Errorf("%v: %w", err, ErrUnsupportedFormat)
			}
			return nil, "", xerrors.Errorf("%v: %w", err, ErrCorruptImage)
		}
	case "png":
		img, err = png.Decode(reader)
		format = "png"
	case "jpeg", "jpg":
		img, err = jpeg.Decode(reader)
		format = "jpeg"
	case "tiff":
		img, err = tiff.Decode(reader)
		format = "tiff"
	case "bmp":
		img, err = bmp.Decode(reader)
		format = "bmp"
	default:
		return nil, "", xerrors.Errorf("format %q: %w", formatHint, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, "", xerrors.Errorf("%v: %w", err, ErrCorruptImage)
	}

	return toNRGBA(img), format, nil
}

// Encode serializes img in the given format. An empty format falls back to
// PNG.
func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "", "png":
		if err := png.Encode(w, img); err != nil {
			return xerrors.Errorf("failed to encode png: %w", err)
		}
	case "jpeg", "jpg":
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return xerrors.Errorf("failed to encode jpeg: %w", err)
		}
	case "tiff":
		if err := tiff.Encode(w, img, nil); err != nil {
			return xerrors.Errorf("failed to encode tiff: %w", err)
		}
	case "bmp":
		if err := bmp.Encode(w, img); err != nil {
			return xerrors.Errorf("failed to encode bmp: %w", err)
		}
	default:
		return xerrors.Errorf("format %q: %w", format, ErrUnsupportedFormat)
	}
	return nil
}

// toNRGBA copies img into a zero-origin NRGBA buffer so every downstream
// stage sees the same dense row-major RGBA8 layout.
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba
	}

	bounds := img.Bounds()
	normalized := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(normalized, normalized.Bounds(), img, bounds.Min, draw.Src)
	return normalized
}
