package filehandler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/fpang/photo-ingest/internal/exifutil"
)

// DefaultJPEGQuality is used when NormalizerOptions.JPEGQuality is zero.
const DefaultJPEGQuality = 90

// NormalizerOptions configures a Normalizer.
type NormalizerOptions struct {
	// Converter handles HEIC/HEIF input. Required only if HEIC files are normalized.
	Converter Converter

	// JPEGQuality is the encoder quality for PNG re-encoding (1-100).
	JPEGQuality int
}

// Normalizer converts supported images into JPEG files.
type Normalizer struct {
	converter Converter
	quality   int
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts NormalizerOptions) *Normalizer {
	q := opts.JPEGQuality
	if q <= 0 || q > 100 {
		q = DefaultJPEGQuality
	}
	return &Normalizer{converter: opts.Converter, quality: q}
}

// Normalize returns the path of a JPEG rendition of the file at path.
//
// Behavior by extension:
//   - .jpg/.jpeg: path is returned unchanged and nothing is written
//   - .heic/.heif: the converter writes a sibling .jpg; the source is then removed
//   - .png: pixels are flattened onto white if needed, re-encoded, and the
//     eXIf chunk (if any) is carried into an APP1 segment of the sibling .jpg
//
// Any other extension fails with ErrUnsupportedFormat.
func (n *Normalizer) Normalize(ctx context.Context, path string) (string, error) {
	switch FormatOf(path) {
	case FormatJPEG:
		return path, nil
	case FormatHEIC:
		return n.normalizeHEIC(ctx, path)
	case FormatPNG:
		return n.normalizePNG(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func (n *Normalizer) normalizeHEIC(ctx context.Context, path string) (string, error) {
	if n.converter == nil {
		return "", fmt.Errorf("%w: no converter configured", ErrConversion)
	}

	dst := SiblingJPEG(path)
	if err := n.converter.Convert(ctx, path, dst); err != nil {
		return "", err
	}

	if err := os.Remove(path); err != nil {
		// Another worker may have handled the same upload already.
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove HEIC source after conversion")
	}

	log.Debug().Str("src", path).Str("dst", dst).Msg("HEIC converted to JPEG")
	return dst, nil
}

func (n *Normalizer) normalizePNG(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read PNG: %w", err)
	}

	blob, err := exifutil.ExtractFromPNG(data)
	if err != nil {
		return "", err
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDecodable, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Flatten(img), &jpeg.Options{Quality: n.quality}); err != nil {
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}

	out := buf.Bytes()
	if blob != nil {
		out, err = exifutil.InjectIntoJPEG(out, blob)
		if err != nil {
			return "", err
		}
	}

	dst := SiblingJPEG(path)
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write JPEG: %w", err)
	}

	log.Debug().
		Str("src", path).
		Str("dst", dst).
		Bool("has_exif", blob != nil).
		Int("jpeg_bytes", len(out)).
		Msg("PNG converted to JPEG")

	return dst, nil
}

type opaquer interface {
	Opaque() bool
}

// Flatten composites img onto an opaque white background when it carries
// any transparency. Opaque images are returned unchanged.
func Flatten(img image.Image) image.Image {
	if o, ok := img.(opaquer); ok && o.Opaque() {
		return img
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}
