// Package filehandler turns uploaded photo files into canonical JPEGs and
// structured metadata.
//
// The package has three pieces, used in this order by the ingest pipeline:
//   - ContentHasher (hash.go): SHA-256 content identity
//   - Normalizer (normalize.go, heic.go): HEIC and PNG to JPEG, keeping EXIF
//   - Extractor (image.go): dimensions, capture time, GPS and camera tags
//
// Only JPEG, PNG and HEIC/HEIF are accepted. Format is decided by file
// extension, not by sniffing content.
package filehandler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fpang/photo-ingest/internal/exifutil"
)

// SupportedImageExtensions maps accepted extensions to their MIME type.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".heif": "image/heif",
}

// Format is the container family of a file, derived from its extension.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatHEIC
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatHEIC:
		return "heic"
	default:
		return "unknown"
	}
}

var (
	// ErrUnsupportedFormat is returned for any extension outside
	// SupportedImageExtensions. It matches exifutil.ErrFormat under errors.Is.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", exifutil.ErrFormat)

	// ErrNotDecodable is returned when image dimensions cannot be read.
	ErrNotDecodable = errors.New("not a decodable image")

	// ErrConversion is returned when the external HEIC converter fails.
	ErrConversion = errors.New("HEIC conversion failed")
)

// FormatOf returns the format for a path or bare extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".heic", ".heif":
		return FormatHEIC
	default:
		return FormatUnknown
	}
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// IsImage returns true if the file extension is an accepted image type.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// Ext returns the lowercased extension of filename without the dot, as used
// in object keys ("jpg", "heic").
func Ext(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// SiblingJPEG returns path with its extension replaced by ".jpg".
func SiblingJPEG(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
}
