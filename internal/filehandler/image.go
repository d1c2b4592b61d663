package filehandler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG for DecodeConfig
	_ "image/png"  // register PNG for DecodeConfig
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-ingest/internal/exifutil"
)

// Field names a best-effort metadata field.
type Field string

const (
	FieldCaptureTime Field = "captureTime"
	FieldGPS         Field = "gps"
	FieldCamera      Field = "camera"
)

// Coordinates is a decoded GPS position. Altitude is optional.
type Coordinates struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
}

// Extraction is the metadata derived from one image file.
//
// ContentHash, ByteSize and dimensions are always set. CaptureTime, GPS and
// camera fields are best effort: when one cannot be read it is left empty,
// and if that was due to a failure (not mere absence of EXIF) the reason is
// recorded in Degraded under the field's name.
type Extraction struct {
	Filename    string
	ContentHash string
	ByteSize    int64
	Width       int
	Height      int

	CaptureTime string // exifutil.TimeLayout, empty when unknown
	GPS         *Coordinates
	CameraMake  string
	CameraModel string

	Degraded map[Field]error
}

// HasGPS reports whether GPS was extracted.
func (e *Extraction) HasGPS() bool {
	return e.GPS != nil
}

func (e *Extraction) degrade(err error, fields ...Field) {
	if e.Degraded == nil {
		e.Degraded = make(map[Field]error)
	}
	for _, f := range fields {
		e.Degraded[f] = err
	}
}

// Extractor reads metadata from JPEG and PNG files.
type Extractor struct {
	decoder exifutil.Decoder
}

// NewExtractor creates an Extractor that decodes EXIF with decoder.
// A nil decoder falls back to exifutil.GoexifDecoder.
func NewExtractor(decoder exifutil.Decoder) *Extractor {
	if decoder == nil {
		decoder = exifutil.GoexifDecoder{}
	}
	return &Extractor{decoder: decoder}
}

// Extract reads the file at path. It fails only if the file cannot be read
// or its dimensions cannot be decoded.
func (x *Extractor) Extract(path string) (*Extraction, error) {
	log.Debug().Str("path", path).Msg("Extracting image metadata")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDecodable, filepath.Base(path), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %s has zero dimensions", ErrNotDecodable, filepath.Base(path))
	}

	ex := &Extraction{
		Filename:    filepath.Base(path),
		ContentHash: HashBytes(data),
		ByteSize:    int64(len(data)),
		Width:       cfg.Width,
		Height:      cfg.Height,
	}

	blob, err := exifBlob(path, data)
	switch {
	case err != nil:
		ex.degrade(err, FieldCaptureTime, FieldGPS, FieldCamera)
	case blob != nil:
		x.applyTags(ex, blob)
	}

	log.Debug().
		Str("path", path).
		Str("hash", ex.ContentHash).
		Int("width", ex.Width).
		Int("height", ex.Height).
		Bool("has_gps", ex.HasGPS()).
		Bool("has_date", ex.CaptureTime != "").
		Int("degraded", len(ex.Degraded)).
		Msg("Image metadata extraction complete")

	return ex, nil
}

func (x *Extractor) applyTags(ex *Extraction, blob []byte) {
	tags, err := x.decoder.Decode(blob)
	if err != nil {
		ex.degrade(err, FieldCaptureTime, FieldGPS, FieldCamera)
		return
	}

	ex.CaptureTime = tags.CaptureTime
	ex.CameraMake = tags.CameraMake
	ex.CameraModel = tags.CameraModel

	switch {
	case tags.HasGPS():
		ex.GPS = &Coordinates{
			Latitude:  *tags.Latitude,
			Longitude: *tags.Longitude,
			Altitude:  tags.Altitude,
		}
	case tags.Latitude != nil || tags.Longitude != nil:
		ex.degrade(errors.New("incomplete GPS coordinates"), FieldGPS)
	}
}

// exifBlob locates the raw EXIF payload for the file's container.
func exifBlob(path string, data []byte) ([]byte, error) {
	switch FormatOf(path) {
	case FormatPNG:
		return exifutil.ExtractFromPNG(data)
	case FormatJPEG:
		return exifutil.ExtractFromJPEG(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}
