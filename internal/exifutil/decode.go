package exifutil

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/cozy/goexif2/exif"
	"github.com/evanoberholster/imagemeta"
	"github.com/evanoberholster/imagemeta/exif2"
)

// TimeLayout is the textual layout of EXIF date tags.
const TimeLayout = "2006:01:02 15:04:05"

// Tags holds the decoded values this project reads from an EXIF blob.
// Pointer fields are nil when the tag is missing or could not be parsed.
type Tags struct {
	CaptureTime string // TimeLayout, empty when absent
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	CameraMake  string
	CameraModel string
}

// HasGPS reports whether both coordinates decoded.
func (t *Tags) HasGPS() bool {
	return t != nil && t.Latitude != nil && t.Longitude != nil
}

// Decoder turns a raw EXIF blob, with or without the "Exif\0\0" header,
// into Tags. Coordinates follow one convention regardless of container:
// north and east positive, south and west negative, taken from the
// GPS reference tags.
type Decoder interface {
	Decode(blob []byte) (*Tags, error)
}

// Decoder names accepted by NewDecoder.
const (
	DecoderGoexif    = "goexif"
	DecoderImagemeta = "imagemeta"
)

// NewDecoder returns the decoder registered under name. An empty name
// selects the goexif decoder.
func NewDecoder(name string) (Decoder, error) {
	switch strings.ToLower(name) {
	case "", DecoderGoexif:
		return GoexifDecoder{}, nil
	case DecoderImagemeta:
		return ImagemetaDecoder{}, nil
	default:
		return nil, fmt.Errorf("unknown EXIF decoder %q", name)
	}
}

// GoexifDecoder decodes blobs with cozy/goexif2. The blob is handed to the
// library as a bare TIFF stream.
type GoexifDecoder struct{}

// Decode implements Decoder.
func (GoexifDecoder) Decode(blob []byte) (*Tags, error) {
	x, err := exif.Decode(bytes.NewReader(StripHeader(blob)))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	tags := &Tags{}

	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		if tag, err := x.Get(name); err == nil {
			if s, err := tag.StringVal(); err == nil && strings.TrimSpace(s) != "" {
				tags.CaptureTime = strings.TrimSpace(s)
				break
			}
		}
	}

	if lat, lon, err := x.LatLong(); err == nil {
		tags.Latitude = &lat
		tags.Longitude = &lon

		if tag, err := x.Get(exif.GPSAltitude); err == nil {
			if r, err := tag.Rat(0); err == nil {
				alt, _ := r.Float64()
				if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
					if v, err := ref.Int(0); err == nil && v == 1 {
						alt = -alt
					}
				}
				tags.Altitude = &alt
			}
		}
	}

	tags.CameraMake = stringTag(x, exif.Make)
	tags.CameraModel = stringTag(x, exif.Model)

	return tags, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// ImagemetaDecoder decodes blobs with evanoberholster/imagemeta. The library
// only reads whole containers, so the blob is wrapped in a minimal JPEG.
//
// A coordinate pair of exactly (0, 0) is treated as missing GPS, since the
// library reports unset coordinates that way. Altitude is likewise reported
// only when non-zero; sea level reads as absent with this decoder.
type ImagemetaDecoder struct{}

// Decode implements Decoder.
func (ImagemetaDecoder) Decode(blob []byte) (*Tags, error) {
	wrapped, err := WrapInJPEG(blob)
	if err != nil {
		return nil, err
	}

	ex, err := decodeImagemetaSafe(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	tags := &Tags{
		CameraMake:  strings.TrimSpace(ex.Make),
		CameraModel: strings.TrimSpace(ex.Model),
	}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	for _, ts := range []time.Time{ex.DateTimeOriginal(), ex.CreateDate(), ex.ModifyDate()} {
		if !ts.IsZero() {
			tags.CaptureTime = ts.Format(TimeLayout)
			break
		}
	}

	lat, lon := ex.GPS.Latitude(), ex.GPS.Longitude()
	if lat != 0 || lon != 0 {
		tags.Latitude = &lat
		tags.Longitude = &lon
		// GPSAltitudeRef is already applied by the library.
		if alt := ex.GPS.Altitude(); alt != 0 {
			a := float64(alt)
			tags.Altitude = &a
		}
	}

	return tags, nil
}

// decodeImagemetaSafe protects against panics from the decoder on malformed blobs.
func decodeImagemetaSafe(data []byte) (ex exif2.Exif, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while decoding EXIF: %v", rec)
		}
	}()

	return imagemeta.Decode(bytes.NewReader(data))
}
