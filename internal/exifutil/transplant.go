// Package exifutil moves raw EXIF blobs between image containers.
//
// A blob is the TIFF-structured payload that carries capture time, GPS and
// camera tags. It appears in two places:
//   - PNG: the data of an ancillary eXIf chunk, with or without the
//     6-byte "Exif\0\0" marker
//   - JPEG: an APP1 (FF E1) marker segment whose payload always starts
//     with "Exif\0\0"
//
// The package works on bytes only. Tag decoding lives behind the Decoder
// interface in decode.go.
package exifutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Header is the marker that prefixes an EXIF payload inside a JPEG APP1 segment.
var Header = []byte("Exif\x00\x00")

// MaxSegmentLength is the largest value a JPEG segment length field can hold.
// The length counts itself (2 bytes) and the payload.
const MaxSegmentLength = 0xFFFF

// MaxPayload is the largest EXIF blob (without header) that fits one APP1 segment.
const MaxPayload = MaxSegmentLength - 2 - 6

var (
	// ErrFormat reports a container that is not the format it claims to be:
	// bad signature, missing SOI, or a truncated chunk/segment table.
	ErrFormat = errors.New("invalid image format")

	// ErrExifTooLarge reports an EXIF blob that cannot fit one APP1 segment.
	ErrExifTooLarge = errors.New("EXIF too large for a single segment")
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1
)

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// IsJPEG reports whether data starts with the JPEG SOI marker.
func IsJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == markerSOI
}

// HasHeader reports whether blob already starts with "Exif\0\0".
func HasHeader(blob []byte) bool {
	return bytes.HasPrefix(blob, Header)
}

// EnsureHeader returns blob prefixed with "Exif\0\0" unless it already
// starts with exactly that sequence, in which case blob is returned as-is.
func EnsureHeader(blob []byte) []byte {
	if HasHeader(blob) {
		return blob
	}
	out := make([]byte, 0, len(Header)+len(blob))
	out = append(out, Header...)
	return append(out, blob...)
}

// StripHeader returns the bare TIFF structure of blob.
func StripHeader(blob []byte) []byte {
	return bytes.TrimPrefix(blob, Header)
}

// ExtractFromPNG returns the data of the first eXIf chunk in a PNG stream.
// A PNG without an eXIf chunk yields nil, nil.
func ExtractFromPNG(data []byte) ([]byte, error) {
	if !IsPNG(data) {
		return nil, fmt.Errorf("%w: missing PNG signature", ErrFormat)
	}

	pos := len(pngSignature)
	for pos < len(data) {
		// length(4) + type(4)
		if len(data)-pos < 8 {
			return nil, fmt.Errorf("%w: truncated PNG chunk header at offset %d", ErrFormat, pos)
		}
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		start := pos + 8
		// data + crc(4)
		if length < 0 || length > len(data)-start-4 {
			return nil, fmt.Errorf("%w: truncated %q chunk at offset %d", ErrFormat, chunkType, pos)
		}

		switch chunkType {
		case "eXIf":
			blob := make([]byte, length)
			copy(blob, data[start:start+length])
			return blob, nil
		case "IEND":
			return nil, nil
		}
		pos = start + length + 4
	}

	return nil, nil
}

// ExtractFromJPEG returns the payload of the first APP1 segment carrying EXIF,
// including its "Exif\0\0" header. A JPEG without one yields nil, nil.
// The walk stops at the start of scan data.
func ExtractFromJPEG(data []byte) ([]byte, error) {
	if !IsJPEG(data) {
		return nil, fmt.Errorf("%w: missing JPEG SOI marker", ErrFormat)
	}

	pos := 2
	for pos < len(data) {
		if data[pos] != 0xFF {
			return nil, fmt.Errorf("%w: expected marker at offset %d", ErrFormat, pos)
		}
		// Fill bytes: any number of 0xFF may precede a marker.
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			return nil, fmt.Errorf("%w: truncated marker", ErrFormat)
		}
		marker := data[pos]
		pos++

		// Standalone markers carry no length.
		if marker == markerEOI || marker == markerSOS {
			return nil, nil
		}
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			continue
		}

		if len(data)-pos < 2 {
			return nil, fmt.Errorf("%w: truncated segment length at offset %d", ErrFormat, pos)
		}
		length := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if length < 2 || length > len(data)-pos {
			return nil, fmt.Errorf("%w: segment 0x%02X overruns stream", ErrFormat, marker)
		}
		payload := data[pos+2 : pos+length]
		if marker == markerAPP1 && HasHeader(payload) {
			blob := make([]byte, len(payload))
			copy(blob, payload)
			return blob, nil
		}
		pos += length
	}

	return nil, nil
}

// InjectIntoJPEG inserts blob as an APP1 segment directly after the SOI marker
// of jpegData. Everything after the SOI is copied through unchanged.
func InjectIntoJPEG(jpegData, blob []byte) ([]byte, error) {
	if !IsJPEG(jpegData) {
		return nil, fmt.Errorf("%w: missing JPEG SOI marker", ErrFormat)
	}

	payload := EnsureHeader(blob)
	segLen := len(payload) + 2
	if segLen > MaxSegmentLength {
		return nil, fmt.Errorf("%w: %d byte payload exceeds %d", ErrExifTooLarge, len(payload), MaxSegmentLength-2)
	}

	out := make([]byte, 0, len(jpegData)+segLen+2)
	out = append(out, 0xFF, markerSOI)
	out = append(out, 0xFF, markerAPP1)
	out = binary.BigEndian.AppendUint16(out, uint16(segLen))
	out = append(out, payload...)
	out = append(out, jpegData[2:]...)
	return out, nil
}

// WrapInJPEG builds the smallest JPEG-shaped stream (SOI, APP1, EOI) around
// blob, for decoders that only accept a JPEG container.
func WrapInJPEG(blob []byte) ([]byte, error) {
	return InjectIntoJPEG([]byte{0xFF, markerSOI, 0xFF, markerEOI}, blob)
}
