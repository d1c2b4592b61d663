// Package exiftest builds EXIF blobs and small image fixtures for tests.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
)

// TIFF field types.
const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeByte     = 1
)

// Tag numbers written by Blob.
const (
	tagMake             = 0x010F
	tagModel            = 0x0110
	tagDateTime         = 0x0132
	tagExifIFD          = 0x8769
	tagGPSIFD           = 0x8825
	tagDateTimeOriginal = 0x9003
	tagGPSLatRef        = 0x0001
	tagGPSLat           = 0x0002
	tagGPSLonRef        = 0x0003
	tagGPSLon           = 0x0004
	tagGPSAltRef        = 0x0005
	tagGPSAlt           = 0x0006
)

// Tags describes the tags to encode. Zero values are omitted.
type Tags struct {
	Make             string
	Model            string
	DateTime         string
	DateTimeOriginal string

	GPS       bool
	Latitude  float64 // signed; the ref tag is derived from the sign
	Longitude float64
	Altitude  *float64
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var order = binary.BigEndian

// Blob encodes s as a big-endian TIFF structure (no "Exif\0\0" header).
func Blob(s Tags) []byte {
	var ifd0, exifIFD, gpsIFD []entry

	if s.Make != "" {
		ifd0 = append(ifd0, ascii(tagMake, s.Make))
	}
	if s.Model != "" {
		ifd0 = append(ifd0, ascii(tagModel, s.Model))
	}
	if s.DateTime != "" {
		ifd0 = append(ifd0, ascii(tagDateTime, s.DateTime))
	}
	if s.DateTimeOriginal != "" {
		exifIFD = append(exifIFD, ascii(tagDateTimeOriginal, s.DateTimeOriginal))
	}
	if s.GPS {
		latRef, lonRef := "N", "E"
		if s.Latitude < 0 {
			latRef = "S"
		}
		if s.Longitude < 0 {
			lonRef = "W"
		}
		gpsIFD = append(gpsIFD,
			ascii(tagGPSLatRef, latRef),
			degrees(tagGPSLat, math.Abs(s.Latitude)),
			ascii(tagGPSLonRef, lonRef),
			degrees(tagGPSLon, math.Abs(s.Longitude)),
		)
		if s.Altitude != nil {
			ref := byte(0)
			if *s.Altitude < 0 {
				ref = 1
			}
			gpsIFD = append(gpsIFD,
				entry{tag: tagGPSAltRef, typ: typeByte, count: 1, data: []byte{ref}},
				rationals(tagGPSAlt, math.Abs(*s.Altitude)),
			)
		}
	}

	// Sub-IFD pointers are inline LONGs, so their sizes are known up front.
	if len(exifIFD) > 0 {
		ifd0 = append(ifd0, entry{tag: tagExifIFD, typ: typeLong, count: 1, data: make([]byte, 4)})
	}
	if len(gpsIFD) > 0 {
		ifd0 = append(ifd0, entry{tag: tagGPSIFD, typ: typeLong, count: 1, data: make([]byte, 4)})
	}

	ifd0Off := uint32(8)
	exifOff := ifd0Off + ifdSize(ifd0)
	gpsOff := exifOff + ifdSize(exifIFD)
	for i := range ifd0 {
		switch ifd0[i].tag {
		case tagExifIFD:
			order.PutUint32(ifd0[i].data, exifOff)
		case tagGPSIFD:
			order.PutUint32(ifd0[i].data, gpsOff)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("MM")
	binary.Write(&buf, order, uint16(42))
	binary.Write(&buf, order, ifd0Off)
	writeIFD(&buf, ifd0, ifd0Off)
	if len(exifIFD) > 0 {
		writeIFD(&buf, exifIFD, exifOff)
	}
	if len(gpsIFD) > 0 {
		writeIFD(&buf, gpsIFD, gpsOff)
	}
	return buf.Bytes()
}

func ascii(tag uint16, s string) entry {
	data := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(data)), data: data}
}

func degrees(tag uint16, v float64) entry {
	deg := math.Floor(v)
	minutes := math.Floor((v - deg) * 60)
	secs := ((v-deg)*60 - minutes) * 60
	data := make([]byte, 0, 24)
	data = appendRational(data, uint32(deg), 1)
	data = appendRational(data, uint32(minutes), 1)
	data = appendRational(data, uint32(math.Round(secs*10000)), 10000)
	return entry{tag: tag, typ: typeRational, count: 3, data: data}
}

func rationals(tag uint16, v float64) entry {
	data := appendRational(nil, uint32(math.Round(v*100)), 100)
	return entry{tag: tag, typ: typeRational, count: 1, data: data}
}

func appendRational(b []byte, num, den uint32) []byte {
	b = order.AppendUint32(b, num)
	return order.AppendUint32(b, den)
}

func ifdSize(entries []entry) uint32 {
	if len(entries) == 0 {
		return 0
	}
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			size += uint32(len(e.data) + len(e.data)%2)
		}
	}
	return size
}

func writeIFD(buf *bytes.Buffer, entries []entry, offset uint32) {
	binary.Write(buf, order, uint16(len(entries)))
	dataOff := offset + uint32(2+12*len(entries)+4)
	var extra []byte
	for _, e := range entries {
		binary.Write(buf, order, e.tag)
		binary.Write(buf, order, e.typ)
		binary.Write(buf, order, e.count)
		if len(e.data) <= 4 {
			inline := make([]byte, 4)
			copy(inline, e.data)
			buf.Write(inline)
			continue
		}
		binary.Write(buf, order, dataOff+uint32(len(extra)))
		extra = append(extra, e.data...)
		if len(e.data)%2 == 1 {
			extra = append(extra, 0)
		}
	}
	binary.Write(buf, order, uint32(0))
	buf.Write(extra)
}

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG encodes img and, when blob is non-nil, inserts an eXIf chunk holding
// blob right after IHDR.
func PNG(img image.Image, blob []byte) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	data := buf.Bytes()
	if blob == nil {
		return data
	}

	// signature(8) + IHDR chunk (4 + 4 + 13 + 4)
	const ihdrEnd = 8 + 25
	out := make([]byte, 0, len(data)+len(blob)+12)
	out = append(out, data[:ihdrEnd]...)
	out = append(out, Chunk("eXIf", blob)...)
	return append(out, data[ihdrEnd:]...)
}

// Chunk encodes one PNG chunk with a valid CRC.
func Chunk(chunkType string, data []byte) []byte {
	out := make([]byte, 0, len(data)+12)
	out = order.AppendUint32(out, uint32(len(data)))
	out = append(out, chunkType...)
	out = append(out, data...)
	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	return order.AppendUint32(out, crc.Sum32())
}

// JPEG encodes img at quality 90.
func JPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
