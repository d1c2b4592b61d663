package exifutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image/color"
	"testing"

	"github.com/fpang/photo-ingest/internal/exifutil/exiftest"
)

func TestEnsureHeader(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"bare", []byte("MM\x00*"), []byte("Exif\x00\x00MM\x00*")},
		{"already prefixed", []byte("Exif\x00\x00MM\x00*"), []byte("Exif\x00\x00MM\x00*")},
		{"empty", nil, []byte("Exif\x00\x00")},
		{"partial marker", []byte("Exif\x00II*\x00"), []byte("Exif\x00\x00Exif\x00II*\x00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnsureHeader(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EnsureHeader(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := EnsureHeader(got); !bytes.Equal(again, got) {
				t.Errorf("EnsureHeader is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestExtractFromPNG(t *testing.T) {
	blob := exiftest.Blob(exiftest.Tags{DateTime: "2024:06:15 14:00:00"})
	img := exiftest.Solid(4, 4, color.NRGBA{R: 200, A: 255})

	t.Run("chunk present", func(t *testing.T) {
		got, err := ExtractFromPNG(exiftest.PNG(img, blob))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, blob) {
			t.Errorf("blob mismatch: got %d bytes, want %d", len(got), len(blob))
		}
	})

	t.Run("chunk absent", func(t *testing.T) {
		got, err := ExtractFromPNG(exiftest.PNG(img, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil blob, got %d bytes", len(got))
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		data := exiftest.PNG(img, blob)
		data[1] = 'X'
		if _, err := ExtractFromPNG(data); !errors.Is(err, ErrFormat) {
			t.Errorf("expected ErrFormat, got %v", err)
		}
	})

	t.Run("truncated chunk table", func(t *testing.T) {
		data := exiftest.PNG(img, blob)
		// Cut inside the eXIf chunk, which follows IHDR at offset 33.
		if _, err := ExtractFromPNG(data[:40]); !errors.Is(err, ErrFormat) {
			t.Errorf("expected ErrFormat, got %v", err)
		}
	})

	t.Run("chunk length overruns", func(t *testing.T) {
		data := append([]byte{}, pngSignatureForTest()...)
		data = binary.BigEndian.AppendUint32(data, 1000)
		data = append(data, "eXIf"...)
		data = append(data, 1, 2, 3)
		if _, err := ExtractFromPNG(data); !errors.Is(err, ErrFormat) {
			t.Errorf("expected ErrFormat, got %v", err)
		}
	})
}

func pngSignatureForTest() []byte {
	return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
}

func TestInjectIntoJPEG(t *testing.T) {
	base := exiftest.JPEG(exiftest.Solid(8, 8, color.White))
	blob := exiftest.Blob(exiftest.Tags{Make: "Acme"})

	out, err := InjectIntoJPEG(base, blob)
	if err != nil {
		t.Fatalf("InjectIntoJPEG: %v", err)
	}

	if out[0] != 0xFF || out[1] != 0xD8 || out[2] != 0xFF || out[3] != 0xE1 {
		t.Fatalf("unexpected prefix % X", out[:4])
	}
	segLen := int(binary.BigEndian.Uint16(out[4:6]))
	if want := len(blob) + 6 + 2; segLen != want {
		t.Errorf("segment length = %d, want %d", segLen, want)
	}
	if !bytes.Equal(out[6:12], Header) {
		t.Errorf("payload does not start with Exif header: %q", out[6:12])
	}
	if !bytes.Equal(out[4+segLen:], base[2:]) {
		t.Error("remainder of base JPEG was not preserved")
	}

	// A blob that already carries the header is not prefixed twice.
	out2, err := InjectIntoJPEG(base, EnsureHeader(blob))
	if err != nil {
		t.Fatalf("InjectIntoJPEG with header: %v", err)
	}
	if !bytes.Equal(out, out2) {
		t.Error("pre-headered blob produced different output")
	}
}

func TestInjectIntoJPEG_Errors(t *testing.T) {
	base := exiftest.JPEG(exiftest.Solid(2, 2, color.White))

	if _, err := InjectIntoJPEG([]byte{0x00, 0x01, 0x02}, []byte("x")); !errors.Is(err, ErrFormat) {
		t.Errorf("missing SOI: expected ErrFormat, got %v", err)
	}

	maxBlob := make([]byte, MaxPayload)
	out, err := InjectIntoJPEG(base, maxBlob)
	if err != nil {
		t.Fatalf("blob of %d bytes should fit: %v", MaxPayload, err)
	}
	if got := binary.BigEndian.Uint16(out[4:6]); got != 0xFFFF {
		t.Errorf("segment length = %#x, want 0xFFFF", got)
	}

	tooBig := make([]byte, MaxPayload+1)
	if _, err := InjectIntoJPEG(base, tooBig); !errors.Is(err, ErrExifTooLarge) {
		t.Errorf("expected ErrExifTooLarge, got %v", err)
	}
}

func TestRoundTrip_PNGToJPEG(t *testing.T) {
	alt := 12.5
	blob := exiftest.Blob(exiftest.Tags{
		DateTimeOriginal: "2023:01:02 03:04:05",
		GPS:              true,
		Latitude:         45,
		Longitude:        -122,
		Altitude:         &alt,
	})
	img := exiftest.Solid(4, 4, color.NRGBA{G: 100, A: 255})

	fromPNG, err := ExtractFromPNG(exiftest.PNG(img, blob))
	if err != nil {
		t.Fatalf("ExtractFromPNG: %v", err)
	}
	jpg, err := InjectIntoJPEG(exiftest.JPEG(img), fromPNG)
	if err != nil {
		t.Fatalf("InjectIntoJPEG: %v", err)
	}
	fromJPEG, err := ExtractFromJPEG(jpg)
	if err != nil {
		t.Fatalf("ExtractFromJPEG: %v", err)
	}

	if !bytes.Equal(fromJPEG, EnsureHeader(fromPNG)) {
		t.Error("EXIF payload changed across the PNG -> JPEG transplant")
	}
	if !bytes.Equal(StripHeader(fromJPEG), blob) {
		t.Error("stripped payload does not match original blob")
	}
}

func TestExtractFromJPEG(t *testing.T) {
	plain := exiftest.JPEG(exiftest.Solid(2, 2, color.White))

	got, err := ExtractFromJPEG(plain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no EXIF in plain JPEG, got %d bytes", len(got))
	}

	if _, err := ExtractFromJPEG([]byte("not a jpeg")); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}

	truncated := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x10, 0x00, 'E'}
	if _, err := ExtractFromJPEG(truncated); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat for overrun, got %v", err)
	}
}

func TestWrapInJPEG(t *testing.T) {
	blob := []byte("MM\x00*")
	wrapped, err := WrapInJPEG(blob)
	if err != nil {
		t.Fatalf("WrapInJPEG: %v", err)
	}
	if !IsJPEG(wrapped) {
		t.Fatal("wrapped blob is not a JPEG stream")
	}
	if tail := wrapped[len(wrapped)-2:]; tail[0] != 0xFF || tail[1] != 0xD9 {
		t.Errorf("wrapped blob does not end with EOI: % X", tail)
	}
	got, err := ExtractFromJPEG(wrapped)
	if err != nil {
		t.Fatalf("ExtractFromJPEG: %v", err)
	}
	if !bytes.Equal(got, EnsureHeader(blob)) {
		t.Errorf("got %q, want %q", got, EnsureHeader(blob))
	}
}
