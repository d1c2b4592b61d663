package exifutil

import (
	"image/color"
	"math"
	"testing"

	"github.com/fpang/photo-ingest/internal/exifutil/exiftest"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}

func ptr(v float64) *float64 { return &v }

func TestGoexifDecoder(t *testing.T) {
	alt := 12.5
	below := -30.0

	tests := []struct {
		name       string
		tags       exiftest.Tags
		withHeader bool
		wantTime   string
		wantGPS    bool
		wantLat    float64
		wantLon    float64
		wantAlt    *float64
		wantMake   string
		wantModel  string
	}{
		{
			name:     "original time preferred over DateTime",
			tags:     exiftest.Tags{DateTime: "2020:01:01 00:00:00", DateTimeOriginal: "2024:06:15 14:00:00"},
			wantTime: "2024:06:15 14:00:00",
		},
		{
			name:     "DateTime fallback",
			tags:     exiftest.Tags{DateTime: "2021:07:04 09:30:00"},
			wantTime: "2021:07:04 09:30:00",
		},
		{
			name:    "west longitude is negative",
			tags:    exiftest.Tags{GPS: true, Latitude: 45, Longitude: -122, Altitude: &alt},
			wantGPS: true,
			wantLat: 45,
			wantLon: -122,
			wantAlt: &alt,
		},
		{
			name:       "southern hemisphere with header",
			tags:       exiftest.Tags{GPS: true, Latitude: -33.8688, Longitude: 151.2093},
			withHeader: true,
			wantGPS:    true,
			wantLat:    -33.8688,
			wantLon:    151.2093,
		},
		{
			name:    "below sea level",
			tags:    exiftest.Tags{GPS: true, Latitude: 31.5, Longitude: 35.5, Altitude: &below},
			wantGPS: true,
			wantLat: 31.5,
			wantLon: 35.5,
			wantAlt: &below,
		},
		{
			name:      "camera only",
			tags:      exiftest.Tags{Make: "Acme", Model: "Shooter 3000"},
			wantMake:  "Acme",
			wantModel: "Shooter 3000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := exiftest.Blob(tt.tags)
			if tt.withHeader {
				blob = EnsureHeader(blob)
			}

			tags, err := GoexifDecoder{}.Decode(blob)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if tags.CaptureTime != tt.wantTime {
				t.Errorf("CaptureTime = %q, want %q", tags.CaptureTime, tt.wantTime)
			}
			if tags.HasGPS() != tt.wantGPS {
				t.Fatalf("HasGPS = %v, want %v", tags.HasGPS(), tt.wantGPS)
			}
			if tt.wantGPS {
				if !approx(*tags.Latitude, tt.wantLat) || !approx(*tags.Longitude, tt.wantLon) {
					t.Errorf("coordinates = (%f, %f), want (%f, %f)", *tags.Latitude, *tags.Longitude, tt.wantLat, tt.wantLon)
				}
			}
			switch {
			case tt.wantAlt == nil && tags.Altitude != nil:
				t.Errorf("unexpected altitude %f", *tags.Altitude)
			case tt.wantAlt != nil && tags.Altitude == nil:
				t.Error("expected altitude")
			case tt.wantAlt != nil && !approx(*tags.Altitude, *tt.wantAlt):
				t.Errorf("Altitude = %f, want %f", *tags.Altitude, *tt.wantAlt)
			}
			if tags.CameraMake != tt.wantMake || tags.CameraModel != tt.wantModel {
				t.Errorf("camera = %q/%q, want %q/%q", tags.CameraMake, tags.CameraModel, tt.wantMake, tt.wantModel)
			}
		})
	}
}

func TestGoexifDecoder_Garbage(t *testing.T) {
	if _, err := (GoexifDecoder{}).Decode([]byte("definitely not tiff")); err == nil {
		t.Error("expected error for garbage blob")
	}
}

// The sign of a coordinate depends only on the reference tags, so a blob
// read out of a PNG and the same blob carried in a JPEG decode identically.
func TestLongitudeSignIsContainerIndependent(t *testing.T) {
	blob := exiftest.Blob(exiftest.Tags{GPS: true, Latitude: 45, Longitude: -122})

	fromPNG, err := ExtractFromPNG(exiftest.PNG(exiftest.Solid(2, 2, color.White), blob))
	if err != nil {
		t.Fatalf("ExtractFromPNG: %v", err)
	}
	wrapped, err := WrapInJPEG(blob)
	if err != nil {
		t.Fatalf("WrapInJPEG: %v", err)
	}
	fromJPEG, err := ExtractFromJPEG(wrapped)
	if err != nil {
		t.Fatalf("ExtractFromJPEG: %v", err)
	}

	pngTags, err := GoexifDecoder{}.Decode(fromPNG)
	if err != nil {
		t.Fatalf("decode PNG blob: %v", err)
	}
	jpegTags, err := GoexifDecoder{}.Decode(fromJPEG)
	if err != nil {
		t.Fatalf("decode JPEG blob: %v", err)
	}

	if !approx(*pngTags.Longitude, -122) || !approx(*jpegTags.Longitude, -122) {
		t.Errorf("longitude png=%f jpeg=%f, want -122 for both", *pngTags.Longitude, *jpegTags.Longitude)
	}
}

func TestImagemetaDecoder_NoPanicOnGarbage(t *testing.T) {
	tags, err := ImagemetaDecoder{}.Decode([]byte{0x00, 0x01, 0x02, 0x03})
	if err == nil && tags.HasGPS() {
		t.Error("garbage blob should not produce GPS")
	}
}

func TestImagemetaDecoder_GPSAltitude(t *testing.T) {
	tests := []struct {
		name    string
		alt     *float64
		wantAlt *float64
	}{
		{"above sea level", ptr(42), ptr(42)},
		{"below sea level", ptr(-12.5), ptr(-12.5)},
		{"no altitude", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := exiftest.Blob(exiftest.Tags{GPS: true, Latitude: 45.5, Longitude: -122.25, Altitude: tt.alt})
			tags, err := ImagemetaDecoder{}.Decode(blob)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !tags.HasGPS() || !approx(*tags.Latitude, 45.5) || !approx(*tags.Longitude, -122.25) {
				t.Fatalf("GPS = %v/%v", tags.Latitude, tags.Longitude)
			}
			switch {
			case tt.wantAlt == nil && tags.Altitude != nil:
				t.Errorf("Altitude = %f, want none", *tags.Altitude)
			case tt.wantAlt != nil && tags.Altitude == nil:
				t.Error("expected altitude")
			case tt.wantAlt != nil && !approx(*tags.Altitude, *tt.wantAlt):
				t.Errorf("Altitude = %f, want %f", *tags.Altitude, *tt.wantAlt)
			}
		})
	}
}

func TestNewDecoder(t *testing.T) {
	tests := []struct {
		name    string
		want    Decoder
		wantErr bool
	}{
		{"", GoexifDecoder{}, false},
		{"goexif", GoexifDecoder{}, false},
		{"IMAGEMETA", ImagemetaDecoder{}, false},
		{"exiftool", nil, true},
	}

	for _, tt := range tests {
		got, err := NewDecoder(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewDecoder(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NewDecoder(%q) = %T, want %T", tt.name, got, tt.want)
		}
	}
}
