// Package cli holds output and argument helpers for photoctl.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fpang/photo-ingest/internal/store"
)

// FormatDurationShort formats a duration as M:SS, or H:MM:SS past an hour.
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// ShortHash abbreviates a content hash for tables.
func ShortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}

// FormatGPS renders coordinates as "lat,lon" or "-" when absent.
func FormatGPS(g *store.GPS) string {
	if g == nil {
		return "-"
	}
	s := fmt.Sprintf("%.5f,%.5f", g.Latitude, g.Longitude)
	if g.Altitude != nil {
		s += fmt.Sprintf(" (%.0fm)", *g.Altitude)
	}
	return s
}

// FormatWeather renders weather as "21.5°C 40% Clear sky" or "-".
func FormatWeather(w *store.Weather) string {
	if w == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C %.0f%% %s", w.TemperatureC, w.HumidityPct, w.Condition)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PrintRecords writes records as an aligned table.
func PrintRecords(w io.Writer, recs []*store.ImageRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tFILE\tSTATE\tSIZE\tCAPTURED\tGPS\tWEATHER")
	for _, r := range recs {
		size := "-"
		if r.Width > 0 {
			size = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ShortHash(r.ContentHash), r.OriginalFilename, r.State, size,
			orDash(r.CaptureTime), FormatGPS(r.GPS), FormatWeather(r.Weather))
	}
	return tw.Flush()
}

// PrintSummary writes per-day upload counts.
func PrintSummary(w io.Writer, days []store.DaySummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tUPLOADS")
	total := 0
	for _, d := range days {
		fmt.Fprintf(tw, "%s\t%d\n", d.Date, d.Count)
		total += d.Count
	}
	fmt.Fprintf(tw, "%s\t%d\n", strings.Repeat("-", 10), total)
	return tw.Flush()
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
