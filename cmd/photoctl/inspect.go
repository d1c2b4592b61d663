package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fpang/photo-ingest/internal/app"
	"github.com/fpang/photo-ingest/internal/cli"
	"github.com/fpang/photo-ingest/internal/config"
	"github.com/fpang/photo-ingest/internal/filehandler"
	"github.com/fpang/photo-ingest/internal/store"
	"github.com/fpang/photo-ingest/internal/weather"
)

var (
	inspectWeather bool
	normalizeOut   string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the metadata photoctl would extract, without storing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <file>...",
	Short: "Convert HEIC or PNG files to JPEG, keeping EXIF",
	Long: `Normalize writes a JPEG next to each input (or into --out). PNG eXIf
metadata is carried into the JPEG. The input file is never modified.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNormalize,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectWeather, "weather", false, "Also look up archive weather")
	normalizeCmd.Flags().StringVarP(&normalizeOut, "out", "o", "", "Output directory (default: next to the input)")
}

type inspectReport struct {
	Path        string            `json:"path"`
	Hash        string            `json:"hash"`
	ByteSize    int64             `json:"byteSize"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	CaptureTime string            `json:"captureTime,omitempty"`
	GPS         *store.GPS        `json:"gps,omitempty"`
	CameraMake  string            `json:"cameraMake,omitempty"`
	CameraModel string            `json:"cameraModel,omitempty"`
	Weather     *store.Weather    `json:"weather,omitempty"`
	Degraded    map[string]string `json:"degraded,omitempty"`
	Note        string            `json:"note,omitempty"`
}

// stage copies src into dir so normalization never touches the original.
func stage(src, dir string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	return dst, os.WriteFile(dst, data, 0o600)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	if !filehandler.IsImage(filepath.Ext(path)) {
		return fmt.Errorf("%w: %s", filehandler.ErrUnsupportedFormat, path)
	}
	hash, err := filehandler.HashFile(path)
	if err != nil {
		return err
	}

	target := path
	if filehandler.FormatOf(path) == filehandler.FormatHEIC {
		dir, err := os.MkdirTemp(a.Config.TempDir, "inspect-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		if target, err = stage(path, dir); err != nil {
			return err
		}
		if target, err = a.Normalizer.Normalize(ctx, target); err != nil {
			return err
		}
	}

	ex, err := a.Extractor.Extract(target)
	if err != nil {
		return err
	}
	report := reportFor(path, hash, ex)
	if inspectWeather {
		report.Weather, report.Note = lookupWeather(ctx, a, report.GPS, ex.CaptureTime)
	}

	if jsonFlag {
		return cli.PrintJSON(stdout(cmd), report)
	}
	printReport(cmd, report)
	return nil
}

func reportFor(path, hash string, ex *filehandler.Extraction) *inspectReport {
	r := &inspectReport{
		Path:        path,
		Hash:        hash,
		ByteSize:    ex.ByteSize,
		Width:       ex.Width,
		Height:      ex.Height,
		CaptureTime: ex.CaptureTime,
		CameraMake:  ex.CameraMake,
		CameraModel: ex.CameraModel,
	}
	if info, err := os.Stat(path); err == nil {
		r.ByteSize = info.Size()
	}
	if ex.GPS != nil {
		r.GPS = &store.GPS{Latitude: ex.GPS.Latitude, Longitude: ex.GPS.Longitude, Altitude: ex.GPS.Altitude}
	}
	if len(ex.Degraded) > 0 {
		r.Degraded = make(map[string]string, len(ex.Degraded))
		for f, err := range ex.Degraded {
			r.Degraded[string(f)] = err.Error()
		}
	}
	return r
}

func lookupWeather(ctx context.Context, a *app.App, gps *store.GPS, captureTime string) (*store.Weather, string) {
	if !a.Config.WeatherEnabled {
		return nil, weather.ReasonDisabled
	}
	var loc *weather.Location
	if gps != nil {
		loc = &weather.Location{Latitude: gps.Latitude, Longitude: gps.Longitude}
	}
	enricher := weather.NewEnricher(weather.NewClient(a.Config.WeatherBaseURL, a.Config.WeatherTimeout))
	out := enricher.Enrich(ctx, loc, captureTime)
	if !out.Enriched() {
		return nil, out.Reason
	}
	return &store.Weather{
		TemperatureC: out.Conditions.TemperatureC,
		HumidityPct:  out.Conditions.HumidityPct,
		Condition:    out.Conditions.Description,
	}, ""
}

func printReport(cmd *cobra.Command, r *inspectReport) {
	out := stdout(cmd)
	row := func(k, v string) { fmt.Fprintf(out, "%-12s %s\n", k+":", v) }
	row("File", r.Path)
	row("Hash", r.Hash)
	row("Size", fmt.Sprintf("%d bytes, %dx%d", r.ByteSize, r.Width, r.Height))
	row("Captured", orDash(r.CaptureTime))
	row("GPS", cli.FormatGPS(r.GPS))
	row("Camera", orDash(r.CameraMake+" "+r.CameraModel))
	if inspectWeather {
		w := cli.FormatWeather(r.Weather)
		if r.Note != "" {
			w += " (" + r.Note + ")"
		}
		row("Weather", w)
	}
	fields := make([]string, 0, len(r.Degraded))
	for f := range r.Degraded {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		row("Unreadable", f+": "+r.Degraded[f])
	}
}

func orDash(s string) string {
	if s == "" || s == " " {
		return "-"
	}
	return s
}

func runNormalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := setup()
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, memoryBacked(cfg), app.Options{})
	if err != nil {
		return err
	}

	for _, src := range args {
		if !filehandler.IsImage(filepath.Ext(src)) {
			return fmt.Errorf("%w: %s", filehandler.ErrUnsupportedFormat, src)
		}
		if filehandler.FormatOf(src) == filehandler.FormatJPEG {
			fmt.Fprintf(stdout(cmd), "%s (already JPEG)\n", src)
			continue
		}

		dir, err := os.MkdirTemp(cfg.TempDir, "normalize-*")
		if err != nil {
			return err
		}
		dst, err := normalizeOne(ctx, a, src, dir)
		os.RemoveAll(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}
		fmt.Fprintf(stdout(cmd), "%s -> %s\n", src, dst)
	}
	return nil
}

func normalizeOne(ctx context.Context, a *app.App, src, scratch string) (string, error) {
	staged, err := stage(src, scratch)
	if err != nil {
		return "", err
	}
	jpg, err := a.Normalizer.Normalize(ctx, staged)
	if err != nil {
		return "", err
	}

	outDir := normalizeOut
	if outDir == "" {
		outDir = filepath.Dir(src)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, filepath.Base(jpg))
	data, err := os.ReadFile(jpg)
	if err != nil {
		return "", err
	}
	return dst, os.WriteFile(dst, data, 0o644)
}

// memoryBacked returns a copy of cfg that opens no database or bucket.
// normalize only needs the converter settings.
func memoryBacked(cfg *config.Config) *config.Config {
	c := *cfg
	c.StoreBackend = config.StoreMemory
	c.ObjectBackend = config.ObjectsMemory
	return &c
}
