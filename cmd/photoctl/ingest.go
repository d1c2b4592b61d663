package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/photo-ingest/internal/cli"
	"github.com/fpang/photo-ingest/internal/filehandler"
	"github.com/fpang/photo-ingest/internal/ingest"
	"github.com/fpang/photo-ingest/internal/store"
)

var (
	ingestLat       float64
	ingestLon       float64
	ingestAlt       float64
	ingestImmediate bool
	ingestMaxDepth  int
	ingestLimit     int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-directory>...",
	Short: "Store photos and create pending records",
	Long: `Ingest stores each photo verbatim under its content hash and creates a
pending record. Files already ingested are reported as duplicates and not
uploaded again. Directories are scanned for .jpg, .jpeg, .png, .heic and .heif.

--lat and --lon attach a location that takes precedence over EXIF GPS.
--immediate normalizes and enriches right away and stores a processed record.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Float64Var(&ingestLat, "lat", 0, "Latitude override in decimal degrees")
	ingestCmd.Flags().Float64Var(&ingestLon, "lon", 0, "Longitude override in decimal degrees")
	ingestCmd.Flags().Float64Var(&ingestAlt, "alt", 0, "Altitude override in meters (requires --lat/--lon)")
	ingestCmd.Flags().BoolVar(&ingestImmediate, "immediate", false, "Process synchronously instead of leaving records pending")
	ingestCmd.Flags().IntVar(&ingestMaxDepth, "max-depth", 0, "Maximum directory recursion depth (0 = unlimited)")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "Maximum files to ingest (0 = unlimited)")
	ingestCmd.MarkFlagsRequiredTogether("lat", "lon")
}

// uploadGPS builds the override from flags, or nil if none were given.
func uploadGPS(cmd *cobra.Command) *store.GPS {
	if !cmd.Flags().Changed("lat") {
		return nil
	}
	g := &store.GPS{Latitude: ingestLat, Longitude: ingestLon}
	if cmd.Flags().Changed("alt") {
		alt := ingestAlt
		g.Altitude = &alt
	}
	return g
}

type ingestLine struct {
	Path    string `json:"path"`
	Hash    string `json:"hash,omitempty"`
	Outcome string `json:"outcome"`
	State   string `json:"state,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := cli.ExpandPaths(args, filehandler.ScanOptions{MaxDepth: ingestMaxDepth, Limit: ingestLimit})
	if err != nil {
		return err
	}
	gps := uploadGPS(cmd)
	start := time.Now()

	var lines []ingestLine
	failed := 0
	for _, p := range paths {
		line := ingestLine{Path: p}
		data, err := os.ReadFile(p)
		if err == nil {
			var res *ingest.Result
			res, err = a.Pipeline.Ingest(ctx, ingest.Request{
				Filename:  filepath.Base(p),
				Data:      data,
				GPS:       gps,
				Immediate: ingestImmediate,
			})
			if err == nil {
				line.Hash = res.Record.ContentHash
				line.Outcome = res.Outcome.String()
				line.State = string(res.Record.State)
			}
		}
		if err != nil {
			failed++
			line.Outcome = "failed"
			line.Error = err.Error()
			log.Warn().Err(err).Str("path", p).Msg("Ingest failed")
		}
		lines = append(lines, line)
	}

	if jsonFlag {
		if err := cli.PrintJSON(stdout(cmd), lines); err != nil {
			return err
		}
	} else {
		for _, l := range lines {
			if l.Error != "" {
				fmt.Fprintf(stdout(cmd), "%-15s %s: %s\n", l.Outcome, l.Path, l.Error)
				continue
			}
			fmt.Fprintf(stdout(cmd), "%-15s %s %s (%s)\n", l.Outcome, cli.ShortHash(l.Hash), l.Path, l.State)
		}
		fmt.Fprintf(stdout(cmd), "%d file(s), %d failed, %s\n", len(lines), failed, cli.FormatDurationShort(time.Since(start)))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(lines))
	}
	return nil
}
