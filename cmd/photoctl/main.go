// Command photoctl ingests photos, runs the batch processor and queries the
// record store from a terminal.
//
// Examples:
//
//	photoctl ingest ~/Pictures/trip --lat 45.52 --lon -122.68
//	photoctl process --limit 50
//	photoctl inspect IMG_0042.HEIC
//	photoctl query near 45.52 -122.68 --radius 5
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/photo-ingest/internal/app"
	"github.com/fpang/photo-ingest/internal/config"
	"github.com/fpang/photo-ingest/internal/logging"
)

// Global flags
var (
	configFlag   string
	logLevelFlag string
	jsonFlag     bool
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "photoctl",
	Short: "Photo ingest, normalization and metadata enrichment",
	Long: `photoctl stores photos by content hash and derives a metadata record for
each distinct image: dimensions, capture time, GPS, camera and the weather at
the time and place of capture.

Uploads are stored as-is and recorded as pending. "photoctl process" then
normalizes HEIC and PNG to JPEG, extracts EXIF and fills in weather.

Configuration comes from --config (YAML) and PHOTO_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", os.Getenv("PHOTO_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")

	rootCmd.AddCommand(ingestCmd, processCmd, inspectCmd, normalizeCmd, queryCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("photoctl failed")
		os.Exit(1)
	}
}

// setup initializes logging and configuration without touching any store.
func setup() (*config.Config, error) {
	logging.Init()
	if logLevelFlag != "" {
		logging.SetLevel(logLevelFlag)
	}

	cfg, errs := config.Load(configFlag)
	if len(errs) > 0 {
		for _, err := range errs {
			log.Error().Err(err).Msg("Invalid configuration")
		}
		return nil, fmt.Errorf("configuration has %d error(s)", len(errs))
	}
	return cfg, nil
}

// openApp loads configuration and wires the pipeline.
func openApp(ctx context.Context) (*app.App, error) {
	start := time.Now()
	cfg, err := setup()
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return nil, err
	}
	a.StartupLog("photoctl").Version(version).InitDuration(time.Since(start)).Log()
	return a, nil
}

func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
