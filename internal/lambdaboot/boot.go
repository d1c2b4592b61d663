// Package lambdaboot provides the shared Lambda cold-start bootstrap: JSON
// logging, configuration, AWS config and the wired pipeline. Each Lambda's
// main() calls Boot once before lambda.Start.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-ingest/internal/app"
	"github.com/fpang/photo-ingest/internal/config"
	"github.com/fpang/photo-ingest/internal/logging"
)

// Runtime is everything a handler needs after cold start.
type Runtime struct {
	App *app.App
	AWS aws.Config
}

// InitAWS loads the default AWS config. Fatals on error.
func InitAWS(ctx context.Context) aws.Config {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg
}

// InitLogging configures the global logger for Lambda. The format defaults
// to JSON so CloudWatch Logs Insights can query fields.
func InitLogging() {
	format := os.Getenv("PHOTO_LOG_FORMAT")
	if format == "" {
		format = logging.FormatJSON
	}
	logging.Setup(os.Getenv("PHOTO_LOG_LEVEL"), format, os.Stdout)
}

// LoadConfig reads config from the optional PHOTO_CONFIG file and the
// environment. Fatals listing every validation error.
func LoadConfig() *config.Config {
	cfg, errs := config.Load(os.Getenv("PHOTO_CONFIG"))
	if len(errs) > 0 {
		for _, err := range errs {
			log.Error().Err(err).Msg("Invalid configuration")
		}
		log.Fatal().Int("errors", len(errs)).Msg("Configuration is invalid")
	}
	return cfg
}

// Boot runs the full cold-start sequence for the named Lambda and logs the
// startup summary.
func Boot(name string) Runtime {
	start := time.Now()
	ctx := context.Background()

	InitLogging()
	cfg := LoadConfig()
	awsCfg := InitAWS(ctx)

	a, err := app.Build(ctx, cfg, app.Options{AWS: &awsCfg})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	a.StartupLog(name).
		Version(Version).
		InitDuration(time.Since(start)).
		Log()
	return Runtime{App: a, AWS: awsCfg}
}

// Version is set at build time with -ldflags "-X .../lambdaboot.Version=...".
var Version = "dev"
