// Package logging configures the global zerolog logger and emits the
// one-line startup summary used by the CLI and the Lambdas.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats accepted by PHOTO_LOG_FORMAT.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Init initializes the global logger from environment variables.
// PHOTO_LOG_LEVEL: trace, debug, info, warn, error (default: info).
// PHOTO_LOG_FORMAT: console (default) or json. Lambdas should use json so
// CloudWatch Logs Insights can query the fields.
func Init() {
	Setup(os.Getenv("PHOTO_LOG_LEVEL"), os.Getenv("PHOTO_LOG_FORMAT"), os.Stderr)
}

// Setup configures the global logger explicitly.
func Setup(level, format string, w io.Writer) {
	SetLevel(level)
	if strings.ToLower(format) == FormatJSON {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// SetLevel sets the global level by name. Unknown names select info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
