// Package config loads photo-ingest settings. Values come from an optional
// YAML file, overridden by PHOTO_* environment variables, falling back to
// the Default* constants.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fpang/photo-ingest/internal/exifutil"
	"github.com/fpang/photo-ingest/internal/filehandler"
	"github.com/fpang/photo-ingest/internal/ingest"
	"github.com/fpang/photo-ingest/internal/weather"
)

// Record store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreDynamo   = "dynamodb"
)

// Object store backends.
const (
	ObjectsFS     = "fs"
	ObjectsS3     = "s3"
	ObjectsMemory = "memory"
)

// Config holds all settings for the CLI and the Lambdas.
type Config struct {
	// Record store
	StoreBackend       string `koanf:"store_backend"`
	DatabaseDSN        string `koanf:"database_dsn"`
	DatabaseDSNParam   string `koanf:"database_dsn_param"` // SSM parameter holding the DSN
	DynamoTable        string `koanf:"dynamo_table"`
	DynamoPendingIndex string `koanf:"dynamo_pending_index"`

	// Object store
	ObjectBackend string `koanf:"object_backend"`
	ObjectDir     string `koanf:"object_dir"`
	S3Bucket      string `koanf:"s3_bucket"`
	S3Prefix      string `koanf:"s3_prefix"`
	S3Endpoint    string `koanf:"s3_endpoint"` // S3-compatible endpoint, path-style

	// Weather
	WeatherEnabled bool          `koanf:"weather_enabled"`
	WeatherBaseURL string        `koanf:"weather_base_url"`
	WeatherTimeout time.Duration `koanf:"weather_timeout"`

	// Processing
	HEICConverter string   `koanf:"heic_converter"` // sips or ffmpeg
	HEICCommand   []string `koanf:"heic_command"`   // overrides HEICConverter; {src} and {dst} are substituted
	ExifDecoder   string   `koanf:"exif_decoder"`
	JPEGQuality   int      `koanf:"jpeg_quality"`
	BatchSize     int      `koanf:"batch_size"`
	Workers       int      `koanf:"workers"`
	TempDir       string   `koanf:"temp_dir"`

	MetricsNamespace string `koanf:"metrics_namespace"`
}

// Configuration validation errors.
var (
	ErrInvalidStoreBackend  = errors.New("PHOTO_STORE_BACKEND must be memory, sqlite, postgres or dynamodb")
	ErrInvalidObjectBackend = errors.New("PHOTO_OBJECT_BACKEND must be fs, s3 or memory")
	ErrMissingDatabaseDSN   = errors.New("PHOTO_DATABASE_DSN or PHOTO_DATABASE_DSN_PARAM is required for postgres")
	ErrMissingDynamoTable   = errors.New("PHOTO_DYNAMO_TABLE is required for dynamodb")
	ErrMissingS3Bucket      = errors.New("PHOTO_S3_BUCKET is required for s3")
	ErrMissingObjectDir     = errors.New("PHOTO_OBJECT_DIR is required for fs")
	ErrInvalidJPEGQuality   = errors.New("PHOTO_JPEG_QUALITY must be between 1 and 100")
	ErrInvalidBatchSize     = errors.New("PHOTO_BATCH_SIZE must be positive")
	ErrInvalidWorkers       = errors.New("PHOTO_WORKERS must be positive")
	ErrInvalidDecoder       = errors.New("PHOTO_EXIF_DECODER must be goexif or imagemeta")
	ErrInvalidConverter     = errors.New("PHOTO_HEIC_CONVERTER must be sips or ffmpeg")
)

// Default values.
const (
	DefaultStoreBackend     = StoreSQLite
	DefaultSQLiteDSN        = "photos.db"
	DefaultObjectBackend    = ObjectsFS
	DefaultObjectDir        = "objects"
	DefaultWeatherEnabled   = true
	DefaultWeatherBaseURL   = weather.DefaultBaseURL
	DefaultWeatherTimeout   = weather.DefaultTimeout
	DefaultHEICConverter    = filehandler.ConverterSips
	DefaultExifDecoder      = exifutil.DecoderGoexif
	DefaultJPEGQuality      = filehandler.DefaultJPEGQuality
	DefaultBatchSize        = ingest.DefaultBatchSize
	DefaultWorkers          = ingest.DefaultWorkers
	DefaultMetricsNamespace = "PhotoIngest"
)

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values. Returns the config
// and every problem found (empty if valid). A file that cannot be read is
// returned as the only error.
func Load(path string) (*Config, []error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", path, err)}
		}
	}

	var errs []error
	intVal := func(env, key string, def int) int {
		v, err := envInt(env, k, key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		StoreBackend:       strings.ToLower(envString("PHOTO_STORE_BACKEND", k, "store_backend", DefaultStoreBackend)),
		DatabaseDSN:        envString("PHOTO_DATABASE_DSN", k, "database_dsn", ""),
		DatabaseDSNParam:   envString("PHOTO_DATABASE_DSN_PARAM", k, "database_dsn_param", ""),
		DynamoTable:        envString("PHOTO_DYNAMO_TABLE", k, "dynamo_table", ""),
		DynamoPendingIndex: envString("PHOTO_DYNAMO_PENDING_INDEX", k, "dynamo_pending_index", ""),

		ObjectBackend: strings.ToLower(envString("PHOTO_OBJECT_BACKEND", k, "object_backend", DefaultObjectBackend)),
		ObjectDir:     envString("PHOTO_OBJECT_DIR", k, "object_dir", DefaultObjectDir),
		S3Bucket:      envString("PHOTO_S3_BUCKET", k, "s3_bucket", ""),
		S3Prefix:      strings.Trim(envString("PHOTO_S3_PREFIX", k, "s3_prefix", ""), "/"),
		S3Endpoint:    envString("PHOTO_S3_ENDPOINT", k, "s3_endpoint", ""),

		WeatherBaseURL: envString("PHOTO_WEATHER_BASE_URL", k, "weather_base_url", DefaultWeatherBaseURL),

		HEICConverter: strings.ToLower(envString("PHOTO_HEIC_CONVERTER", k, "heic_converter", DefaultHEICConverter)),
		HEICCommand:   k.Strings("heic_command"),
		ExifDecoder:   strings.ToLower(envString("PHOTO_EXIF_DECODER", k, "exif_decoder", DefaultExifDecoder)),
		JPEGQuality:   intVal("PHOTO_JPEG_QUALITY", "jpeg_quality", DefaultJPEGQuality),
		BatchSize:     intVal("PHOTO_BATCH_SIZE", "batch_size", DefaultBatchSize),
		Workers:       intVal("PHOTO_WORKERS", "workers", DefaultWorkers),
		TempDir:       envString("PHOTO_TEMP_DIR", k, "temp_dir", ""),

		MetricsNamespace: envString("PHOTO_METRICS_NAMESPACE", k, "metrics_namespace", DefaultMetricsNamespace),
	}
	if cmd := os.Getenv("PHOTO_HEIC_COMMAND"); cmd != "" {
		cfg.HEICCommand = strings.Fields(cmd)
	}

	enabled, err := envBool("PHOTO_WEATHER_ENABLED", k, "weather_enabled", DefaultWeatherEnabled)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.WeatherEnabled = enabled

	timeout, err := envDuration("PHOTO_WEATHER_TIMEOUT", k, "weather_timeout", DefaultWeatherTimeout)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.WeatherTimeout = timeout

	if cfg.StoreBackend == StoreSQLite && cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = DefaultSQLiteDSN
	}

	return cfg, append(errs, cfg.Validate()...)
}

// Validate checks the config and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	switch c.StoreBackend {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseDSN == "" && c.DatabaseDSNParam == "" {
			errs = append(errs, ErrMissingDatabaseDSN)
		}
	case StoreDynamo:
		if c.DynamoTable == "" {
			errs = append(errs, ErrMissingDynamoTable)
		}
	default:
		errs = append(errs, ErrInvalidStoreBackend)
	}

	switch c.ObjectBackend {
	case ObjectsMemory:
	case ObjectsFS:
		if c.ObjectDir == "" {
			errs = append(errs, ErrMissingObjectDir)
		}
	case ObjectsS3:
		if c.S3Bucket == "" {
			errs = append(errs, ErrMissingS3Bucket)
		}
	default:
		errs = append(errs, ErrInvalidObjectBackend)
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, ErrInvalidJPEGQuality)
	}
	if c.BatchSize < 1 {
		errs = append(errs, ErrInvalidBatchSize)
	}
	if c.Workers < 1 {
		errs = append(errs, ErrInvalidWorkers)
	}
	if _, err := exifutil.NewDecoder(c.ExifDecoder); err != nil {
		errs = append(errs, ErrInvalidDecoder)
	}
	if len(c.HEICCommand) == 0 {
		if _, err := filehandler.NewCommandConverter(c.HEICConverter, nil); err != nil {
			errs = append(errs, ErrInvalidConverter)
		}
	}
	return errs
}

func envString(env string, k *koanf.Koanf, key, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if v := k.String(key); v != "" {
		return v
	}
	return def
}

func envInt(env string, k *koanf.Koanf, key string, def int) (int, error) {
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return def, fmt.Errorf("%s must be a valid integer, got %q", env, v)
		}
		return n, nil
	}
	if k.Exists(key) {
		return k.Int(key), nil
	}
	return def, nil
}

func envBool(env string, k *koanf.Koanf, key string, def bool) (bool, error) {
	if v := os.Getenv(env); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return def, fmt.Errorf("%s must be a boolean, got %q", env, v)
	}
	if k.Exists(key) {
		return k.Bool(key), nil
	}
	return def, nil
}

// envDuration accepts Go durations ("15s") or a bare number of seconds.
func envDuration(env string, k *koanf.Koanf, key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(env)
	if raw == "" {
		raw = k.String(key)
	}
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%s must be a positive duration, got %q", env, raw)
	}
	return d, nil
}
