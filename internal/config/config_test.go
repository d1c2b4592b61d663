package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load errors: %v", errs)
	}
	if cfg.StoreBackend != DefaultStoreBackend || cfg.DatabaseDSN != DefaultSQLiteDSN {
		t.Errorf("store = %s %s", cfg.StoreBackend, cfg.DatabaseDSN)
	}
	if cfg.ObjectBackend != ObjectsFS || cfg.ObjectDir != DefaultObjectDir {
		t.Errorf("objects = %s %s", cfg.ObjectBackend, cfg.ObjectDir)
	}
	if !cfg.WeatherEnabled || cfg.WeatherTimeout != DefaultWeatherTimeout {
		t.Errorf("weather = %v %v", cfg.WeatherEnabled, cfg.WeatherTimeout)
	}
	if cfg.BatchSize != 16 || cfg.Workers != 1 || cfg.JPEGQuality != 90 {
		t.Errorf("processing = %d %d %d", cfg.BatchSize, cfg.Workers, cfg.JPEGQuality)
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeYAML(t, `
store_backend: postgres
database_dsn: postgres://file/photos
object_backend: s3
s3_bucket: file-bucket
s3_prefix: /originals/
batch_size: 32
weather_enabled: false
weather_timeout: 3s
heic_command: ["heif-convert", "{src}", "{dst}"]
`)
	t.Setenv("PHOTO_S3_BUCKET", "env-bucket")
	t.Setenv("PHOTO_WORKERS", "4")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load errors: %v", errs)
	}
	if cfg.StoreBackend != StorePostgres || cfg.DatabaseDSN != "postgres://file/photos" {
		t.Errorf("store = %s %s", cfg.StoreBackend, cfg.DatabaseDSN)
	}
	if cfg.S3Bucket != "env-bucket" {
		t.Errorf("S3Bucket = %q, env should win", cfg.S3Bucket)
	}
	if cfg.S3Prefix != "originals" {
		t.Errorf("S3Prefix = %q", cfg.S3Prefix)
	}
	if cfg.BatchSize != 32 || cfg.Workers != 4 {
		t.Errorf("BatchSize = %d, Workers = %d", cfg.BatchSize, cfg.Workers)
	}
	if cfg.WeatherEnabled || cfg.WeatherTimeout != 3*time.Second {
		t.Errorf("weather = %v %v", cfg.WeatherEnabled, cfg.WeatherTimeout)
	}
	if len(cfg.HEICCommand) != 3 || cfg.HEICCommand[0] != "heif-convert" {
		t.Errorf("HEICCommand = %v", cfg.HEICCommand)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, errs := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one load error", errs)
	}
}

func TestLoad_BadEnvValues(t *testing.T) {
	t.Setenv("PHOTO_BATCH_SIZE", "lots")
	t.Setenv("PHOTO_WEATHER_ENABLED", "maybe")
	t.Setenv("PHOTO_WEATHER_TIMEOUT", "soon")

	_, errs := Load("")
	if len(errs) != 3 {
		t.Errorf("errs = %v, want 3", errs)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreBackend:  StoreMemory,
			ObjectBackend: ObjectsMemory,
			ExifDecoder:   "goexif",
			HEICConverter: "sips",
			JPEGQuality:   90,
			BatchSize:     16,
			Workers:       1,
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad store", func(c *Config) { c.StoreBackend = "mongo" }, ErrInvalidStoreBackend},
		{"postgres without dsn", func(c *Config) { c.StoreBackend = StorePostgres }, ErrMissingDatabaseDSN},
		{"postgres with ssm param", func(c *Config) { c.StoreBackend = StorePostgres; c.DatabaseDSNParam = "/photo/dsn" }, nil},
		{"dynamo without table", func(c *Config) { c.StoreBackend = StoreDynamo }, ErrMissingDynamoTable},
		{"s3 without bucket", func(c *Config) { c.ObjectBackend = ObjectsS3 }, ErrMissingS3Bucket},
		{"fs without dir", func(c *Config) { c.ObjectBackend = ObjectsFS }, ErrMissingObjectDir},
		{"bad objects", func(c *Config) { c.ObjectBackend = "ftp" }, ErrInvalidObjectBackend},
		{"quality", func(c *Config) { c.JPEGQuality = 101 }, ErrInvalidJPEGQuality},
		{"batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"workers", func(c *Config) { c.Workers = -1 }, ErrInvalidWorkers},
		{"decoder", func(c *Config) { c.ExifDecoder = "exiftool" }, ErrInvalidDecoder},
		{"converter", func(c *Config) { c.HEICConverter = "magick" }, ErrInvalidConverter},
		{"custom command skips preset check", func(c *Config) { c.HEICConverter = "magick"; c.HEICCommand = []string{"magick", "{src}", "{dst}"} }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			errs := cfg.Validate()
			if tt.want == nil {
				if len(errs) != 0 {
					t.Errorf("errs = %v, want none", errs)
				}
				return
			}
			if len(errs) != 1 || !errors.Is(errs[0], tt.want) {
				t.Errorf("errs = %v, want [%v]", errs, tt.want)
			}
		})
	}
}
