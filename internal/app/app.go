// Package app builds a ready-to-use pipeline from configuration. The CLI
// and both Lambdas share it so they are wired identically.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-ingest/internal/config"
	"github.com/fpang/photo-ingest/internal/exifutil"
	"github.com/fpang/photo-ingest/internal/filehandler"
	"github.com/fpang/photo-ingest/internal/ingest"
	"github.com/fpang/photo-ingest/internal/logging"
	"github.com/fpang/photo-ingest/internal/objectstore"
	"github.com/fpang/photo-ingest/internal/store"
	"github.com/fpang/photo-ingest/internal/weather"
)

// ErrQueryUnsupported is returned by Querier for backends without read-side queries.
var ErrQueryUnsupported = errors.New("record store does not support queries")

// App holds the wired components.
type App struct {
	Config     *config.Config
	Objects    objectstore.Store
	Records    store.RecordStore
	Normalizer *filehandler.Normalizer
	Extractor  *filehandler.Extractor
	Pipeline   *ingest.Pipeline

	sql    *store.SQLStore
	awsCfg *aws.Config
}

// Options overrides how external clients are created, for tests.
type Options struct {
	// AWS, if set, is used instead of loading the default AWS config.
	AWS *aws.Config

	// SSM fetches DatabaseDSNParam. Defaults to a client built from the AWS config.
	SSM ParameterGetter
}

// Build wires every component named by cfg. AWS config is only loaded when
// a backend needs it.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, awsCfg: opts.AWS}

	records, err := a.buildRecords(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.Records = records

	objects, err := a.buildObjects(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Objects = objects

	converter, err := filehandler.NewCommandConverter(cfg.HEICConverter, cfg.HEICCommand)
	if err != nil {
		a.Close()
		return nil, err
	}
	decoder, err := exifutil.NewDecoder(cfg.ExifDecoder)
	if err != nil {
		a.Close()
		return nil, err
	}

	var client *weather.Client
	if cfg.WeatherEnabled {
		client = weather.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout)
	}

	a.Normalizer = filehandler.NewNormalizer(filehandler.NormalizerOptions{
		Converter:   converter,
		JPEGQuality: cfg.JPEGQuality,
	})
	a.Extractor = filehandler.NewExtractor(decoder)
	a.Pipeline = ingest.New(a.Objects, a.Records, a.Normalizer, a.Extractor, weather.NewEnricher(client), ingest.Options{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		TempDir:   cfg.TempDir,
	})
	return a, nil
}

func (a *App) loadAWS(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	a.awsCfg = &cfg
	return cfg, nil
}

func (a *App) buildRecords(ctx context.Context, opts Options) (store.RecordStore, error) {
	cfg := a.Config
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil

	case config.StoreSQLite:
		s, err := store.OpenSQL(ctx, store.DriverSQLite, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		a.sql = s
		return s, nil

	case config.StorePostgres:
		dsn := cfg.DatabaseDSN
		if dsn == "" {
			getter := opts.SSM
			if getter == nil {
				awsCfg, err := a.loadAWS(ctx)
				if err != nil {
					return nil, err
				}
				getter = ssm.NewFromConfig(awsCfg)
			}
			var err error
			if dsn, err = LoadParameter(ctx, getter, cfg.DatabaseDSNParam); err != nil {
				return nil, err
			}
		}
		s, err := store.OpenSQL(ctx, store.DriverPostgres, dsn)
		if err != nil {
			return nil, err
		}
		a.sql = s
		return s, nil

	case config.StoreDynamo:
		awsCfg, err := a.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable, cfg.DynamoPendingIndex), nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStoreBackend, cfg.StoreBackend)
	}
}

func (a *App) buildObjects(ctx context.Context) (objectstore.Store, error) {
	cfg := a.Config
	switch cfg.ObjectBackend {
	case config.ObjectsMemory:
		return objectstore.NewMemoryStore(), nil
	case config.ObjectsFS:
		return objectstore.NewFSStore(cfg.ObjectDir)
	case config.ObjectsS3:
		awsCfg, err := a.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		return objectstore.NewS3Store(objectstore.NewS3Client(awsCfg, cfg.S3Endpoint), cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidObjectBackend, cfg.ObjectBackend)
	}
}

// Querier returns the read-side query interface of the record store.
func (a *App) Querier() (store.Querier, error) {
	q, ok := a.Records.(store.Querier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueryUnsupported, a.Config.StoreBackend)
	}
	return q, nil
}

// SQL returns the SQL store, or nil for other backends.
func (a *App) SQL() *store.SQLStore {
	return a.sql
}

// Close releases database connections.
func (a *App) Close() error {
	if a.sql != nil {
		return a.sql.Close()
	}
	return nil
}

// StartupLog describes the wiring for the startup summary.
func (a *App) StartupLog(name string) *logging.StartupLogger {
	cfg := a.Config
	sl := logging.NewStartupLogger(name).
		Store("records", cfg.StoreBackend).
		Feature("weather", cfg.WeatherEnabled).
		Config("exifDecoder", cfg.ExifDecoder).
		Config("heicConverter", cfg.HEICConverter).
		Config("batchSize", strconv.Itoa(cfg.BatchSize)).
		Config("workers", strconv.Itoa(cfg.Workers)).
		Config("jpegQuality", strconv.Itoa(cfg.JPEGQuality))

	switch cfg.StoreBackend {
	case config.StoreDynamo:
		sl.Store("dynamoTable", cfg.DynamoTable)
	case config.StoreSQLite:
		sl.Store("sqlite", cfg.DatabaseDSN)
	}
	if cfg.DatabaseDSNParam != "" {
		sl.SSMParam("databaseDSN", cfg.DatabaseDSNParam)
	}

	switch cfg.ObjectBackend {
	case config.ObjectsS3:
		sl.Store("objects", "s3://"+cfg.S3Bucket+"/"+cfg.S3Prefix)
		if cfg.S3Endpoint != "" {
			sl.Config("s3Endpoint", cfg.S3Endpoint)
		}
	case config.ObjectsFS:
		sl.Store("objects", cfg.ObjectDir)
	default:
		sl.Store("objects", cfg.ObjectBackend)
	}
	return sl
}
