package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/photo-ingest/internal/config"
	"github.com/fpang/photo-ingest/internal/store"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:  config.StoreMemory,
		ObjectBackend: config.ObjectsMemory,
		HEICConverter: "sips",
		ExifDecoder:   "goexif",
		JPEGQuality:   90,
		BatchSize:     16,
		Workers:       1,
	}
}

func TestBuild_Memory(t *testing.T) {
	a, err := Build(context.Background(), memoryConfig(), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Pipeline == nil || a.Objects == nil || a.Records == nil {
		t.Fatal("components not wired")
	}
	if _, err := a.Querier(); err != nil {
		t.Errorf("memory store should support queries: %v", err)
	}

	batch, err := a.Pipeline.ProcessBatch(context.Background(), 0)
	if err != nil || batch.Attempted != 0 {
		t.Errorf("empty batch = %+v, %v", batch, err)
	}
}

func TestBuild_FSObjects(t *testing.T) {
	cfg := memoryConfig()
	cfg.ObjectBackend = config.ObjectsFS
	cfg.ObjectDir = filepath.Join(t.TempDir(), "objects")

	a, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	loc, err := a.Objects.Put(context.Background(), "k.jpg", []byte("x"), "image/jpeg")
	if err != nil || loc == "" {
		t.Errorf("Put = %q, %v", loc, err)
	}
}

func TestBuild_UnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "mongo"
	if _, err := Build(context.Background(), cfg, Options{}); !errors.Is(err, config.ErrInvalidStoreBackend) {
		t.Errorf("err = %v", err)
	}

	cfg = memoryConfig()
	cfg.ExifDecoder = "exiftool"
	if _, err := Build(context.Background(), cfg, Options{}); err == nil {
		t.Error("expected decoder error")
	}
}

func TestBuild_DynamoUsesProvidedAWSConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = config.StoreDynamo
	cfg.DynamoTable = "photos"

	awsCfg := aws.Config{Region: "us-west-2"}
	a, err := Build(context.Background(), cfg, Options{AWS: &awsCfg})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := a.Records.(*store.DynamoStore); !ok {
		t.Errorf("Records = %T", a.Records)
	}
	if _, err := a.Querier(); !errors.Is(err, ErrQueryUnsupported) {
		t.Errorf("Querier err = %v", err)
	}
}

type fakeSSM struct {
	value string
	err   error
	asked string
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.asked = *in.Name
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)}}, nil
}

func TestLoadParameter(t *testing.T) {
	f := &fakeSSM{value: "postgres://u:p@db/photos"}
	v, err := LoadParameter(context.Background(), f, "/photo/prod/dsn")
	if err != nil || v != f.value || f.asked != "/photo/prod/dsn" {
		t.Errorf("LoadParameter = %q, %v (asked %q)", v, err, f.asked)
	}

	if _, err := LoadParameter(context.Background(), &fakeSSM{}, "/empty"); err == nil {
		t.Error("expected error for empty parameter")
	}
	if _, err := LoadParameter(context.Background(), &fakeSSM{err: errors.New("denied")}, "/x"); err == nil {
		t.Error("expected error from SSM")
	}
}

func TestBuild_PostgresDSNFromSSMError(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = config.StorePostgres
	cfg.DatabaseDSNParam = "/photo/dsn"

	_, err := Build(context.Background(), cfg, Options{SSM: &fakeSSM{err: errors.New("denied")}})
	if err == nil {
		t.Error("expected SSM failure to fail Build")
	}
}
