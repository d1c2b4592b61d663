// Package ingest drives images through the two-phase pipeline.
//
// Phase 1 (Ingest) is the upload fast path: hash, dedup, store the raw
// bytes verbatim and create a pending record. Phase 2 (ProcessBatch) takes
// pending records oldest first and, per record, downloads, verifies, normalizes,
// extracts metadata, enriches with weather and flips the record to processed.
// A failure in one record never aborts the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-ingest/internal/filehandler"
	"github.com/fpang/photo-ingest/internal/objectstore"
	"github.com/fpang/photo-ingest/internal/store"
	"github.com/fpang/photo-ingest/internal/weather"
)

// Defaults applied when Options fields are zero.
const (
	DefaultBatchSize = 16
	DefaultWorkers   = 1
)

// Options tunes a Pipeline.
type Options struct {
	// BatchSize is the number of pending records ProcessBatch takes when
	// called with limit <= 0.
	BatchSize int

	// Workers bounds how many records of one batch are processed at once.
	Workers int

	// TempDir is the parent of per-item scratch directories. Empty means os.TempDir().
	TempDir string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Pipeline wires the object store, record store and metadata stages together.
type Pipeline struct {
	objects    objectstore.Store
	records    store.RecordStore
	normalizer *filehandler.Normalizer
	extractor  *filehandler.Extractor
	enricher   *weather.Enricher

	batchSize int
	workers   int
	tempDir   string
	now       func() time.Time
}

// New creates a Pipeline. A nil normalizer or extractor gets the package
// defaults; a nil enricher disables weather lookups.
func New(objects objectstore.Store, records store.RecordStore, normalizer *filehandler.Normalizer,
	extractor *filehandler.Extractor, enricher *weather.Enricher, opts Options) *Pipeline {
	if normalizer == nil {
		normalizer = filehandler.NewNormalizer(filehandler.NormalizerOptions{})
	}
	if extractor == nil {
		extractor = filehandler.NewExtractor(nil)
	}
	p := &Pipeline{
		objects:    objects,
		records:    records,
		normalizer: normalizer,
		extractor:  extractor,
		enricher:   enricher,
		batchSize:  opts.BatchSize,
		workers:    opts.Workers,
		tempDir:    opts.TempDir,
		now:        opts.Now,
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkers
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Request is one upload.
type Request struct {
	Filename string
	Data     []byte

	// GPS, when set, is authoritative over any GPS in the file's EXIF.
	GPS *store.GPS

	// Immediate processes the upload synchronously and stores the record
	// as processed instead of pending.
	Immediate bool
}

// Result is the stored record and whether this call created it.
type Result struct {
	Record  *store.ImageRecord
	Outcome store.InsertOutcome
}

// Ingest accepts an upload. Duplicate content returns the existing record
// with Outcome AlreadyExists and writes nothing.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if !filehandler.IsImage(filepath.Ext(req.Filename)) {
		return nil, fmt.Errorf("%w: %s", filehandler.ErrUnsupportedFormat, req.Filename)
	}
	if err := validateGPS(req.GPS); err != nil {
		return nil, err
	}
	if req.Immediate {
		return p.ingestImmediate(ctx, req)
	}

	hash := filehandler.HashBytes(req.Data)
	if res, err := p.existing(ctx, hash); res != nil || err != nil {
		return res, err
	}

	key := objectstore.Key(hash, req.Filename)
	locator, err := p.objects.Put(ctx, key, req.Data, objectstore.ContentType(key))
	if err != nil {
		return nil, &ServiceError{Service: ServiceObjectStore, Op: "put", Err: err}
	}

	rec := &store.ImageRecord{
		ContentHash:      hash,
		OriginalFilename: filepath.Base(req.Filename),
		ByteSize:         int64(len(req.Data)),
		StorageLocator:   locator,
		StorageKey:       key,
		GPS:              copyGPS(req.GPS),
		State:            store.StatePending,
		CreatedAt:        p.now().UnixNano(),
	}
	return p.insert(ctx, rec)
}

// ingestImmediate normalizes, extracts and enriches before storing. Dedup
// uses the hash of the normalized JPEG, which is what gets stored.
func (p *Pipeline) ingestImmediate(ctx context.Context, req Request) (*Result, error) {
	dir, err := os.MkdirTemp(p.tempDir, "ingest-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "upload."+filehandler.Ext(req.Filename))
	if err := os.WriteFile(src, req.Data, 0o600); err != nil {
		return nil, fmt.Errorf("write scratch file: %w", err)
	}

	jpg, err := p.normalize(ctx, src)
	if err != nil {
		return nil, err
	}
	ex, err := p.extractor.Extract(jpg)
	if err != nil {
		return nil, err
	}
	logDegraded(ex)

	if res, err := p.existing(ctx, ex.ContentHash); res != nil || err != nil {
		return res, err
	}

	data, err := os.ReadFile(jpg)
	if err != nil {
		return nil, fmt.Errorf("read normalized file: %w", err)
	}

	gps := resolveGPS(req.GPS, ex)
	fields := p.derive(ctx, ex, gps)

	key := ex.ContentHash + ".jpg"
	locator, err := p.objects.Put(ctx, key, data, "image/jpeg")
	if err != nil {
		return nil, &ServiceError{Service: ServiceObjectStore, Op: "put", Err: err}
	}

	rec := &store.ImageRecord{
		ContentHash:      ex.ContentHash,
		OriginalFilename: filepath.Base(req.Filename),
		ByteSize:         ex.ByteSize,
		Width:            fields.Width,
		Height:           fields.Height,
		StorageLocator:   locator,
		StorageKey:       key,
		CaptureTime:      fields.CaptureTime,
		GPS:              fields.GPS,
		Weather:          fields.Weather,
		CameraMake:       fields.CameraMake,
		CameraModel:      fields.CameraModel,
		State:            store.StateProcessed,
		CreatedAt:        fields.ProcessedAt,
		ProcessedAt:      fields.ProcessedAt,
	}
	return p.insert(ctx, rec)
}

func (p *Pipeline) existing(ctx context.Context, hash string) (*Result, error) {
	rec, err := p.records.GetByHash(ctx, hash)
	if err != nil {
		return nil, &ServiceError{Service: ServiceRecordStore, Op: "get", Err: err}
	}
	if rec == nil {
		return nil, nil
	}
	log.Info().Str("hash", hash).Str("state", string(rec.State)).Msg("Duplicate upload, returning existing record")
	return &Result{Record: rec, Outcome: store.AlreadyExists}, nil
}

func (p *Pipeline) insert(ctx context.Context, rec *store.ImageRecord) (*Result, error) {
	outcome, stored, err := p.records.InsertIfAbsent(ctx, rec)
	if err != nil {
		return nil, &ServiceError{Service: ServiceRecordStore, Op: "insert", Err: err}
	}
	log.Info().
		Str("hash", rec.ContentHash).
		Str("filename", rec.OriginalFilename).
		Str("state", string(stored.State)).
		Stringer("outcome", outcome).
		Msg("Image ingested")
	return &Result{Record: stored, Outcome: outcome}, nil
}

// BatchResult summarizes one ProcessBatch call.
type BatchResult struct {
	RunID     string   `json:"runId"`
	Attempted int      `json:"attempted"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`
}

// ProcessBatch processes up to limit pending records, oldest first.
// limit <= 0 uses the configured batch size. Per-record failures are
// collected in Errors as "<hash> failed: <reason>"; only a failure to list
// pending records is returned as an error.
func (p *Pipeline) ProcessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = p.batchSize
	}
	runID := uuid.NewString()
	logger := log.With().Str("runId", runID).Logger()
	start := time.Now()

	pending, err := p.records.ListPending(ctx, limit)
	if err != nil {
		return nil, &ServiceError{Service: ServiceRecordStore, Op: "list pending", Err: err}
	}
	logger.Info().Int("pending", len(pending)).Int("limit", limit).Int("workers", p.workers).Msg("Batch started")

	failures := make([]error, len(pending))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)
	for i, rec := range pending {
		wg.Add(1)
		go func(idx int, rec *store.ImageRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			failures[idx] = p.processOne(ctx, rec)
		}(i, rec)
	}
	wg.Wait()

	result := &BatchResult{RunID: runID, Attempted: len(pending), Errors: []string{}}
	for i, err := range failures {
		hash := pending[i].ContentHash
		if err == nil {
			result.Processed++
			continue
		}
		var ie *IntegrityError
		if errors.As(err, &ie) {
			logger.Error().Str("expected", ie.Expected).Str("actual", ie.Actual).Msg("Integrity check failed")
		} else {
			logger.Warn().Err(err).Str("hash", hash).Msg("Record failed")
		}
		result.Errors = append(result.Errors, fmt.Sprintf("%s failed: %v", hash, err))
	}

	logger.Info().
		Int("attempted", result.Attempted).
		Int("processed", result.Processed).
		Int("failed", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")
	return result, nil
}

// processOne runs one pending record to processed. Its scratch directory is
// removed on every return path.
func (p *Pipeline) processOne(ctx context.Context, rec *store.ImageRecord) error {
	dir, err := os.MkdirTemp(p.tempDir, "batch-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	key := rec.StorageKey
	if key == "" {
		key = objectstore.Key(rec.ContentHash, rec.OriginalFilename)
	}
	data, err := p.objects.Get(ctx, key)
	if err != nil {
		return &ServiceError{Service: ServiceObjectStore, Op: "get", Err: err}
	}
	if actual := filehandler.HashBytes(data); actual != rec.ContentHash {
		return &IntegrityError{Expected: rec.ContentHash, Actual: actual}
	}

	path := filepath.Join(dir, filepath.Base(key))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	if filehandler.FormatOf(path) == filehandler.FormatHEIC {
		if path, err = p.normalize(ctx, path); err != nil {
			return err
		}
	}

	ex, err := p.extractor.Extract(path)
	if err != nil {
		return err
	}
	logDegraded(ex)

	fields := p.derive(ctx, ex, resolveGPS(rec.GPS, ex))
	// Identity and size stay with the stored upload, not the converted rendition.
	fields.ByteSize = int64(len(data))

	n, err := p.records.TryTransitionToProcessed(ctx, rec.ContentHash, fields)
	if err != nil {
		return &ServiceError{Service: ServiceRecordStore, Op: "transition", Err: err}
	}
	if n == 0 {
		return errNotPending
	}
	log.Debug().Str("hash", rec.ContentHash).Bool("weather", fields.Weather != nil).Msg("Record processed")
	return nil
}

// derive builds the processed attributes for ex at gps, including weather.
func (p *Pipeline) derive(ctx context.Context, ex *filehandler.Extraction, gps *store.GPS) store.ProcessedFields {
	fields := store.ProcessedFields{
		ByteSize:    ex.ByteSize,
		Width:       ex.Width,
		Height:      ex.Height,
		CaptureTime: ex.CaptureTime,
		GPS:         gps,
		CameraMake:  ex.CameraMake,
		CameraModel: ex.CameraModel,
		ProcessedAt: p.now().UnixNano(),
	}

	var loc *weather.Location
	if gps != nil {
		loc = &weather.Location{Latitude: gps.Latitude, Longitude: gps.Longitude}
	}
	outcome := p.enricher.Enrich(ctx, loc, ex.CaptureTime)
	if outcome.Enriched() {
		fields.Weather = &store.Weather{
			TemperatureC: outcome.Conditions.TemperatureC,
			HumidityPct:  outcome.Conditions.HumidityPct,
			Condition:    outcome.Conditions.Description,
		}
	} else {
		log.Debug().Str("hash", ex.ContentHash).Str("reason", outcome.Reason).Msg("No weather enrichment")
	}
	return fields
}

func (p *Pipeline) normalize(ctx context.Context, path string) (string, error) {
	out, err := p.normalizer.Normalize(ctx, path)
	if errors.Is(err, filehandler.ErrConversion) {
		return "", &ServiceError{Service: ServiceConverter, Op: "convert", Err: err}
	}
	return out, err
}

// resolveGPS prefers uploaded coordinates over EXIF.
func resolveGPS(uploaded *store.GPS, ex *filehandler.Extraction) *store.GPS {
	if uploaded != nil {
		return copyGPS(uploaded)
	}
	if ex.GPS == nil {
		return nil
	}
	return &store.GPS{Latitude: ex.GPS.Latitude, Longitude: ex.GPS.Longitude, Altitude: ex.GPS.Altitude}
}

func copyGPS(g *store.GPS) *store.GPS {
	if g == nil {
		return nil
	}
	c := *g
	if g.Altitude != nil {
		a := *g.Altitude
		c.Altitude = &a
	}
	return &c
}

func validateGPS(g *store.GPS) error {
	if g == nil {
		return nil
	}
	if !(g.Latitude >= -90 && g.Latitude <= 90) || !(g.Longitude >= -180 && g.Longitude <= 180) {
		return fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidGPS, g.Latitude, g.Longitude)
	}
	return nil
}

func logDegraded(ex *filehandler.Extraction) {
	for field, err := range ex.Degraded {
		log.Warn().Err(err).Str("hash", ex.ContentHash).Str("field", string(field)).Msg("Metadata field unavailable")
	}
}
