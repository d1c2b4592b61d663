package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-ingest/internal/filehandler"
	"github.com/fpang/photo-ingest/internal/ingest"
	"github.com/fpang/photo-ingest/internal/metrics"
	"github.com/fpang/photo-ingest/internal/store"
)

// Object metadata keys carrying an uploader-supplied location. S3 returns
// user metadata keys in lower case without the x-amz-meta- prefix.
const (
	metaLatitude  = "latitude"
	metaLongitude = "longitude"
	metaAltitude  = "altitude"
)

// maxUploadBytes bounds what is read into memory for one upload.
const maxUploadBytes = 50 << 20

var errTooLarge = errors.New("upload too large")

type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

type handler struct {
	objects  objectGetter
	pipeline ingester
	metrics  func() *metrics.Recorder

	// Objects the pipeline itself wrote, when it shares the upload bucket.
	skipBucket string
	skipPrefix string

	warm bool
}

// counts tallies one event for the metrics document.
type counts struct {
	ingested, duplicates, rejected, failed int
	bytes                                  int
}

func (h *handler) handle(ctx context.Context, event events.S3Event) error {
	if !h.warm {
		h.warm = true
		log.Info().Str("function", "ingest-lambda").Msg("Cold start, first invocation")
	}
	start := time.Now()

	var c counts
	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key := record.S3.Object.URLDecodedKey
		if key == "" {
			key = record.S3.Object.Key
		}
		if h.ownOutput(bucket, key) {
			log.Debug().Str("key", key).Msg("Skipping stored object")
			continue
		}

		err := h.ingestObject(ctx, bucket, key, &c)
		if err == nil {
			continue
		}
		// Keep going; one bad upload must not block the rest of the batch.
		if isRejection(err) {
			c.rejected++
			log.Warn().Err(err).Str("bucket", bucket).Str("key", key).Msg("Upload rejected")
			continue
		}
		c.failed++
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to ingest upload")
	}

	if err := h.metrics().
		Dimension("Operation", "ingest").
		Count("Ingested", c.ingested).
		Count("Duplicates", c.duplicates).
		Count("Rejected", c.rejected).
		Count("Failed", c.failed).
		Metric("BytesIngested", float64(c.bytes), metrics.UnitBytes).
		Since("DurationMs", start).
		Flush(); err != nil {
		log.Warn().Err(err).Msg("Failed to emit metrics")
	}
	return nil
}

// isRejection reports whether err is the upload's fault rather than ours.
func isRejection(err error) bool {
	return errors.Is(err, filehandler.ErrUnsupportedFormat) ||
		errors.Is(err, ingest.ErrInvalidGPS) ||
		errors.Is(err, errTooLarge)
}

// ownOutput reports whether key is an object the pipeline stored itself.
// Without a prefix stored objects cannot be told apart from uploads, so
// nothing is skipped; re-ingesting one dedups to AlreadyExists.
func (h *handler) ownOutput(bucket, key string) bool {
	prefix := strings.Trim(h.skipPrefix, "/")
	if prefix == "" || h.skipBucket == "" || bucket != h.skipBucket {
		return false
	}
	return strings.HasPrefix(key, prefix+"/")
}

func (h *handler) ingestObject(ctx context.Context, bucket, key string, c *counts) error {
	filename := path.Base(key)
	if !filehandler.IsImage(path.Ext(filename)) {
		return fmt.Errorf("%w: %s", filehandler.ErrUnsupportedFormat, key)
	}

	out, err := h.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	if len(data) > maxUploadBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", errTooLarge, key, maxUploadBytes)
	}

	gps, err := gpsFromMetadata(out.Metadata)
	if err != nil {
		return err
	}

	res, err := h.pipeline.Ingest(ctx, ingest.Request{Filename: filename, Data: data, GPS: gps})
	if err != nil {
		return err
	}
	if res.Outcome == store.AlreadyExists {
		c.duplicates++
	} else {
		c.ingested++
		c.bytes += len(data)
	}
	log.Info().
		Str("key", key).
		Str("hash", res.Record.ContentHash).
		Str("outcome", res.Outcome.String()).
		Msg("Upload ingested")
	return nil
}

// gpsFromMetadata reads an uploader-supplied location. Both coordinates must
// be present for it to count; altitude is optional.
func gpsFromMetadata(md map[string]string) (*store.GPS, error) {
	latStr, lonStr := md[metaLatitude], md[metaLongitude]
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, fmt.Errorf("%w: both latitude and longitude metadata are required", ingest.ErrInvalidGPS)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude %q", ingest.ErrInvalidGPS, latStr)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude %q", ingest.ErrInvalidGPS, lonStr)
	}
	g := &store.GPS{Latitude: lat, Longitude: lon}

	if altStr := md[metaAltitude]; altStr != "" {
		alt, err := strconv.ParseFloat(strings.TrimSpace(altStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: altitude %q", ingest.ErrInvalidGPS, altStr)
		}
		g.Altitude = &alt
	}
	return g, nil
}
