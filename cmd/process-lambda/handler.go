package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-ingest/internal/ingest"
	"github.com/fpang/photo-ingest/internal/metrics"
)

type batchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (*ingest.BatchResult, error)
}

type handler struct {
	pipeline batchProcessor
	metrics  func() *metrics.Recorder
	warm     bool
}

// scheduleDetail is the optional detail payload of the scheduled rule.
type scheduleDetail struct {
	Limit int `json:"limit"`
}

func limitFrom(event events.CloudWatchEvent) (int, error) {
	if len(event.Detail) == 0 || string(event.Detail) == "null" {
		return 0, nil
	}
	var d scheduleDetail
	if err := json.Unmarshal(event.Detail, &d); err != nil {
		return 0, fmt.Errorf("invalid event detail: %w", err)
	}
	if d.Limit < 0 {
		return 0, fmt.Errorf("invalid event detail: limit %d is negative", d.Limit)
	}
	return d.Limit, nil
}

// handle returns an error only when the batch could not be selected, so
// EventBridge retries; per-record failures are reported in the result.
func (h *handler) handle(ctx context.Context, event events.CloudWatchEvent) (*ingest.BatchResult, error) {
	if !h.warm {
		h.warm = true
		log.Info().Str("function", "process-lambda").Msg("Cold start, first invocation")
	}
	start := time.Now()

	limit, err := limitFrom(event)
	if err != nil {
		return nil, err
	}

	result, err := h.pipeline.ProcessBatch(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("Batch selection failed")
		return nil, err
	}

	log.Info().
		Str("runId", result.RunID).
		Int("attempted", result.Attempted).
		Int("processed", result.Processed).
		Int("failed", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	if err := h.metrics().
		Dimension("Operation", "batch").
		Count("Attempted", result.Attempted).
		Count("Processed", result.Processed).
		Count("Failed", len(result.Errors)).
		Since("DurationMs", start).
		Property("runId", result.RunID).
		Flush(); err != nil {
		log.Warn().Err(err).Msg("Failed to emit metrics")
	}
	return result, nil
}
