// Package main provides the Lambda entry point for batch processing.
//
// It runs on an EventBridge schedule. Each invocation takes up to one batch
// of pending records, oldest first, and processes them: integrity check,
// HEIC normalization, EXIF extraction and weather lookup. Records that fail
// stay pending for the next run.
//
// The scheduled rule may pass {"limit": N} as the event detail to override
// the configured batch size.
//
// Container: Heavy (ffmpeg for HEIC conversion)
// Memory: 1 GB
// Timeout: 5 minutes
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/fpang/photo-ingest/internal/lambdaboot"
	"github.com/fpang/photo-ingest/internal/metrics"
)

func main() {
	rt := lambdaboot.Boot("process-lambda")
	ns := rt.App.Config.MetricsNamespace
	h := &handler{
		pipeline: rt.App.Pipeline,
		metrics:  func() *metrics.Recorder { return metrics.New(ns) },
	}
	lambda.Start(h.handle)
}
