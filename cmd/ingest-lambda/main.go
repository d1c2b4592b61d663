// Package main provides the Lambda entry point for photo uploads.
//
// It is triggered by S3 ObjectCreated events on the upload bucket. Each new
// object is read and handed to the ingest pipeline, which stores it under its
// content hash and creates a pending record. Duplicates are acknowledged
// without a second copy being written.
//
// A location can be attached to an upload with the object metadata keys
// latitude, longitude and (optionally) altitude, in decimal degrees and
// meters. When present it takes precedence over EXIF GPS.
//
// Memory: 512 MB
// Timeout: 1 minute
package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fpang/photo-ingest/internal/lambdaboot"
	"github.com/fpang/photo-ingest/internal/metrics"
)

func main() {
	rt := lambdaboot.Boot("ingest-lambda")
	cfg := rt.App.Config
	h := &handler{
		objects:    s3.NewFromConfig(rt.AWS),
		pipeline:   rt.App.Pipeline,
		metrics:    func() *metrics.Recorder { return metrics.New(cfg.MetricsNamespace) },
		skipBucket: cfg.S3Bucket,
		skipPrefix: cfg.S3Prefix,
	}
	lambda.Start(h.handle)
}
