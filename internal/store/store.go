// Package store persists image records: one record per distinct content
// hash, created as pending at upload time and moved to processed exactly
// once by the batch phase.
//
// The store is the only point of coordination between concurrent workers.
// Implementations guarantee two atomic primitives:
//   - InsertIfAbsent: at most one record per content hash
//   - TryTransitionToProcessed: at most one successful pending → processed
//     transition per record
//
// Backends: MemoryStore (tests, single process), SQLStore (Postgres via
// lib/pq, SQLite via go-sqlite3) and DynamoStore (AWS DynamoDB).
package store

import (
	"context"
	"time"
)

// State is the lifecycle state of an ImageRecord.
type State string

const (
	StatePending   State = "pending"
	StateProcessed State = "processed"
)

// GPS is a capture location. Latitude and longitude are always both set;
// Altitude is optional.
type GPS struct {
	Latitude  float64  `json:"latitude" dynamodbav:"latitude"`
	Longitude float64  `json:"longitude" dynamodbav:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty" dynamodbav:"altitude,omitempty"`
}

// Weather is the archive weather at the capture hour. All fields are set
// together or the whole value is absent.
type Weather struct {
	TemperatureC float64 `json:"temperatureC" dynamodbav:"temperatureC"`
	HumidityPct  float64 `json:"humidityPct" dynamodbav:"humidityPct"`
	Condition    string  `json:"condition" dynamodbav:"condition"`
}

// ImageRecord is the metadata record for one distinct image.
type ImageRecord struct {
	ContentHash      string `json:"contentHash" dynamodbav:"contentHash"`
	OriginalFilename string `json:"originalFilename" dynamodbav:"originalFilename"`
	ByteSize         int64  `json:"byteSize" dynamodbav:"byteSize"`
	Width            int    `json:"width,omitempty" dynamodbav:"width,omitempty"`
	Height           int    `json:"height,omitempty" dynamodbav:"height,omitempty"`
	StorageLocator   string `json:"storageLocator" dynamodbav:"storageLocator"`
	StorageKey       string `json:"storageKey" dynamodbav:"storageKey"`

	CaptureTime string   `json:"captureTime,omitempty" dynamodbav:"captureTime,omitempty"` // YYYY:MM:DD HH:MM:SS
	GPS         *GPS     `json:"gps,omitempty" dynamodbav:"gps,omitempty"`
	Weather     *Weather `json:"weather,omitempty" dynamodbav:"weather,omitempty"`
	CameraMake  string   `json:"cameraMake,omitempty" dynamodbav:"cameraMake,omitempty"`
	CameraModel string   `json:"cameraModel,omitempty" dynamodbav:"cameraModel,omitempty"`

	State       State `json:"processingState" dynamodbav:"processingState"`
	CreatedAt   int64 `json:"createdAt" dynamodbav:"createdAt"`                         // Unix nanoseconds
	ProcessedAt int64 `json:"processedAt,omitempty" dynamodbav:"processedAt,omitempty"` // Unix nanoseconds
}

// Created returns CreatedAt as a time.Time.
func (r *ImageRecord) Created() time.Time {
	return time.Unix(0, r.CreatedAt)
}

// ProcessedFields are the derived attributes written by the batch phase.
type ProcessedFields struct {
	OriginalFilename string
	ByteSize         int64
	Width            int
	Height           int
	CaptureTime      string
	GPS              *GPS
	Weather          *Weather
	CameraMake       string
	CameraModel      string
	ProcessedAt      int64
}

// apply copies f onto r and marks r processed.
func (f ProcessedFields) apply(r *ImageRecord) {
	if f.OriginalFilename != "" {
		r.OriginalFilename = f.OriginalFilename
	}
	r.ByteSize = f.ByteSize
	r.Width = f.Width
	r.Height = f.Height
	r.CaptureTime = f.CaptureTime
	r.GPS = f.GPS
	r.Weather = f.Weather
	r.CameraMake = f.CameraMake
	r.CameraModel = f.CameraModel
	r.ProcessedAt = f.ProcessedAt
	r.State = StateProcessed
}

// InsertOutcome reports whether InsertIfAbsent created a record.
type InsertOutcome int

const (
	Created InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// RecordStore is the persistence contract of the ingest pipeline.
// Each method is safe for concurrent use.
type RecordStore interface {
	// InsertIfAbsent stores rec unless a record with the same hash exists.
	// It returns the stored record: rec on Created, the existing one on
	// AlreadyExists. A duplicate is not an error.
	InsertIfAbsent(ctx context.Context, rec *ImageRecord) (InsertOutcome, *ImageRecord, error)

	// GetByHash retrieves a record in any state. Returns nil, nil if not found.
	GetByHash(ctx context.Context, hash string) (*ImageRecord, error)

	// ListPending returns up to limit pending records, oldest CreatedAt first.
	ListPending(ctx context.Context, limit int) ([]*ImageRecord, error)

	// TryTransitionToProcessed writes fields and flips the record to processed
	// only if it is still pending. Returns the number of records changed (0 or 1).
	TryTransitionToProcessed(ctx context.Context, hash string, fields ProcessedFields) (int64, error)
}

// DaySummary counts uploads on one calendar day (UTC).
type DaySummary struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Querier is the read side used by the CLI for browsing processed records.
type Querier interface {
	// Recent returns up to limit processed records, newest upload first.
	Recent(ctx context.Context, limit int) ([]*ImageRecord, error)

	// ByCaptureDate returns processed records captured on days start..end
	// inclusive (YYYY-MM-DD), ordered by capture time.
	ByCaptureDate(ctx context.Context, start, end string) ([]*ImageRecord, error)

	// Near returns processed records within radiusKm of a point, nearest first.
	Near(ctx context.Context, lat, lon, radiusKm float64) ([]*ImageRecord, error)

	// UploadSummary counts records per upload day, newest day first.
	UploadSummary(ctx context.Context) ([]DaySummary, error)
}
