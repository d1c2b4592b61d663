package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/fpang/photo-ingest/internal/ingest"
	"github.com/fpang/photo-ingest/internal/metrics"
)

type fakeProcessor struct {
	result *ingest.BatchResult
	err    error
	limits []int
}

func (f *fakeProcessor) ProcessBatch(ctx context.Context, limit int) (*ingest.BatchResult, error) {
	f.limits = append(f.limits, limit)
	return f.result, f.err
}

func newHandler(p batchProcessor, emf *bytes.Buffer) *handler {
	return &handler{
		pipeline: p,
		metrics:  func() *metrics.Recorder { return metrics.NewWithWriter("Test", emf) },
	}
}

func TestHandle_EmitsBatchMetrics(t *testing.T) {
	p := &fakeProcessor{result: &ingest.BatchResult{
		RunID:     "run-1",
		Attempted: 3,
		Processed: 2,
		Errors:    []string{"abc failed: boom"},
	}}
	var emf bytes.Buffer

	got, err := newHandler(p, &emf).handle(context.Background(), events.CloudWatchEvent{})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got.Processed != 2 {
		t.Errorf("Processed = %d", got.Processed)
	}
	if len(p.limits) != 1 || p.limits[0] != 0 {
		t.Errorf("limits = %v, want [0]", p.limits)
	}

	var doc map[string]any
	if err := json.Unmarshal(emf.Bytes(), &doc); err != nil {
		t.Fatalf("metrics line: %v", err)
	}
	for k, want := range map[string]any{
		"Attempted": 3.0, "Processed": 2.0, "Failed": 1.0,
		"Operation": "batch", "runId": "run-1",
	} {
		if doc[k] != want {
			t.Errorf("%s = %v, want %v", k, doc[k], want)
		}
	}
}

func TestHandle_SelectionFailure(t *testing.T) {
	p := &fakeProcessor{err: errors.New("table not found")}
	var emf bytes.Buffer

	if _, err := newHandler(p, &emf).handle(context.Background(), events.CloudWatchEvent{}); err == nil {
		t.Fatal("expected error")
	}
	if emf.Len() != 0 {
		t.Errorf("metrics emitted for a failed selection: %s", emf.String())
	}
}

func TestLimitFrom(t *testing.T) {
	tests := []struct {
		detail  string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"null", 0, false},
		{"{}", 0, false},
		{`{"limit": 50}`, 50, false},
		{`{"limit": -1}`, 0, true},
		{`{"limit": "many"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.detail, func(t *testing.T) {
			got, err := limitFrom(events.CloudWatchEvent{Detail: json.RawMessage(tt.detail)})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("limit = %d, want %d", got, tt.want)
			}
		})
	}
}
