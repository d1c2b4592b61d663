package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in a map. It is used by tests and by the CLI
// when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*ImageRecord
}

// Compile-time interface checks.
var (
	_ RecordStore = (*MemoryStore)(nil)
	_ Querier     = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*ImageRecord)}
}

func clone(r *ImageRecord) *ImageRecord {
	c := *r
	if r.GPS != nil {
		g := *r.GPS
		if r.GPS.Altitude != nil {
			a := *r.GPS.Altitude
			g.Altitude = &a
		}
		c.GPS = &g
	}
	if r.Weather != nil {
		w := *r.Weather
		c.Weather = &w
	}
	return &c
}

func (s *MemoryStore) InsertIfAbsent(ctx context.Context, rec *ImageRecord) (InsertOutcome, *ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.ContentHash]; ok {
		return AlreadyExists, clone(existing), nil
	}
	s.records[rec.ContentHash] = clone(rec)
	return Created, rec, nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[hash]; ok {
		return clone(r), nil
	}
	return nil, nil
}

func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]*ImageRecord, error) {
	recs := s.selectSorted(func(r *ImageRecord) bool { return r.State == StatePending },
		func(a, b *ImageRecord) bool { return a.CreatedAt < b.CreatedAt })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *MemoryStore) TryTransitionToProcessed(ctx context.Context, hash string, fields ProcessedFields) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[hash]
	if !ok || r.State != StatePending {
		return 0, nil
	}
	fields.apply(r)
	return 1, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]*ImageRecord, error) {
	recs := s.selectSorted(isProcessed, func(a, b *ImageRecord) bool { return a.CreatedAt > b.CreatedAt })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *MemoryStore) ByCaptureDate(ctx context.Context, start, end string) ([]*ImageRecord, error) {
	lo, hi, err := captureBounds(start, end)
	if err != nil {
		return nil, err
	}
	return s.selectSorted(func(r *ImageRecord) bool {
		return isProcessed(r) && r.CaptureTime >= lo && r.CaptureTime < hi
	}, func(a, b *ImageRecord) bool { return a.CaptureTime < b.CaptureTime }), nil
}

func (s *MemoryStore) Near(ctx context.Context, lat, lon, radiusKm float64) ([]*ImageRecord, error) {
	return filterNear(s.selectSorted(isProcessed, nil), lat, lon, radiusKm), nil
}

func (s *MemoryStore) UploadSummary(ctx context.Context) ([]DaySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := make([]int64, 0, len(s.records))
	for _, r := range s.records {
		ts = append(ts, r.CreatedAt)
	}
	return summarize(ts), nil
}

func isProcessed(r *ImageRecord) bool {
	return r.State == StateProcessed
}

func (s *MemoryStore) selectSorted(keep func(*ImageRecord) bool, less func(a, b *ImageRecord) bool) []*ImageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ImageRecord
	for _, r := range s.records {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if less != nil && less(out[i], out[j]) != less(out[j], out[i]) {
			return less(out[i], out[j])
		}
		return out[i].ContentHash < out[j].ContentHash
	})
	return out
}
