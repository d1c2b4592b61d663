package store

import (
	"context"
	"testing"
)

// openSQLite returns a migrated in-memory SQLite store, skipping the test
// when the driver is unavailable (for example a CGO_ENABLED=0 build).
func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQL(ctx, DriverSQLite, ":memory:")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestSQLStore_SQLite(t *testing.T) {
	runRecordStoreContract(t, func(t *testing.T) RecordStore { return openSQLite(t) })
	runQuerierContract(t, func(t *testing.T) interface {
		RecordStore
		Querier
	} {
		return openSQLite(t)
	})
}

func TestSQLStore_MigrateIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	if _, err := OpenSQL(context.Background(), "mysql", "dsn"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		in     string
		want   string
	}{
		{DriverPostgres, "SELECT * FROM images WHERE a = ? AND b = ?", "SELECT * FROM images WHERE a = $1 AND b = $2"},
		{DriverSQLite, "SELECT * FROM images WHERE a = ?", "SELECT * FROM images WHERE a = ?"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		s := &SQLStore{driver: tt.driver}
		if got := s.rebind(tt.in); got != tt.want {
			t.Errorf("rebind(%s, %q) = %q, want %q", tt.driver, tt.in, got, tt.want)
		}
	}
}
