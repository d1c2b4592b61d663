package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog/log"
)

// SQL drivers accepted by OpenSQL.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	content_hash      VARCHAR(64) PRIMARY KEY,
	original_filename TEXT NOT NULL,
	byte_size         BIGINT NOT NULL,
	width             INTEGER,
	height            INTEGER,
	storage_locator   TEXT NOT NULL,
	storage_key       TEXT NOT NULL,
	capture_time      TEXT,
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	altitude          DOUBLE PRECISION,
	temperature_c     DOUBLE PRECISION,
	humidity_pct      DOUBLE PRECISION,
	weather_desc      TEXT,
	camera_make       TEXT,
	camera_model      TEXT,
	processing_state  VARCHAR(16) NOT NULL,
	created_at        BIGINT NOT NULL,
	processed_at      BIGINT
);
CREATE INDEX IF NOT EXISTS images_state_created ON images (processing_state, created_at);
CREATE INDEX IF NOT EXISTS images_capture_time ON images (capture_time);
`

const selectColumns = `content_hash, original_filename, byte_size, width, height,
	storage_locator, storage_key, capture_time, latitude, longitude, altitude,
	temperature_c, humidity_pct, weather_desc, camera_make, camera_model,
	processing_state, created_at, processed_at`

// SQLStore implements RecordStore and Querier over database/sql.
// Queries are written with "?" placeholders and rebound for Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Compile-time interface checks.
var (
	_ RecordStore = (*SQLStore)(nil)
	_ Querier     = (*SQLStore)(nil)
)

// OpenSQL opens a database and verifies the connection.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; also keeps ":memory:" databases on one connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewSQLStore(db, driver), nil
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the images table and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Debug().Str("driver", s.driver).Msg("Image schema ready")
	return nil
}

// rebind rewrites "?" placeholders as "$n" for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) InsertIfAbsent(ctx context.Context, rec *ImageRecord) (InsertOutcome, *ImageRecord, error) {
	lat, lon, alt := gpsColumns(rec.GPS)
	temp, hum, desc := weatherColumns(rec.Weather)

	res, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO images (
		content_hash, original_filename, byte_size, width, height,
		storage_locator, storage_key, capture_time, latitude, longitude, altitude,
		temperature_c, humidity_pct, weather_desc, camera_make, camera_model,
		processing_state, created_at, processed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (content_hash) DO NOTHING`),
		rec.ContentHash, rec.OriginalFilename, rec.ByteSize, nullInt(rec.Width), nullInt(rec.Height),
		rec.StorageLocator, rec.StorageKey, nullString(rec.CaptureTime), lat, lon, alt,
		temp, hum, desc, nullString(rec.CameraMake), nullString(rec.CameraModel),
		string(rec.State), rec.CreatedAt, nullInt64(rec.ProcessedAt),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("insert image %s: %w", rec.ContentHash, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("insert image %s: %w", rec.ContentHash, err)
	}
	if n == 1 {
		return Created, rec, nil
	}

	existing, err := s.GetByHash(ctx, rec.ContentHash)
	if err != nil {
		return 0, nil, err
	}
	if existing == nil {
		return 0, nil, fmt.Errorf("insert image %s: conflict but no existing row", rec.ContentHash)
	}
	return AlreadyExists, existing, nil
}

func (s *SQLStore) GetByHash(ctx context.Context, hash string) (*ImageRecord, error) {
	recs, err := s.query(ctx, `SELECT `+selectColumns+` FROM images WHERE content_hash = ?`, hash)
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", hash, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]*ImageRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM images WHERE processing_state = ? ORDER BY created_at ASC, content_hash ASC`
	args := []any{string(StatePending)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	recs, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return recs, nil
}

func (s *SQLStore) TryTransitionToProcessed(ctx context.Context, hash string, f ProcessedFields) (int64, error) {
	lat, lon, alt := gpsColumns(f.GPS)
	temp, hum, desc := weatherColumns(f.Weather)

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE images SET
		original_filename = COALESCE(?, original_filename),
		byte_size = ?, width = ?, height = ?, capture_time = ?,
		latitude = ?, longitude = ?, altitude = ?,
		temperature_c = ?, humidity_pct = ?, weather_desc = ?,
		camera_make = ?, camera_model = ?,
		processing_state = ?, processed_at = ?
	WHERE content_hash = ? AND processing_state = ?`),
		nullString(f.OriginalFilename),
		f.ByteSize, nullInt(f.Width), nullInt(f.Height), nullString(f.CaptureTime),
		lat, lon, alt,
		temp, hum, desc,
		nullString(f.CameraMake), nullString(f.CameraModel),
		string(StateProcessed), nullInt64(f.ProcessedAt),
		hash, string(StatePending),
	)
	if err != nil {
		return 0, fmt.Errorf("transition image %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("transition image %s: %w", hash, err)
	}
	return n, nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]*ImageRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM images WHERE processing_state = ? ORDER BY created_at DESC, content_hash ASC`
	args := []any{string(StateProcessed)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(ctx, q, args...)
}

func (s *SQLStore) ByCaptureDate(ctx context.Context, start, end string) ([]*ImageRecord, error) {
	lo, hi, err := captureBounds(start, end)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, `SELECT `+selectColumns+` FROM images
		WHERE processing_state = ? AND capture_time >= ? AND capture_time < ?
		ORDER BY capture_time ASC, content_hash ASC`,
		string(StateProcessed), lo, hi)
}

// Near filters in Go so the same query works on SQLite builds without math functions.
func (s *SQLStore) Near(ctx context.Context, lat, lon, radiusKm float64) ([]*ImageRecord, error) {
	recs, err := s.query(ctx, `SELECT `+selectColumns+` FROM images
		WHERE processing_state = ? AND latitude IS NOT NULL AND longitude IS NOT NULL`,
		string(StateProcessed))
	if err != nil {
		return nil, err
	}
	return filterNear(recs, lat, lon, radiusKm), nil
}

func (s *SQLStore) UploadSummary(ctx context.Context) ([]DaySummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT created_at FROM images`)
	if err != nil {
		return nil, fmt.Errorf("upload summary: %w", err)
	}
	defer rows.Close()

	var ts []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("upload summary: %w", err)
		}
		ts = append(ts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("upload summary: %w", err)
	}
	return summarize(ts), nil
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]*ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (*ImageRecord, error) {
	var (
		rec                      ImageRecord
		width, height            sql.NullInt64
		captureTime, desc        sql.NullString
		cameraMake, cameraModel  sql.NullString
		lat, lon, alt, temp, hum sql.NullFloat64
		state                    string
		processedAt              sql.NullInt64
	)
	err := rows.Scan(
		&rec.ContentHash, &rec.OriginalFilename, &rec.ByteSize, &width, &height,
		&rec.StorageLocator, &rec.StorageKey, &captureTime, &lat, &lon, &alt,
		&temp, &hum, &desc, &cameraMake, &cameraModel,
		&state, &rec.CreatedAt, &processedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan image: %w", err)
	}

	rec.Width = int(width.Int64)
	rec.Height = int(height.Int64)
	rec.CaptureTime = captureTime.String
	rec.CameraMake = cameraMake.String
	rec.CameraModel = cameraModel.String
	rec.State = State(state)
	rec.ProcessedAt = processedAt.Int64

	if lat.Valid && lon.Valid {
		rec.GPS = &GPS{Latitude: lat.Float64, Longitude: lon.Float64}
		if alt.Valid {
			a := alt.Float64
			rec.GPS.Altitude = &a
		}
	}
	if temp.Valid && hum.Valid && desc.Valid {
		rec.Weather = &Weather{TemperatureC: temp.Float64, HumidityPct: hum.Float64, Condition: desc.String}
	}
	return &rec, nil
}

func gpsColumns(g *GPS) (lat, lon, alt sql.NullFloat64) {
	if g == nil {
		return
	}
	lat = sql.NullFloat64{Float64: g.Latitude, Valid: true}
	lon = sql.NullFloat64{Float64: g.Longitude, Valid: true}
	if g.Altitude != nil {
		alt = sql.NullFloat64{Float64: *g.Altitude, Valid: true}
	}
	return
}

func weatherColumns(w *Weather) (temp, hum sql.NullFloat64, desc sql.NullString) {
	if w == nil {
		return
	}
	return sql.NullFloat64{Float64: w.TemperatureC, Valid: true},
		sql.NullFloat64{Float64: w.HumidityPct, Valid: true},
		sql.NullString{String: w.Condition, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
