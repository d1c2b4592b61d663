// Package objectstore holds uploaded and normalized image bytes, addressed
// by content hash. Backends: S3Store (AWS S3 or any S3-compatible service),
// FSStore (local directory) and MemoryStore (tests).
package objectstore

import (
	"context"
	"errors"
	"path"

	"github.com/fpang/photo-ingest/internal/filehandler"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store.
type Store interface {
	// Put writes data at key and returns a locator string describing where
	// the object lives (for example "s3://bucket/key").
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get reads the object at key. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Key returns the object key for content with the given hash, keeping the
// lowercased extension of filename: "{hash}.{ext}".
func Key(hash, filename string) string {
	ext := filehandler.Ext(filename)
	if ext == "" {
		return hash
	}
	return hash + "." + ext
}

// ContentType returns the MIME type for the object key, falling back to
// application/octet-stream.
func ContentType(key string) string {
	if mime, err := filehandler.GetMIMEType(path.Ext(key)); err == nil {
		return mime
	}
	return "application/octet-stream"
}
