package ingest

import (
	"errors"
	"fmt"
)

// ErrInvalidGPS is returned when caller-supplied coordinates are out of range.
var ErrInvalidGPS = errors.New("invalid GPS coordinates")

// errNotPending is recorded when another worker transitioned the record first.
var errNotPending = errors.New("record no longer pending")

// IntegrityError reports that downloaded bytes do not hash to the record's
// content hash.
type IntegrityError struct {
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: expected %s, got %s", e.Expected, e.Actual)
}

// ServiceError wraps a failure of a collaborator: the object store, the
// record store or the HEIC converter.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Service names used in ServiceError.
const (
	ServiceObjectStore = "object store"
	ServiceRecordStore = "record store"
	ServiceConverter   = "heic converter"
)
