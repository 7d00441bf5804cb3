package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record or collection does not exist.
var ErrNotFound = errors.New("record not found")

// StoreError wraps a storage failure with the operation that produced it.
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Record is a single document in a collection.
type Record struct {
	ID         string
	Collection string
	Data       map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Collection is collection metadata. System collections are hidden from the
// auxiliary context handed to agents.
type Collection struct {
	Name   string
	System bool
}

// ListOptions filters and pages a record listing. Filter keys match
// top-level fields of the record data by equality.
type ListOptions struct {
	Filter  map[string]any
	Sort    string // "created", "-created", "updated", "-updated"
	Page    int
	PerPage int
}

// RecordList is one page of records plus the unpaged total.
type RecordList struct {
	Items []*Record
	Total int
}

// RecordStore is the generic create/read/update/delete document store the
// workflow core persists through.
type RecordStore interface {
	CreateRecord(ctx context.Context, collection string, data map[string]any) (*Record, error)
	// CreateRecordWithID creates a record under a caller-chosen id. A
	// repeated call with the same id replaces the data, which makes
	// keyed workflow effects safe to retry.
	CreateRecordWithID(ctx context.Context, collection, id string, data map[string]any) (*Record, error)
	GetRecord(ctx context.Context, collection, id string) (*Record, error)
	ListRecords(ctx context.Context, collection string, opts ListOptions) (*RecordList, error)
	UpdateRecord(ctx context.Context, collection, id string, patch map[string]any) (*Record, error)
	DeleteRecord(ctx context.Context, collection, id string) error
	ListCollections(ctx context.Context) ([]Collection, error)
	EnsureCollection(ctx context.Context, name string, system bool) error
	Ping(ctx context.Context) error
}
