package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecordStore is a PostgreSQL implementation of the RecordStore
// interface. All collections share one records table; document data lives in
// a JSONB column.
type PostgresRecordStore struct {
	db *pgxpool.Pool
}

// NewPostgresRecordStore creates a new PostgresRecordStore.
func NewPostgresRecordStore(db *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// Schema creates the tables the store needs. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	is_system  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS records (
	id         TEXT NOT NULL,
	collection TEXT NOT NULL REFERENCES collections(name),
	data       JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_data ON records USING gin (data);
`

// Init applies the schema and registers the system collections. Safe to run
// repeatedly.
func (s *PostgresRecordStore) Init(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return &StoreError{Op: "init", Err: err}
	}
	for name := range SystemCollections() {
		if err := s.EnsureCollection(ctx, name, true); err != nil {
			return err
		}
	}
	if err := s.EnsureCollection(ctx, CollectionInboxItems, false); err != nil {
		return err
	}
	return nil
}

// CreateRecord creates a record with a generated id.
func (s *PostgresRecordStore) CreateRecord(ctx context.Context, collection string, data map[string]any) (*Record, error) {
	return s.CreateRecordWithID(ctx, collection, uuid.NewString(), data)
}

// CreateRecordWithID creates or replaces the record with the given id.
func (s *PostgresRecordStore) CreateRecordWithID(ctx context.Context, collection, id string, data map[string]any) (*Record, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, &StoreError{Op: "create", Collection: collection, Err: err}
	}

	record := &Record{ID: id, Collection: collection, Data: data}
	err = s.db.QueryRow(ctx,
		`INSERT INTO records (id, collection, data) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
		 RETURNING created_at, updated_at`,
		id, collection, payload,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, &StoreError{Op: "create", Collection: collection, Err: err}
	}
	return record, nil
}

// GetRecord retrieves a single record by id.
func (s *PostgresRecordStore) GetRecord(ctx context.Context, collection, id string) (*Record, error) {
	record := &Record{ID: id, Collection: collection}
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT data, created_at, updated_at FROM records WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&payload, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &StoreError{Op: "get", Collection: collection, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Collection: collection, Err: err}
	}
	if err := json.Unmarshal(payload, &record.Data); err != nil {
		return nil, &StoreError{Op: "get", Collection: collection, Err: err}
	}
	return record, nil
}

// ListRecords returns one page of records matching the filter.
func (s *PostgresRecordStore) ListRecords(ctx context.Context, collection string, opts ListOptions) (*RecordList, error) {
	where := "collection = $1"
	args := []any{collection}

	if len(opts.Filter) > 0 {
		match, err := json.Marshal(opts.Filter)
		if err != nil {
			return nil, &StoreError{Op: "list", Collection: collection, Err: err}
		}
		args = append(args, match)
		where += fmt.Sprintf(" AND data @> $%d", len(args))
	}

	var total int
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM records WHERE "+where, args...).Scan(&total); err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Err: err}
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage < 1 {
		perPage = 50
	}
	args = append(args, perPage, (page-1)*perPage)

	query := fmt.Sprintf(
		"SELECT id, data, created_at, updated_at FROM records WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		where, orderClause(opts.Sort), len(args)-1, len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Err: err}
	}
	defer rows.Close()

	list := &RecordList{Total: total}
	for rows.Next() {
		record := &Record{Collection: collection}
		var payload []byte
		if err := rows.Scan(&record.ID, &payload, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, &StoreError{Op: "list", Collection: collection, Err: err}
		}
		if err := json.Unmarshal(payload, &record.Data); err != nil {
			return nil, &StoreError{Op: "list", Collection: collection, Err: err}
		}
		list.Items = append(list.Items, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Err: err}
	}
	return list, nil
}

func orderClause(sort string) string {
	switch sort {
	case "-created":
		return "created_at DESC"
	case "updated":
		return "updated_at ASC"
	case "-updated":
		return "updated_at DESC"
	default:
		return "created_at ASC"
	}
}

// UpdateRecord merges the patch into the record data.
func (s *PostgresRecordStore) UpdateRecord(ctx context.Context, collection, id string, patch map[string]any) (*Record, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, &StoreError{Op: "update", Collection: collection, Err: err}
	}

	record := &Record{ID: id, Collection: collection}
	var merged []byte
	err = s.db.QueryRow(ctx,
		`UPDATE records SET data = data || $3, updated_at = now()
		 WHERE collection = $1 AND id = $2
		 RETURNING data, created_at, updated_at`,
		collection, id, payload,
	).Scan(&merged, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &StoreError{Op: "update", Collection: collection, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "update", Collection: collection, Err: err}
	}
	if err := json.Unmarshal(merged, &record.Data); err != nil {
		return nil, &StoreError{Op: "update", Collection: collection, Err: err}
	}
	return record, nil
}

// DeleteRecord deletes a record. Deleting a missing record is not an error.
func (s *PostgresRecordStore) DeleteRecord(ctx context.Context, collection, id string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM records WHERE collection = $1 AND id = $2", collection, id); err != nil {
		return &StoreError{Op: "delete", Collection: collection, Err: err}
	}
	return nil
}

// ListCollections returns all known collections.
func (s *PostgresRecordStore) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.Query(ctx, "SELECT name, is_system FROM collections ORDER BY name")
	if err != nil {
		return nil, &StoreError{Op: "list", Collection: "collections", Err: err}
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.Name, &c.System); err != nil {
			return nil, &StoreError{Op: "list", Collection: "collections", Err: err}
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// EnsureCollection registers a collection if it does not exist yet.
func (s *PostgresRecordStore) EnsureCollection(ctx context.Context, name string, system bool) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO collections (name, is_system) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
		name, system)
	if err != nil {
		return &StoreError{Op: "ensure", Collection: name, Err: err}
	}
	return nil
}

// Ping checks store connectivity.
func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

var _ RecordStore = (*PostgresRecordStore)(nil)

// CollectionNames used by the onboarding core.
const (
	CollectionWorkflowInstances = "workflow_instances"
	CollectionConversations     = "conversations"
	CollectionMessages          = "messages"
	CollectionInboxItems        = "inbox_items"
)

// SystemCollections are excluded from the user-facing collection listing.
func SystemCollections() map[string]bool {
	return map[string]bool{
		"users":                     true,
		"agents":                    true,
		CollectionWorkflowInstances: true,
		CollectionConversations:     true,
		CollectionMessages:          true,
		"widget_instances":          true,
	}
}
