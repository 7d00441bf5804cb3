package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresRecordStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresRecordStore(pool)
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx), "init must be repeatable")

	t.Run("Create and Get", func(t *testing.T) {
		created, err := store.CreateRecord(ctx, CollectionMessages, map[string]any{
			"role":    "user",
			"content": "hello",
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		got, err := store.GetRecord(ctx, CollectionMessages, created.ID)
		assert.NoError(t, err)
		assert.Equal(t, "hello", got.Data["content"])
		assert.Equal(t, "user", got.Data["role"])
	})

	t.Run("CreateWithID replaces on repeat", func(t *testing.T) {
		first, err := store.CreateRecordWithID(ctx, CollectionWorkflowInstances, "wf-1", map[string]any{
			"current_step": "greeting",
			"status":       "active",
		})
		assert.NoError(t, err)

		second, err := store.CreateRecordWithID(ctx, CollectionWorkflowInstances, "wf-1", map[string]any{
			"current_step": "greeting",
			"status":       "active",
		})
		assert.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		list, err := store.ListRecords(ctx, CollectionWorkflowInstances, ListOptions{})
		assert.NoError(t, err)
		assert.Equal(t, 1, list.Total, "a retried keyed create must not duplicate the record")
	})

	t.Run("Get missing record", func(t *testing.T) {
		_, err := store.GetRecord(ctx, CollectionMessages, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		var storeErr *StoreError
		assert.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "get", storeErr.Op)
	})

	t.Run("Update merges patch", func(t *testing.T) {
		created, err := store.CreateRecordWithID(ctx, CollectionWorkflowInstances, "wf-2", map[string]any{
			"current_step": "greeting",
			"status":       "active",
			"user_id":      "u1",
		})
		assert.NoError(t, err)

		updated, err := store.UpdateRecord(ctx, CollectionWorkflowInstances, created.ID, map[string]any{
			"current_step": "discovery",
		})
		assert.NoError(t, err)
		assert.Equal(t, "discovery", updated.Data["current_step"])
		assert.Equal(t, "u1", updated.Data["user_id"], "unpatched fields must survive")

		_, err = store.UpdateRecord(ctx, CollectionWorkflowInstances, "missing", map[string]any{"x": 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List filters and pages", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := store.CreateRecord(ctx, CollectionInboxItems, map[string]any{
				"user_id": "lister",
				"status":  "pending",
			})
			assert.NoError(t, err)
		}
		_, err := store.CreateRecord(ctx, CollectionInboxItems, map[string]any{
			"user_id": "someone-else",
			"status":  "pending",
		})
		assert.NoError(t, err)

		list, err := store.ListRecords(ctx, CollectionInboxItems, ListOptions{
			Filter: map[string]any{"user_id": "lister"},
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, list.Total)
		assert.Len(t, list.Items, 3)

		page, err := store.ListRecords(ctx, CollectionInboxItems, ListOptions{
			Filter:  map[string]any{"user_id": "lister"},
			PerPage: 2,
			Page:    2,
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Len(t, page.Items, 1)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		created, err := store.CreateRecord(ctx, CollectionMessages, map[string]any{"content": "bye"})
		assert.NoError(t, err)

		assert.NoError(t, store.DeleteRecord(ctx, CollectionMessages, created.ID))
		assert.NoError(t, store.DeleteRecord(ctx, CollectionMessages, created.ID))

		_, err = store.GetRecord(ctx, CollectionMessages, created.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Collections", func(t *testing.T) {
		collections, err := store.ListCollections(ctx)
		assert.NoError(t, err)

		byName := map[string]bool{}
		for _, c := range collections {
			byName[c.Name] = c.System
		}
		assert.True(t, byName[CollectionWorkflowInstances])
		assert.True(t, byName[CollectionMessages])
		assert.False(t, byName[CollectionInboxItems])
	})
}
