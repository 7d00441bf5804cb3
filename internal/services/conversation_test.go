package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"onboardflow/backend/internal/repository"
)

// memStore is a minimal in-memory RecordStore for service tests.
type memStore struct {
	repository.RecordStore

	records     map[string]map[string]*repository.Record
	collections []repository.Collection
	nextID      int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]map[string]*repository.Record{}}
}

func (s *memStore) CreateRecord(ctx context.Context, collection string, data map[string]any) (*repository.Record, error) {
	s.nextID++
	return s.CreateRecordWithID(ctx, collection, fmt.Sprintf("rec-%d", s.nextID), data)
}

func (s *memStore) CreateRecordWithID(ctx context.Context, collection, id string, data map[string]any) (*repository.Record, error) {
	if s.records[collection] == nil {
		s.records[collection] = map[string]*repository.Record{}
	}
	rec := &repository.Record{ID: id, Collection: collection, Data: data}
	s.records[collection][id] = rec
	return rec, nil
}

func (s *memStore) ListRecords(ctx context.Context, collection string, opts repository.ListOptions) (*repository.RecordList, error) {
	list := &repository.RecordList{}
	for _, rec := range s.records[collection] {
		match := true
		for k, v := range opts.Filter {
			if rec.Data[k] != v {
				match = false
				break
			}
		}
		if match {
			list.Items = append(list.Items, rec)
		}
	}
	list.Total = len(list.Items)
	return list, nil
}

func (s *memStore) ListCollections(ctx context.Context) ([]repository.Collection, error) {
	return s.collections, nil
}

func TestConversationGetOrCreate(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store)

	first, err := svc.GetOrCreate(context.Background(), "u1", "wf-1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A second call must find the active conversation, not create another.
	second, err := svc.GetOrCreate(context.Background(), "u1", "wf-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, store.records[repository.CollectionConversations], 1)
}

func TestConversationSaveMessageKeyed(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store)

	id, err := svc.SaveMessage(context.Background(), "msg-1", "conv-1", "user", "hello", "")
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)

	// A retried keyed save lands on the same record.
	id, err = svc.SaveMessage(context.Background(), "msg-1", "conv-1", "user", "hello", "")
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Len(t, store.records[repository.CollectionMessages], 1)

	rec := store.records[repository.CollectionMessages]["msg-1"]
	require.Equal(t, "hello", rec.Data["content"])
	require.NotContains(t, rec.Data, "agent_name")

	_, err = svc.SaveMessage(context.Background(), "msg-2", "conv-1", "assistant", "hi!", "greeter")
	require.NoError(t, err)
	require.Equal(t, "greeter", store.records[repository.CollectionMessages]["msg-2"].Data["agent_name"])
}

func TestUserCollectionsHidesSystem(t *testing.T) {
	store := newMemStore()
	store.collections = []repository.Collection{
		{Name: repository.CollectionWorkflowInstances, System: true},
		{Name: repository.CollectionMessages, System: true},
		{Name: repository.CollectionInboxItems, System: false},
		{Name: "notes", System: false},
	}
	svc := NewConversationService(store)

	names, err := svc.UserCollections(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{repository.CollectionInboxItems, "notes"}, names)
}
