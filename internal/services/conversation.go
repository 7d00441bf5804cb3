package services

import (
	"context"
	"fmt"

	"onboardflow/backend/internal/repository"
)

// ConversationService manages conversations and message history in the
// record store.
type ConversationService struct {
	store repository.RecordStore
}

// NewConversationService creates a new ConversationService.
func NewConversationService(store repository.RecordStore) *ConversationService {
	return &ConversationService{store: store}
}

// GetOrCreate returns the user's active conversation, creating one bound to
// the workflow instance if none exists.
func (s *ConversationService) GetOrCreate(ctx context.Context, userID, instanceID string) (string, error) {
	list, err := s.store.ListRecords(ctx, repository.CollectionConversations, repository.ListOptions{
		Filter: map[string]any{"user_id": userID, "status": "active"},
		Sort:   "-created",
	})
	if err != nil {
		return "", fmt.Errorf("listing conversations: %w", err)
	}
	if len(list.Items) > 0 {
		return list.Items[0].ID, nil
	}

	record, err := s.store.CreateRecord(ctx, repository.CollectionConversations, map[string]any{
		"user_id":              userID,
		"workflow_instance_id": instanceID,
		"status":               "active",
	})
	if err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	return record.ID, nil
}

// SaveMessage appends one turn to conversation history. A caller-supplied
// message id makes the write safe to retry.
func (s *ConversationService) SaveMessage(ctx context.Context, messageID, conversationID, role, content, agentName string) (string, error) {
	data := map[string]any{
		"conversation_id": conversationID,
		"role":            role,
		"content":         content,
	}
	if agentName != "" {
		data["agent_name"] = agentName
	}

	var record *repository.Record
	var err error
	if messageID != "" {
		record, err = s.store.CreateRecordWithID(ctx, repository.CollectionMessages, messageID, data)
	} else {
		record, err = s.store.CreateRecord(ctx, repository.CollectionMessages, data)
	}
	if err != nil {
		return "", fmt.Errorf("saving message: %w", err)
	}
	return record.ID, nil
}

// History returns one page of messages for a conversation, oldest first.
func (s *ConversationService) History(ctx context.Context, conversationID string, page, perPage int) (*repository.RecordList, error) {
	return s.store.ListRecords(ctx, repository.CollectionMessages, repository.ListOptions{
		Filter:  map[string]any{"conversation_id": conversationID},
		Sort:    "created",
		Page:    page,
		PerPage: perPage,
	})
}

// UserCollections lists non-system collections, the auxiliary context handed
// to agents. Errors degrade to an empty list at the caller.
func (s *ConversationService) UserCollections(ctx context.Context) ([]string, error) {
	collections, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	system := repository.SystemCollections()
	var names []string
	for _, c := range collections {
		if c.System || system[c.Name] {
			continue
		}
		names = append(names, c.Name)
	}
	return names, nil
}
