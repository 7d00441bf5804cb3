package services

import (
	"context"

	"onboardflow/backend/pkg/models"
)

// MemorySearcher is the long-term memory collaborator. Both operations are
// best effort; callers degrade to empty context on error.
type MemorySearcher interface {
	// Search returns fact strings relevant to the query, most relevant first.
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
	// Add feeds conversation turns to fact extraction and returns the
	// extracted facts.
	Add(ctx context.Context, userID string, messages []models.MemoryMessage) ([]string, error)
	// Available probes whether the memory service can be reached.
	Available(ctx context.Context) bool
}

// AgentRequest carries everything an agent invocation needs.
type AgentRequest struct {
	AgentName   string         `json:"agent_name"`
	UserID      string         `json:"user_id"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	Collections []string       `json:"collections,omitempty"`
	Memories    []string       `json:"memories,omitempty"`
}

// TextStream yields cumulative text snapshots from a streaming model call.
// Recv returns io.EOF once the stream is exhausted.
type TextStream interface {
	Recv() (accumulated string, err error)
	Close() error
}

// AgentRunner invokes the language model behind a named agent.
type AgentRunner interface {
	// Run performs a blocking invocation returning content plus the
	// agent's workflow signal.
	Run(ctx context.Context, req AgentRequest) (*models.AgentResult, error)
	// OpenStream starts a streaming invocation. Streaming agents emit
	// text only; the workflow signal is determined separately.
	OpenStream(ctx context.Context, req AgentRequest) (TextStream, error)
}
