// Package stream bridges a long-running model invocation to live client
// connections, then reports the finished result back into the durable
// engine. It runs entirely outside the engine's execution model; the only
// shared ground with a workflow is the request id.
package stream

// Request is an immutable description of one streaming invocation. Lifetime
// is bounded by a single model call; RequestID correlates the stream with
// the workflow waiting on it.
type Request struct {
	RequestID      string         `json:"request_id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	WorkflowID     string         `json:"workflow_id"`
	AgentName      string         `json:"agent_name"`
	UserMessage    string         `json:"user_message"`
	Context        map[string]any `json:"context,omitempty"`
	Collections    []string       `json:"collections,omitempty"`
	Memories       []string       `json:"memories,omitempty"`
}

// Chunk is one streamed increment of content.
type Chunk struct {
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated"`
}

// Result is the completed stream, ready for storage and delivery.
type Result struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	AgentName string `json:"agent_name"`
}

// state tracks one in-flight stream. Owned by the Executor; destroyed when
// the stream completes, fails or is cancelled.
type state struct {
	accumulated string
}

// update absorbs a cumulative text snapshot and returns the chunk carrying
// the suffix added since the previous snapshot. A snapshot that does not
// extend the previous one yields an empty delta; the model API promises
// monotonically growing text, but a malformed frame must not take the
// process down.
func (s *state) update(accumulated string) Chunk {
	var delta string
	if len(accumulated) > len(s.accumulated) {
		delta = accumulated[len(s.accumulated):]
	}
	s.accumulated = accumulated
	return Chunk{Delta: delta, Accumulated: accumulated}
}
