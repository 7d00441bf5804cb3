package models

// Wire event vocabulary sent to live connections. Every envelope carries a
// "type" discriminator; the remaining keys are event specific.

const (
	EventThinking          = "thinking"
	EventMessageNew        = "message.new"
	EventWorkflowStarted   = "workflow.started"
	EventWorkflowStep      = "workflow.step_changed"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowNeedInput = "workflow.need_input"
	EventAgentChanged      = "agent.changed"
	EventStreamStart       = "stream.start"
	EventStreamChunk       = "stream.chunk"
	EventStreamEnd         = "stream.end"
	EventStreamError       = "stream.error"
)

// Event is a wire envelope destined for a user's live connections.
type Event map[string]any

// NewEvent builds an envelope with the given type and payload keys.
func NewEvent(eventType string, payload map[string]any) Event {
	ev := Event{"type": eventType}
	for k, v := range payload {
		ev[k] = v
	}
	return ev
}

// Type returns the discriminator, or "" for a malformed envelope.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// MessagePayload is the message object embedded in message.new and
// stream.end events.
type MessagePayload struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	AgentName string `json:"agentName,omitempty"`
}
