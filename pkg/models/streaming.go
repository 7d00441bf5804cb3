package models

// StreamingResult is the signal payload the stream coordinator delivers back
// into the durable engine when a stream finishes or fails. Error is set on
// the failure path; content may then be partial.
type StreamingResult struct {
	RequestID string `json:"request_id"`
	Content   string `json:"content,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IsError reports whether the stream failed.
func (r StreamingResult) IsError() bool {
	return r.Error != ""
}
