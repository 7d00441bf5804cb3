package models

import (
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowStatusActive    WorkflowStatus = "active"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusPaused    WorkflowStatus = "paused"
)

// CriteriaConfig selects the completion checker gating a step transition.
type CriteriaConfig struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// StepDefinition is the static configuration of one onboarding step.
// Loaded once from the workflow definition file and never mutated. The
// terminal step has an empty NextStep.
type StepDefinition struct {
	Name               string         `json:"name" yaml:"name"`
	Agent              string         `json:"agent" yaml:"agent"`
	NextStep           string         `json:"next_step,omitempty" yaml:"next_step,omitempty"`
	IsRequired         bool           `json:"is_required" yaml:"is_required"`
	MinMessages        int            `json:"min_messages" yaml:"min_messages"`
	MaxMessages        int            `json:"max_messages" yaml:"max_messages"`
	CompletionCriteria CriteriaConfig `json:"completion_criteria" yaml:"completion_criteria"`
}

// Terminal reports whether this step ends the workflow.
func (s StepDefinition) Terminal() bool {
	return s.NextStep == ""
}

// WorkflowInstance is the persisted read model of a running workflow,
// one per (workflow name, user). Mutated only by the state machine; becomes
// immutable once Status is completed.
type WorkflowInstance struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	WorkflowName string         `json:"workflow_name"`
	CurrentStep  string         `json:"current_step"`
	Status       WorkflowStatus `json:"status"`
	Context      map[string]any `json:"context"`
	EngineID     string         `json:"engine_id"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// UserMessage is the signal payload carrying one inbound user message.
// RequestID selects the streaming path when present.
type UserMessage struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

// Progress summarizes how far a workflow instance has advanced.
type Progress struct {
	Completed      int      `json:"completed"`
	Total          int      `json:"total"`
	Percentage     int      `json:"percentage"`
	CurrentStep    string   `json:"current_step,omitempty"`
	StepsCompleted []string `json:"steps_completed,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	AgentName      string         `json:"agent_name,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MemoryMessage is one turn handed to the memory service for fact extraction.
type MemoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
