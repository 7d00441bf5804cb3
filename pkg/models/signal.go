// Package models defines the domain models shared across the onboarding service.
package models

// SignalAction is the workflow action an agent invocation reports.
type SignalAction string

const (
	// ActionStay keeps the workflow on the current step.
	ActionStay SignalAction = "stay"
	// ActionCompleteStep requests a transition to the next step. The agent's
	// intent is necessary but not sufficient; completion criteria decide.
	ActionCompleteStep SignalAction = "complete_step"
	// ActionNeedInput indicates the agent is waiting for structured input,
	// e.g. a widget. Reserved; currently recorded but does not transition.
	ActionNeedInput SignalAction = "need_input"
)

// Signal is the agent-reported workflow intent plus payload data.
type Signal struct {
	Action SignalAction   `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// StaySignal returns the default signal used when an agent reports nothing.
func StaySignal() *Signal {
	return &Signal{Action: ActionStay, Data: map[string]any{}}
}

// Normalize maps unknown or empty actions to stay and guarantees a non-nil
// data map, so downstream code never branches on malformed signals.
func (s *Signal) Normalize() *Signal {
	if s == nil {
		return StaySignal()
	}
	switch s.Action {
	case ActionStay, ActionCompleteStep, ActionNeedInput:
	default:
		s.Action = ActionStay
	}
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	return s
}

// AgentResult is the outcome of a single agent invocation.
type AgentResult struct {
	Content string  `json:"content"`
	Signal  *Signal `json:"signal,omitempty"`
}

// WorkflowSignal returns the result's signal, defaulting to stay.
func (r *AgentResult) WorkflowSignal() *Signal {
	if r == nil {
		return StaySignal()
	}
	return r.Signal.Normalize()
}
