package onboarding

import (
	"context"
	"time"

	"onboardflow/backend/internal/criteria"
	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/repository"
	"onboardflow/backend/internal/services"
	"onboardflow/backend/internal/stream"
	"onboardflow/backend/internal/ws"
	"onboardflow/backend/pkg/models"
)

// Activities holds the workflow's side effects. Every write is keyed by a
// caller-chosen id so the durable engine can retry it safely; auxiliary
// lookups degrade to empty results instead of failing the step.
type Activities struct {
	Store         repository.RecordStore
	Conversations *services.ConversationService
	Memory        services.MemorySearcher
	Agents        services.AgentRunner
	Streams       *stream.Orchestrator
	Sender        ws.Sender
	Criteria      *criteria.Registry
	Logger        *logging.Logger
}

// SaveMessageInput identifies one conversation turn to persist.
type SaveMessageInput struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	AgentName      string `json:"agent_name,omitempty"`
}

// UpdateStepInput carries the full post-transition state of an instance.
// Values are absolute, so replaying the update is a no-op.
type UpdateStepInput struct {
	InstanceID     string         `json:"instance_id"`
	CurrentStep    string         `json:"current_step"`
	CompletedSteps []string       `json:"completed_steps"`
	Context        map[string]any `json:"context"`
}

// CreateInstance persists the workflow instance read model under the engine
// instance id. Re-running it after a retry overwrites the same record.
func (a *Activities) CreateInstance(ctx context.Context, engineID, userID, workflowName, initialStep string, shared map[string]any) (string, error) {
	if shared == nil {
		shared = map[string]any{}
	}
	rec, err := a.Store.CreateRecordWithID(ctx, repository.CollectionWorkflowInstances, engineID, map[string]any{
		"engine_id":       engineID,
		"user_id":         userID,
		"workflow_name":   workflowName,
		"current_step":    initialStep,
		"status":          string(models.WorkflowStatusActive),
		"context":         map[string]any{"step_data": map[string]any{}, "shared": shared},
		"completed_steps": []string{},
		"started_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	a.Logger.Info("workflow instance created", "instance_id", rec.ID, "user_id", userID, "workflow", workflowName)
	return rec.ID, nil
}

// GetOrCreateConversation finds the user's active conversation or creates one.
func (a *Activities) GetOrCreateConversation(ctx context.Context, userID, instanceID string) (string, error) {
	return a.Conversations.GetOrCreate(ctx, userID, instanceID)
}

// SaveMessage persists one conversation turn, keyed by the workflow-minted
// message id.
func (a *Activities) SaveMessage(ctx context.Context, in SaveMessageInput) (string, error) {
	return a.Conversations.SaveMessage(ctx, in.MessageID, in.ConversationID, in.Role, in.Content, in.AgentName)
}

// SearchMemories returns facts relevant to the query. Best effort: an
// unavailable or failing memory service yields an empty result.
func (a *Activities) SearchMemories(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if !a.Memory.Available(ctx) {
		a.Logger.Debug("memory service unavailable, skipping search", "user_id", userID)
		return []string{}, nil
	}
	facts, err := a.Memory.Search(ctx, userID, query, limit)
	if err != nil {
		a.Logger.Warn("memory search failed", "user_id", userID, "error", err)
		return []string{}, nil
	}
	return facts, nil
}

// AddMemory feeds one (user, assistant) turn to fact extraction. Best effort.
func (a *Activities) AddMemory(ctx context.Context, userID string, messages []models.MemoryMessage) error {
	if !a.Memory.Available(ctx) {
		return nil
	}
	if _, err := a.Memory.Add(ctx, userID, messages); err != nil {
		a.Logger.Warn("memory add failed", "user_id", userID, "error", err)
	}
	return nil
}

// GetUserCollections lists the non-system collections visible to agents.
// Best effort.
func (a *Activities) GetUserCollections(ctx context.Context, userID string) ([]string, error) {
	collections, err := a.Conversations.UserCollections(ctx)
	if err != nil {
		a.Logger.Warn("listing collections failed", "user_id", userID, "error", err)
		return []string{}, nil
	}
	return collections, nil
}

// RunAgent performs a blocking agent invocation. A model error is returned
// as a stay signal with the error as reason, never as an activity failure,
// so a flaky model cannot advance or abort the step.
func (a *Activities) RunAgent(ctx context.Context, req services.AgentRequest) (*models.AgentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, services.DefaultRunTimeout)
	defer cancel()

	result, err := a.Agents.Run(ctx, req)
	if err != nil {
		a.Logger.Error("agent invocation failed", "agent", req.AgentName, "user_id", req.UserID, "error", err)
		return &models.AgentResult{
			Signal: &models.Signal{Action: models.ActionStay, Reason: err.Error()},
		}, nil
	}
	return result, nil
}

// StartStream hands the request to the orchestrator and returns immediately.
func (a *Activities) StartStream(ctx context.Context, req stream.Request) error {
	a.Streams.StartStream(req)
	return nil
}

// CheckCriteria evaluates the step's completion criteria.
func (a *Activities) CheckCriteria(ctx context.Context, cfg models.CriteriaConfig, instanceID, userID string, signalData map[string]any) (criteria.Result, error) {
	return a.Criteria.Check(ctx, cfg, instanceID, userID, signalData), nil
}

// UpdateStep mirrors a step transition into the instance record.
func (a *Activities) UpdateStep(ctx context.Context, in UpdateStepInput) error {
	_, err := a.Store.UpdateRecord(ctx, repository.CollectionWorkflowInstances, in.InstanceID, map[string]any{
		"current_step":    in.CurrentStep,
		"completed_steps": in.CompletedSteps,
		"context":         in.Context,
	})
	return err
}

// CompleteInstance marks the instance record completed.
func (a *Activities) CompleteInstance(ctx context.Context, instanceID string, completedSteps []string) error {
	_, err := a.Store.UpdateRecord(ctx, repository.CollectionWorkflowInstances, instanceID, map[string]any{
		"status":          string(models.WorkflowStatusCompleted),
		"current_step":    "",
		"completed_steps": completedSteps,
		"completed_at":    time.Now().UTC().Format(time.RFC3339),
	})
	return err
}

// NotifyUser delivers one event to the user's live connections. Delivery is
// best effort; an offline user is not an error.
func (a *Activities) NotifyUser(ctx context.Context, userID, eventType string, payload map[string]any) (bool, error) {
	delivered := a.Sender.SendToUser(userID, models.NewEvent(eventType, payload))
	if !delivered {
		a.Logger.Debug("no live connection for user", "user_id", userID, "event", eventType)
	}
	return delivered, nil
}
