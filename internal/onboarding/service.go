package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/go-workflows/backend"
	"github.com/cschleiden/go-workflows/client"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/repository"
	"onboardflow/backend/pkg/models"
)

// Service is the external surface of the onboarding workflow: starting
// instances, delivering signals, and answering the read-only queries.
//
// The durable engine offers no query RPC, so the workflow mirrors its state
// into the workflow_instances collection on every transition and the
// queries are served from that read model.
type Service struct {
	client        *client.Client
	store         repository.RecordStore
	def           *Definition
	streamTimeout time.Duration
	logger        *logging.Logger
}

// NewService creates the workflow service.
func NewService(c *client.Client, store repository.RecordStore, def *Definition, streamTimeout time.Duration, logger *logging.Logger) *Service {
	return &Service{
		client:        c,
		store:         store,
		def:           def,
		streamTimeout: streamTimeout,
		logger:        logger,
	}
}

// InstanceID returns the engine instance id for a user. One instance exists
// per (workflow name, user).
func (s *Service) InstanceID(userID string) string {
	return s.def.Name + "-" + userID
}

// Start launches the user's onboarding workflow. Starting an already-running
// instance is not an error; the existing instance id is returned.
func (s *Service) Start(ctx context.Context, userID string, initialContext map[string]any) (string, error) {
	instanceID := s.InstanceID(userID)

	_, err := s.client.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: instanceID,
	}, Run, Input{
		UserID:        userID,
		Definition:    *s.def,
		Context:       initialContext,
		StreamTimeout: s.streamTimeout,
	})
	if err != nil {
		if errors.Is(err, backend.ErrInstanceAlreadyExists) {
			s.logger.Debug("workflow instance already running", "instance_id", instanceID)
			return instanceID, nil
		}
		return "", fmt.Errorf("starting workflow for user %s: %w", userID, err)
	}

	s.logger.Info("workflow started", "instance_id", instanceID, "user_id", userID)
	return instanceID, nil
}

// SignalUserMessage enqueues one user message on the workflow. Messages are
// processed strictly in arrival order.
func (s *Service) SignalUserMessage(ctx context.Context, userID string, msg models.UserMessage) error {
	return s.client.SignalWorkflow(ctx, s.InstanceID(userID), SignalUserMessage, msg)
}

// SignalConnected tells the workflow that the user has a live connection.
func (s *Service) SignalConnected(ctx context.Context, userID string) error {
	return s.client.SignalWorkflow(ctx, s.InstanceID(userID), SignalUserConnected, struct{}{})
}

// SignalStreamingComplete delivers a finished stream result back to the
// waiting workflow. Implements stream.EngineSignaler.
func (s *Service) SignalStreamingComplete(ctx context.Context, workflowID string, result models.StreamingResult) error {
	return s.client.SignalWorkflow(ctx, workflowID, SignalStreamingComplete, result)
}

// GetState returns the persisted instance state for a user.
func (s *Service) GetState(ctx context.Context, userID string) (*models.WorkflowInstance, error) {
	rec, err := s.store.GetRecord(ctx, repository.CollectionWorkflowInstances, s.InstanceID(userID))
	if err != nil {
		return nil, err
	}
	return instanceFromRecord(rec), nil
}

// GetCurrentStep returns the current step name of a user's workflow.
func (s *Service) GetCurrentStep(ctx context.Context, userID string) (string, error) {
	inst, err := s.GetState(ctx, userID)
	if err != nil {
		return "", err
	}
	return inst.CurrentStep, nil
}

// GetProgress summarizes the user's progress through the workflow.
func (s *Service) GetProgress(ctx context.Context, userID string) (models.Progress, error) {
	rec, err := s.store.GetRecord(ctx, repository.CollectionWorkflowInstances, s.InstanceID(userID))
	if err != nil {
		return models.Progress{}, err
	}

	completedSteps := stringSlice(rec.Data["completed_steps"])
	total := s.def.TotalSteps()
	percentage := 0
	if total > 0 {
		percentage = len(completedSteps) * 100 / total
	}

	return models.Progress{
		Completed:      len(completedSteps),
		Total:          total,
		Percentage:     percentage,
		CurrentStep:    stringField(rec.Data, "current_step"),
		StepsCompleted: completedSteps,
	}, nil
}

func instanceFromRecord(rec *repository.Record) *models.WorkflowInstance {
	inst := &models.WorkflowInstance{
		ID:           rec.ID,
		UserID:       stringField(rec.Data, "user_id"),
		WorkflowName: stringField(rec.Data, "workflow_name"),
		CurrentStep:  stringField(rec.Data, "current_step"),
		Status:       models.WorkflowStatus(stringField(rec.Data, "status")),
		EngineID:     stringField(rec.Data, "engine_id"),
	}
	if c, ok := rec.Data["context"].(map[string]any); ok {
		inst.Context = c
	}
	if ts := parseTime(rec.Data["started_at"]); ts != nil {
		inst.StartedAt = ts
	}
	if ts := parseTime(rec.Data["completed_at"]); ts != nil {
		inst.CompletedAt = ts
	}
	return inst
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func parseTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
