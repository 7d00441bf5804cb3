package onboarding

import (
	"fmt"
	"time"

	"github.com/cschleiden/go-workflows/workflow"
	"github.com/google/uuid"

	"onboardflow/backend/internal/criteria"
	"onboardflow/backend/internal/services"
	"onboardflow/backend/internal/stream"
	"onboardflow/backend/pkg/models"
)

// Signal names of the workflow's external surface.
const (
	SignalUserMessage       = "user-message"
	SignalUserConnected     = "user-connected"
	SignalStreamingComplete = "streaming-complete"
)

// DefaultStreamTimeout bounds the wait for a streaming completion signal.
const DefaultStreamTimeout = 5 * time.Minute

// Input starts one onboarding workflow run. The step definition travels
// with the input so a replay always interprets the same transitions.
type Input struct {
	UserID        string         `json:"user_id"`
	Definition    Definition     `json:"definition"`
	Context       map[string]any `json:"context,omitempty"`
	StreamTimeout time.Duration  `json:"stream_timeout,omitempty"`
}

// Result is the final state returned when the workflow completes.
type Result struct {
	WorkflowName   string   `json:"workflow_name"`
	Status         string   `json:"status"`
	CompletedSteps []string `json:"completed_steps"`
}

// runState is the in-flight state of one workflow execution. It lives only
// for the duration of a (re)execution; everything durable is reconstructed
// from history on replay.
type runState struct {
	input          Input
	def            Definition
	instanceID     string
	conversationID string

	currentStep    string
	completedSteps []string
	stepData       map[string]any
	shared         map[string]any
	msgCount       map[string]int
	status         models.WorkflowStatus

	streamDone workflow.Channel[models.StreamingResult]
}

// Run is the durable onboarding state machine. It suspends only while
// waiting for a user message or for a streaming completion signal.
func Run(ctx workflow.Context, input Input) (Result, error) {
	logger := workflow.Logger(ctx)

	if err := input.Definition.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid workflow definition: %w", err)
	}

	r := &runState{
		input:          input,
		def:            input.Definition,
		instanceID:     workflow.WorkflowInstance(ctx).InstanceID,
		currentStep:    input.Definition.InitialStep,
		completedSteps: []string{},
		stepData:       map[string]any{},
		shared:         input.Context,
		msgCount:       map[string]int{},
		status:         models.WorkflowStatusActive,
		streamDone:     workflow.NewSignalChannel[models.StreamingResult](ctx, SignalStreamingComplete),
	}
	if r.shared == nil {
		r.shared = map[string]any{}
	}

	logger.Info("starting onboarding workflow", "user_id", input.UserID, "workflow", r.def.Name)

	var a *Activities

	if _, err := workflow.ExecuteActivity[string](ctx, workflow.DefaultActivityOptions,
		a.CreateInstance, r.instanceID, input.UserID, r.def.Name, r.currentStep, r.shared).Get(ctx); err != nil {
		return Result{}, fmt.Errorf("creating workflow instance: %w", err)
	}

	conversationID, err := workflow.ExecuteActivity[string](ctx, workflow.DefaultActivityOptions,
		a.GetOrCreateConversation, input.UserID, r.instanceID).Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolving conversation: %w", err)
	}
	r.conversationID = conversationID

	r.notify(ctx, models.EventWorkflowStarted, map[string]any{
		"workflowId":   r.instanceID,
		"workflowName": r.def.Name,
		"currentStep":  r.currentStep,
	})

	messages := workflow.NewSignalChannel[models.UserMessage](ctx, SignalUserMessage)
	connected := workflow.NewSignalChannel[struct{}](ctx, SignalUserConnected)

	for r.status == models.WorkflowStatusActive {
		var msg models.UserMessage
		received := false
		for !received {
			workflow.Select(ctx,
				workflow.Receive(messages, func(ctx workflow.Context, m models.UserMessage, _ bool) {
					msg = m
					received = true
				}),
				workflow.Receive(connected, func(ctx workflow.Context, _ struct{}, _ bool) {
					// Reserved hook, could trigger a proactive greeting.
					logger.Debug("user connected", "user_id", input.UserID)
				}),
			)
		}

		if err := r.processMessage(ctx, msg); err != nil {
			return Result{}, err
		}
	}

	if _, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions,
		a.CompleteInstance, r.instanceID, r.completedSteps).Get(ctx); err != nil {
		return Result{}, fmt.Errorf("completing workflow instance: %w", err)
	}

	r.notify(ctx, models.EventWorkflowCompleted, map[string]any{
		"workflowId":   r.instanceID,
		"workflowName": r.def.Name,
	})

	logger.Info("onboarding workflow completed", "user_id", input.UserID, "workflow", r.def.Name)

	return Result{
		WorkflowName:   r.def.Name,
		Status:         string(r.status),
		CompletedSteps: r.completedSteps,
	}, nil
}

// processMessage drives one iteration of the main loop: persist the message,
// gather auxiliary context, run the step's agent, persist its output, and
// apply the resulting signal.
func (r *runState) processMessage(ctx workflow.Context, msg models.UserMessage) error {
	logger := workflow.Logger(ctx)

	step, ok := r.def.Step(r.currentStep)
	if !ok {
		logger.Error("unknown step, dropping message", "step", r.currentStep)
		return nil
	}

	r.msgCount[step.Name]++

	var a *Activities

	userMessageID, err := messageID(ctx)
	if err != nil {
		return err
	}
	if _, err := workflow.ExecuteActivity[string](ctx, workflow.DefaultActivityOptions, a.SaveMessage, SaveMessageInput{
		MessageID:      userMessageID,
		ConversationID: r.conversationID,
		Role:           "user",
		Content:        msg.Content,
	}).Get(ctx); err != nil {
		return fmt.Errorf("saving user message: %w", err)
	}

	// Auxiliary context is best effort; the activities degrade to empty on
	// collaborator failure rather than erroring.
	memories, err := workflow.ExecuteActivity[[]string](ctx, workflow.DefaultActivityOptions,
		a.SearchMemories, r.input.UserID, msg.Content, 5).Get(ctx)
	if err != nil {
		return fmt.Errorf("searching memories: %w", err)
	}

	collections, err := workflow.ExecuteActivity[[]string](ctx, workflow.DefaultActivityOptions,
		a.GetUserCollections, r.input.UserID).Get(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	agentContext := map[string]any{
		"workflow_id":     r.def.Name,
		"instance_id":     r.instanceID,
		"current_step":    r.currentStep,
		"step_agent":      step.Agent,
		"is_required":     step.IsRequired,
		"steps_completed": r.completedSteps,
		"step_data":       r.stepData,
		"shared":          r.shared,
	}

	var result *models.AgentResult
	if msg.RequestID != "" {
		result, err = r.runStreaming(ctx, msg, step, agentContext, collections, memories)
	} else {
		result, err = r.runSync(ctx, msg, step, agentContext, collections, memories)
	}
	if err != nil {
		return err
	}

	if result.Content != "" {
		assistantMessageID, err := messageID(ctx)
		if err != nil {
			return err
		}
		if _, err := workflow.ExecuteActivity[string](ctx, workflow.DefaultActivityOptions, a.SaveMessage, SaveMessageInput{
			MessageID:      assistantMessageID,
			ConversationID: r.conversationID,
			Role:           "assistant",
			Content:        result.Content,
			AgentName:      step.Agent,
		}).Get(ctx); err != nil {
			return fmt.Errorf("saving assistant message: %w", err)
		}
	}

	// Fact extraction runs in the background; the transition decision never
	// waits on it.
	memoryDone := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions,
		a.AddMemory, r.input.UserID, []models.MemoryMessage{
			{Role: "user", Content: msg.Content},
			{Role: "assistant", Content: result.Content},
		})

	if err := r.applySignal(ctx, result.WorkflowSignal(), step); err != nil {
		return err
	}

	if _, err := memoryDone.Get(ctx); err != nil {
		logger.Warn("memory extraction failed", "error", err)
	}

	return nil
}

// runStreaming starts the out-of-band stream and blocks on the completion
// signal, bounded by the stream timeout. The streaming path carries content
// only; its workflow signal is always stay.
func (r *runState) runStreaming(ctx workflow.Context, msg models.UserMessage, step models.StepDefinition, agentContext map[string]any, collections, memories []string) (*models.AgentResult, error) {
	logger := workflow.Logger(ctx)
	logger.Info("processing with streaming", "request_id", msg.RequestID, "agent", step.Agent)

	var a *Activities

	if _, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, a.StartStream, stream.Request{
		RequestID:      msg.RequestID,
		UserID:         r.input.UserID,
		ConversationID: r.conversationID,
		WorkflowID:     r.instanceID,
		AgentName:      step.Agent,
		UserMessage:    msg.Content,
		Context:        agentContext,
		Collections:    collections,
		Memories:       memories,
	}).Get(ctx); err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	timeout := r.input.StreamTimeout
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}

	tctx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.ScheduleTimer(tctx, timeout)

	var streamResult models.StreamingResult
	done := false
	timedOut := false
	for !done && !timedOut {
		workflow.Select(ctx,
			workflow.Receive(r.streamDone, func(ctx workflow.Context, res models.StreamingResult, _ bool) {
				if res.RequestID != msg.RequestID {
					logger.Warn("ignoring streaming result for stale request", "request_id", res.RequestID)
					return
				}
				streamResult = res
				done = true
			}),
			workflow.Await(timer, func(ctx workflow.Context, _ workflow.Future[any]) {
				timedOut = true
			}),
		)
	}
	cancelTimer()

	if timedOut {
		logger.Error("stream completion timed out", "request_id", msg.RequestID)
		r.notify(ctx, models.EventStreamError, map[string]any{
			"requestId":   msg.RequestID,
			"error":       "stream completion timed out",
			"recoverable": false,
		})
		return &models.AgentResult{
			Signal: &models.Signal{Action: models.ActionStay, Reason: "stream completion timed out"},
		}, nil
	}

	reason := ""
	if streamResult.IsError() {
		logger.Error("streaming failed", "request_id", msg.RequestID, "error", streamResult.Error)
		reason = streamResult.Error
	}

	return &models.AgentResult{
		Content: streamResult.Content,
		Signal:  &models.Signal{Action: models.ActionStay, Reason: reason},
	}, nil
}

// runSync performs the synchronous agent path: thinking event, blocking
// invocation, message.new event.
func (r *runState) runSync(ctx workflow.Context, msg models.UserMessage, step models.StepDefinition, agentContext map[string]any, collections, memories []string) (*models.AgentResult, error) {
	var a *Activities

	r.notify(ctx, models.EventThinking, map[string]any{})

	result, err := workflow.ExecuteActivity[*models.AgentResult](ctx, workflow.DefaultActivityOptions, a.RunAgent, services.AgentRequest{
		AgentName:   step.Agent,
		UserID:      r.input.UserID,
		Message:     msg.Content,
		Context:     agentContext,
		Collections: collections,
		Memories:    memories,
	}).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("running agent %s: %w", step.Agent, err)
	}

	id, err := messageID(ctx)
	if err != nil {
		return nil, err
	}
	r.notify(ctx, models.EventMessageNew, map[string]any{
		"message": models.MessagePayload{
			ID:        id,
			Role:      "assistant",
			Content:   result.Content,
			AgentName: step.Agent,
		},
	})

	return result, nil
}

// applySignal records the signal's data and resolves its action. A
// complete_step intent transitions only when the step's completion criteria
// are satisfied.
func (r *runState) applySignal(ctx workflow.Context, sig *models.Signal, step models.StepDefinition) error {
	logger := workflow.Logger(ctx)
	logger.Info("processing signal", "action", string(sig.Action), "step", r.currentStep)

	if len(sig.Data) > 0 {
		r.mergeStepData(step.Name, sig.Data)
	}

	switch sig.Action {
	case models.ActionCompleteStep:
		return r.tryTransition(ctx, step, sig.Data)

	case models.ActionNeedInput:
		// No transition; record the pending request and surface it so a
		// widget layer can pick it up.
		r.mergeStepData(step.Name, map[string]any{"pending_input": sig.Data})
		r.notify(ctx, models.EventWorkflowNeedInput, map[string]any{
			"workflowId": r.instanceID,
			"step":       r.currentStep,
			"data":       sig.Data,
		})
		return nil

	default:
		return nil
	}
}

// tryTransition gates the agent's complete_step intent on the step's
// completion criteria and, when satisfied, commits the transition.
func (r *runState) tryTransition(ctx workflow.Context, step models.StepDefinition, signalData map[string]any) error {
	logger := workflow.Logger(ctx)

	if r.msgCount[step.Name] < step.MinMessages {
		logger.Info("step below message minimum, staying",
			"step", step.Name, "messages", r.msgCount[step.Name], "min", step.MinMessages)
		return nil
	}

	var a *Activities

	checked, err := workflow.ExecuteActivity[criteria.Result](ctx, workflow.DefaultActivityOptions,
		a.CheckCriteria, step.CompletionCriteria, r.instanceID, r.input.UserID, signalData).Get(ctx)
	if err != nil {
		return fmt.Errorf("checking completion criteria: %w", err)
	}

	if !checked.Satisfied {
		logger.Info("completion criteria not satisfied, staying", "step", step.Name, "missing", checked.Missing)
		r.mergeStepData(step.Name, map[string]any{"criteria_missing": checked.Missing})
		return nil
	}

	if len(checked.Data) > 0 {
		r.mergeStepData(step.Name, checked.Data)
	}

	previous := r.currentStep
	r.completedSteps = append(r.completedSteps, previous)

	if step.Terminal() {
		r.status = models.WorkflowStatusCompleted
		logger.Info("workflow completed at terminal step", "step", previous)
		return nil
	}

	r.currentStep = step.NextStep

	if _, err := workflow.ExecuteActivity[any](ctx, workflow.DefaultActivityOptions, a.UpdateStep, UpdateStepInput{
		InstanceID:     r.instanceID,
		CurrentStep:    r.currentStep,
		CompletedSteps: r.completedSteps,
		Context:        map[string]any{"step_data": r.stepData, "shared": r.shared},
	}).Get(ctx); err != nil {
		return fmt.Errorf("persisting step transition: %w", err)
	}

	next, _ := r.def.Step(r.currentStep)

	r.notify(ctx, models.EventWorkflowStep, map[string]any{
		"workflowId":   r.instanceID,
		"previousStep": previous,
		"step":         r.currentStep,
		"agent":        next.Agent,
	})
	if next.Agent != "" {
		r.notify(ctx, models.EventAgentChanged, map[string]any{"agent": next.Agent})
	}

	logger.Info("step transition", "from", previous, "to", r.currentStep)
	return nil
}

func (r *runState) mergeStepData(stepName string, data map[string]any) {
	existing, _ := r.stepData[stepName].(map[string]any)
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range data {
		existing[k] = v
	}
	r.stepData[stepName] = existing
}

// notify delivers one event to the user's connections. Delivery failure is
// never fatal to the workflow.
func (r *runState) notify(ctx workflow.Context, eventType string, payload map[string]any) {
	var a *Activities
	if _, err := workflow.ExecuteActivity[bool](ctx, workflow.DefaultActivityOptions,
		a.NotifyUser, r.input.UserID, eventType, payload).Get(ctx); err != nil {
		workflow.Logger(ctx).Warn("notify failed", "event", eventType, "error", err)
	}
}

// messageID mints a message id once and replays it from history afterwards,
// keeping the persisted write idempotent across retries.
func messageID(ctx workflow.Context) (string, error) {
	return workflow.SideEffect(ctx, func(ctx workflow.Context) string {
		return uuid.NewString()
	}).Get(ctx)
}
