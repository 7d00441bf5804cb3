package stream

import (
	"context"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/ws"
	"onboardflow/backend/pkg/models"
)

// EngineSignaler delivers a streaming result back into the durable workflow
// identified by WorkflowID.
type EngineSignaler interface {
	SignalStreamingComplete(ctx context.Context, workflowID string, result models.StreamingResult) error
}

// Notifier formats stream events for the connection transport and, on the
// terminal paths, signals the durable engine so the waiting workflow is
// always released.
type Notifier struct {
	sender ws.Sender
	engine EngineSignaler
	logger *logging.Logger
}

// NewNotifier creates a new Notifier.
func NewNotifier(sender ws.Sender, engine EngineSignaler, logger *logging.Logger) *Notifier {
	return &Notifier{sender: sender, engine: engine, logger: logger}
}

// NotifyStart announces the stream to the client.
func (n *Notifier) NotifyStart(req Request) {
	n.sender.SendToUser(req.UserID, models.NewEvent(models.EventStreamStart, map[string]any{
		"requestId": req.RequestID,
	}))
}

// NotifyChunk forwards one content increment to the client.
func (n *Notifier) NotifyChunk(req Request, chunk Chunk) {
	n.sender.SendToUser(req.UserID, models.NewEvent(models.EventStreamChunk, map[string]any{
		"requestId":   req.RequestID,
		"delta":       chunk.Delta,
		"accumulated": chunk.Accumulated,
	}))
}

// NotifyComplete sends stream.end to the client and signals the engine with
// the finished result.
func (n *Notifier) NotifyComplete(ctx context.Context, req Request, result Result) error {
	n.sender.SendToUser(req.UserID, models.NewEvent(models.EventStreamEnd, map[string]any{
		"requestId": req.RequestID,
		"message": models.MessagePayload{
			ID:        result.MessageID,
			Role:      "assistant",
			Content:   result.Content,
			AgentName: result.AgentName,
		},
	}))

	err := n.engine.SignalStreamingComplete(ctx, req.WorkflowID, models.StreamingResult{
		RequestID: req.RequestID,
		Content:   result.Content,
		AgentName: result.AgentName,
	})
	if err != nil {
		n.logger.Error("failed to signal workflow", "workflow_id", req.WorkflowID, "request_id", req.RequestID, "error", err)
		return err
	}

	n.logger.Debug("signaled workflow", "workflow_id", req.WorkflowID, "request_id", req.RequestID)
	return nil
}

// NotifyError sends stream.error to the client and signals the engine with
// the error, so the workflow's wait is released rather than timing out.
func (n *Notifier) NotifyError(ctx context.Context, req Request, errMsg string, recoverable bool) {
	n.sender.SendToUser(req.UserID, models.NewEvent(models.EventStreamError, map[string]any{
		"requestId":   req.RequestID,
		"error":       errMsg,
		"recoverable": recoverable,
	}))
	n.logger.Warn("stream error", "request_id", req.RequestID, "error", errMsg, "recoverable", recoverable)

	err := n.engine.SignalStreamingComplete(ctx, req.WorkflowID, models.StreamingResult{
		RequestID: req.RequestID,
		Error:     errMsg,
	})
	if err != nil {
		n.logger.Error("failed to signal workflow error", "workflow_id", req.WorkflowID, "request_id", req.RequestID, "error", err)
	}
}
