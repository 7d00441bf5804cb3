package stream

import (
	"context"
	"errors"
	"sync"

	"onboardflow/backend/internal/logging"
)

// Orchestrator owns the background goroutine for each in-flight stream. The
// goroutines derive from the orchestrator's root context, not the caller's,
// so a stream survives the activity that started it.
type Orchestrator struct {
	executor *Executor
	notifier *Notifier
	logger   *logging.Logger

	rootCtx context.Context

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewOrchestrator creates an orchestrator whose streams live under rootCtx.
func NewOrchestrator(rootCtx context.Context, executor *Executor, notifier *Notifier, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		executor: executor,
		notifier: notifier,
		logger:   logger,
		rootCtx:  rootCtx,
		active:   make(map[string]context.CancelFunc),
	}
}

// StartStream launches the stream for req in the background and returns
// immediately. Starting a request id that is already running is a no-op.
func (o *Orchestrator) StartStream(req Request) {
	o.mu.Lock()
	if _, exists := o.active[req.RequestID]; exists {
		o.mu.Unlock()
		o.logger.Warn("stream already running, ignoring duplicate start", "request_id", req.RequestID)
		return
	}
	ctx, cancel := context.WithCancel(o.rootCtx)
	o.active[req.RequestID] = cancel
	o.mu.Unlock()

	o.logger.Info("starting stream", "request_id", req.RequestID, "agent", req.AgentName, "user_id", req.UserID)

	go o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req Request) {
	defer o.remove(req.RequestID)

	o.notifier.NotifyStart(req)

	err := o.executor.Execute(ctx, req, func(chunk Chunk) error {
		o.notifier.NotifyChunk(req, chunk)
		return nil
	})

	// Terminal notifications signal the engine even when the client is gone,
	// so use the root context rather than the (possibly cancelled) stream one.
	switch {
	case errors.Is(err, context.Canceled):
		o.notifier.NotifyError(o.rootCtx, req, "stream cancelled", true)
	case err != nil:
		o.notifier.NotifyError(o.rootCtx, req, err.Error(), false)
	default:
		result, resErr := o.executor.GetResult(req.RequestID, req.AgentName)
		if resErr != nil {
			o.notifier.NotifyError(o.rootCtx, req, resErr.Error(), false)
			return
		}
		if nErr := o.notifier.NotifyComplete(o.rootCtx, req, result); nErr != nil {
			o.logger.Error("stream completion signal failed", "request_id", req.RequestID, "error", nErr)
		}
	}
}

// CancelStream requests cancellation of a running stream. Returns false when
// no stream with that request id is active.
func (o *Orchestrator) CancelStream(requestID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[requestID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	o.logger.Info("cancelling stream", "request_id", requestID)
	cancel()
	o.executor.Cancel(requestID)
	return true
}

// ActiveCount reports the number of in-flight streams.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) remove(requestID string) {
	o.mu.Lock()
	cancel, ok := o.active[requestID]
	delete(o.active, requestID)
	o.mu.Unlock()
	if ok {
		cancel()
	}
}
