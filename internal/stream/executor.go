package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/services"
)

// ErrUnknownRequest is returned for operations on a request id with no
// in-flight state.
var ErrUnknownRequest = errors.New("no active stream for request")

// Executor runs streaming model invocations. It owns the per-request state
// and converts the model's cumulative text snapshots into delta chunks; it
// does not notify anyone — that is the Notifier's job.
type Executor struct {
	runner services.AgentRunner
	logger *logging.Logger

	mu     sync.Mutex
	active map[string]*state
}

// NewExecutor creates a new Executor.
func NewExecutor(runner services.AgentRunner, logger *logging.Logger) *Executor {
	return &Executor{
		runner: runner,
		logger: logger,
		active: make(map[string]*state),
	}
}

// Execute opens the streaming model call and invokes emit for every chunk.
// It returns once the stream is exhausted, the context is cancelled, or the
// model call fails. On success the per-request state stays behind for
// GetResult; on any failure it is discarded.
func (e *Executor) Execute(ctx context.Context, req Request, emit func(Chunk) error) error {
	st := &state{}
	e.mu.Lock()
	e.active[req.RequestID] = st
	e.mu.Unlock()

	ts, err := e.runner.OpenStream(ctx, services.AgentRequest{
		AgentName:   req.AgentName,
		UserID:      req.UserID,
		Message:     req.UserMessage,
		Context:     req.Context,
		Collections: req.Collections,
		Memories:    req.Memories,
	})
	if err != nil {
		e.discard(req.RequestID)
		return fmt.Errorf("opening stream: %w", err)
	}
	defer ts.Close()

	e.logger.Info("stream started", "request_id", req.RequestID, "agent", req.AgentName)

	for {
		if err := ctx.Err(); err != nil {
			e.discard(req.RequestID)
			return err
		}

		accumulated, err := ts.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.discard(req.RequestID)
			return fmt.Errorf("receiving stream frame: %w", err)
		}

		var chunk Chunk
		e.mu.Lock()
		chunk = st.update(accumulated)
		e.mu.Unlock()

		if chunk.Delta == "" {
			continue
		}
		if err := emit(chunk); err != nil {
			e.discard(req.RequestID)
			return err
		}
	}

	e.logger.Info("stream completed", "request_id", req.RequestID, "chars", len(st.accumulated))
	return nil
}

// GetResult finalizes a completed stream: it mints a message id, returns the
// accumulated content and discards the per-request state. Calling it for an
// unknown request id is an error.
func (e *Executor) GetResult(requestID, agentName string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.active[requestID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	delete(e.active, requestID)

	return Result{
		MessageID: uuid.NewString(),
		Content:   st.accumulated,
		AgentName: agentName,
	}, nil
}

// Accumulated returns the content gathered so far for an active stream.
func (e *Executor) Accumulated(requestID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.active[requestID]
	if !ok {
		return "", false
	}
	return st.accumulated, true
}

// Cancel removes the stream's state. Returns false when no such stream is
// active.
func (e *Executor) Cancel(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[requestID]; !ok {
		return false
	}
	delete(e.active, requestID)
	return true
}

// discard drops per-request state on a failed stream so it cannot leak or
// later be finalized into a result.
func (e *Executor) discard(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, requestID)
}
