package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"onboardflow/backend/pkg/models"
)

// recordingSender captures every event pushed toward a user.
type recordingSender struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSender) SendToUser(userID string, event models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return true
}

func (s *recordingSender) byType(eventType string) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, ev := range s.events {
		if ev["type"] == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// recordingSignaler captures engine signals delivered on terminal paths.
type recordingSignaler struct {
	mu      sync.Mutex
	signals []models.StreamingResult
}

func (s *recordingSignaler) SignalStreamingComplete(ctx context.Context, workflowID string, result models.StreamingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, result)
	return nil
}

func (s *recordingSignaler) all() []models.StreamingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StreamingResult(nil), s.signals...)
}

func newTestOrchestrator(t *testing.T, runner *scriptedRunner) (*Orchestrator, *recordingSender, *recordingSignaler) {
	t.Helper()
	sender := &recordingSender{}
	signaler := &recordingSignaler{}
	logger := testLogger()
	executor := NewExecutor(runner, logger)
	notifier := NewNotifier(sender, signaler, logger)
	return NewOrchestrator(context.Background(), executor, notifier, logger), sender, signaler
}

func TestOrchestratorHappyPath(t *testing.T) {
	runner := &scriptedRunner{stream: &scriptedStream{snapshots: []string{"Hi", "Hi there"}}}
	o, sender, signaler := newTestOrchestrator(t, runner)

	o.StartStream(Request{RequestID: "r1", UserID: "u1", WorkflowID: "wf-1", AgentName: "greeter"})

	require.Eventually(t, func() bool {
		return o.ActiveCount() == 0 && len(signaler.all()) > 0
	}, time.Second, 5*time.Millisecond)

	require.Len(t, sender.byType(models.EventStreamStart), 1)
	require.Len(t, sender.byType(models.EventStreamChunk), 2)
	require.Len(t, sender.byType(models.EventStreamEnd), 1)
	require.Empty(t, sender.byType(models.EventStreamError))

	signals := signaler.all()
	require.Len(t, signals, 1)
	require.Equal(t, "r1", signals[0].RequestID)
	require.Equal(t, "Hi there", signals[0].Content)
	require.Equal(t, "greeter", signals[0].AgentName)
	require.Empty(t, signals[0].Error)
}

func TestOrchestratorDuplicateStartIsNoOp(t *testing.T) {
	unblock := make(chan struct{})
	runner := &scriptedRunner{stream: &scriptedStream{unblock: unblock}}
	o, sender, _ := newTestOrchestrator(t, runner)

	req := Request{RequestID: "r1", UserID: "u1", WorkflowID: "wf-1"}
	o.StartStream(req)
	o.StartStream(req)
	require.Equal(t, 1, o.ActiveCount())

	close(unblock)
	require.Eventually(t, func() bool { return o.ActiveCount() == 0 }, time.Second, 5*time.Millisecond)

	require.Len(t, sender.byType(models.EventStreamStart), 1, "duplicate start must not notify twice")
}

func TestOrchestratorOpenStreamFailureSignalsEngine(t *testing.T) {
	runner := &scriptedRunner{openErr: errors.New("agent service down")}
	o, sender, signaler := newTestOrchestrator(t, runner)

	o.StartStream(Request{RequestID: "r1", UserID: "u1", WorkflowID: "wf-1"})

	require.Eventually(t, func() bool { return len(signaler.all()) > 0 }, time.Second, 5*time.Millisecond)

	signals := signaler.all()
	require.Len(t, signals, 1)
	require.Equal(t, "r1", signals[0].RequestID)
	require.Contains(t, signals[0].Error, "agent service down")

	errEvents := sender.byType(models.EventStreamError)
	require.Len(t, errEvents, 1)
	require.Equal(t, false, errEvents[0]["recoverable"])
}

func TestOrchestratorCancelStream(t *testing.T) {
	unblock := make(chan struct{})
	runner := &scriptedRunner{stream: &scriptedStream{snapshots: []string{"never delivered"}, unblock: unblock}}
	o, sender, signaler := newTestOrchestrator(t, runner)

	require.False(t, o.CancelStream("missing"))

	o.StartStream(Request{RequestID: "r1", UserID: "u1", WorkflowID: "wf-1"})
	require.Eventually(t, func() bool { return o.ActiveCount() == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, o.CancelStream("r1"))
	close(unblock)

	require.Eventually(t, func() bool { return len(signaler.all()) > 0 }, time.Second, 5*time.Millisecond)

	errEvents := sender.byType(models.EventStreamError)
	require.Len(t, errEvents, 1)
	require.Equal(t, true, errEvents[0]["recoverable"])
	require.Equal(t, "stream cancelled", errEvents[0]["error"])

	require.Equal(t, 0, o.ActiveCount())
}
