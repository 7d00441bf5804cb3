package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/services"
	"onboardflow/backend/pkg/models"
)

// scriptedStream replays a fixed sequence of cumulative snapshots.
type scriptedStream struct {
	snapshots []string
	next      int
	unblock   chan struct{} // when set, Recv blocks until closed
}

func (s *scriptedStream) Recv() (string, error) {
	if s.unblock != nil {
		<-s.unblock
	}
	if s.next >= len(s.snapshots) {
		return "", io.EOF
	}
	snap := s.snapshots[s.next]
	s.next++
	return snap, nil
}

func (s *scriptedStream) Close() error { return nil }

type scriptedRunner struct {
	stream  services.TextStream
	openErr error
}

func (r *scriptedRunner) Run(ctx context.Context, req services.AgentRequest) (*models.AgentResult, error) {
	return nil, errors.New("not a sync runner")
}

func (r *scriptedRunner) OpenStream(ctx context.Context, req services.AgentRequest) (services.TextStream, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.stream, nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger("error")
}

func TestExecutorDeltasConcatenateToAccumulated(t *testing.T) {
	snapshots := []string{"He", "Hello", "Hello wo", "Hello wo", "Hello world"}
	runner := &scriptedRunner{stream: &scriptedStream{snapshots: snapshots}}
	e := NewExecutor(runner, testLogger())

	var chunks []Chunk
	err := e.Execute(context.Background(), Request{RequestID: "r1", AgentName: "greeter"}, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)

	var joined strings.Builder
	for _, c := range chunks {
		require.NotEmpty(t, c.Delta, "empty deltas must be skipped")
		joined.WriteString(c.Delta)
	}
	require.Equal(t, "Hello world", joined.String())
	require.Equal(t, "Hello world", chunks[len(chunks)-1].Accumulated)

	result, err := e.GetResult("r1", "greeter")
	require.NoError(t, err)
	require.Equal(t, "Hello world", result.Content)
	require.Equal(t, "greeter", result.AgentName)
	require.NotEmpty(t, result.MessageID)

	// state is destroyed with the first GetResult
	_, err = e.GetResult("r1", "greeter")
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestExecutorToleratesShrinkingSnapshot(t *testing.T) {
	// A malformed frame where the cumulative text got shorter must degrade
	// to an empty delta, not a slice panic in the stream goroutine.
	snapshots := []string{"Hello world", "Hello", "Hello again"}
	runner := &scriptedRunner{stream: &scriptedStream{snapshots: snapshots}}
	e := NewExecutor(runner, testLogger())

	var deltas []string
	err := e.Execute(context.Background(), Request{RequestID: "r1", AgentName: "greeter"}, func(c Chunk) error {
		deltas = append(deltas, c.Delta)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hello world", " again"}, deltas)

	result, err := e.GetResult("r1", "greeter")
	require.NoError(t, err)
	require.Equal(t, "Hello again", result.Content)
}

func TestExecutorDiscardsStateOnFailedStream(t *testing.T) {
	stream := &scriptedStream{snapshots: []string{"partial"}}
	e := NewExecutor(&scriptedRunner{stream: stream}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	err := e.Execute(ctx, Request{RequestID: "r1"}, func(Chunk) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	_, ok := e.Accumulated("r1")
	require.False(t, ok, "failed streams must not leave state behind")
	_, err = e.GetResult("r1", "greeter")
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestExecutorOpenStreamError(t *testing.T) {
	runner := &scriptedRunner{openErr: errors.New("agent service down")}
	e := NewExecutor(runner, testLogger())

	err := e.Execute(context.Background(), Request{RequestID: "r1"}, func(Chunk) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "agent service down")
}

func TestExecutorStopsOnCancelledContext(t *testing.T) {
	stream := &scriptedStream{snapshots: []string{"a", "ab", "abc"}}
	runner := &scriptedRunner{stream: stream}
	e := NewExecutor(runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	var emitted int
	err := e.Execute(ctx, Request{RequestID: "r1"}, func(Chunk) error {
		emitted++
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, emitted, "no chunk may be emitted after cancellation")
}

func TestExecutorCancel(t *testing.T) {
	e := NewExecutor(&scriptedRunner{stream: &scriptedStream{}}, testLogger())

	require.False(t, e.Cancel("missing"), "cancel is a not-found no-op for unknown ids")

	require.NoError(t, e.Execute(context.Background(), Request{RequestID: "r1"}, func(Chunk) error { return nil }))
	require.True(t, e.Cancel("r1"))

	_, err := e.GetResult("r1", "greeter")
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestExecutorAccumulated(t *testing.T) {
	e := NewExecutor(&scriptedRunner{stream: &scriptedStream{snapshots: []string{"partial text"}}}, testLogger())

	_, ok := e.Accumulated("r1")
	require.False(t, ok)

	require.NoError(t, e.Execute(context.Background(), Request{RequestID: "r1"}, func(Chunk) error { return nil }))

	got, ok := e.Accumulated("r1")
	require.True(t, ok)
	require.Equal(t, "partial text", got)
}
