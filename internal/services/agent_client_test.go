package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentClientRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/agents/run", r.URL.Path)

		var req AgentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "greeter", req.AgentName)
		require.Equal(t, "hello", req.Message)

		json.NewEncoder(w).Encode(map[string]any{
			"content": "hi there!",
			"signal":  map[string]any{"action": "complete_step"},
		})
	}))
	defer srv.Close()

	c := NewHTTPAgentClient(srv.URL)
	result, err := c.Run(context.Background(), AgentRequest{AgentName: "greeter", UserID: "u1", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hi there!", result.Content)
	require.Equal(t, "complete_step", string(result.WorkflowSignal().Action))
}

func TestAgentClientRunErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPAgentClient(srv.URL)
	_, err := c.Run(context.Background(), AgentRequest{AgentName: "greeter"})
	require.ErrorContains(t, err, "status 500")
}

func TestAgentClientOpenStream(t *testing.T) {
	frames := []streamFrame{
		{Text: "Hel"},
		{Text: "Hello wo"},
		{Text: "Hello world", Done: true},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents/stream", r.URL.Path)
		require.Equal(t, "application/x-ndjson", r.Header.Get("Accept"))

		for _, f := range frames {
			b, _ := json.Marshal(f)
			fmt.Fprintf(w, "%s\n", b)
		}
	}))
	defer srv.Close()

	c := NewHTTPAgentClient(srv.URL)
	ts, err := c.OpenStream(context.Background(), AgentRequest{AgentName: "greeter", Message: "hello"})
	require.NoError(t, err)
	defer ts.Close()

	var snapshots []string
	for {
		text, err := ts.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		snapshots = append(snapshots, text)
	}
	require.Equal(t, []string{"Hel", "Hello wo", "Hello world"}, snapshots)
}

func TestAgentClientOpenStreamEndsAtDoneFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"text":"all of it","done":true}`)
		fmt.Fprintln(w, `{"text":"trailing frame"}`)
	}))
	defer srv.Close()

	c := NewHTTPAgentClient(srv.URL)
	ts, err := c.OpenStream(context.Background(), AgentRequest{})
	require.NoError(t, err)
	defer ts.Close()

	text, err := ts.Recv()
	require.NoError(t, err)
	require.Equal(t, "all of it", text)

	_, err = ts.Recv()
	require.Equal(t, io.EOF, err, "frames after done must not be delivered")
}

func TestAgentClientOpenStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPAgentClient(srv.URL)
	_, err := c.OpenStream(context.Background(), AgentRequest{})
	require.ErrorContains(t, err, "status 502")
}
