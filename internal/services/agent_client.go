package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"onboardflow/backend/pkg/models"
)

// HTTPAgentClient invokes agents hosted by the model sidecar over HTTP.
type HTTPAgentClient struct {
	url    string
	client *http.Client
}

// NewHTTPAgentClient creates a new HTTPAgentClient.
func NewHTTPAgentClient(url string) *HTTPAgentClient {
	return &HTTPAgentClient{
		url: url,
		// No client timeout; model calls are bounded by the caller's
		// context deadline instead.
		client: &http.Client{},
	}
}

// Run performs a blocking agent invocation.
func (c *HTTPAgentClient) Run(ctx context.Context, req AgentRequest) (*models.AgentResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/agents/run", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent run returned status %d", resp.StatusCode)
	}

	var result models.AgentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return &result, nil
}

// OpenStream starts a streaming invocation. The sidecar emits one JSON frame
// per line, each carrying the full accumulated text so far.
func (c *HTTPAgentClient) OpenStream(ctx context.Context, req AgentRequest) (TextStream, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/agents/stream", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("agent stream returned status %d", resp.StatusCode)
	}

	return &ndjsonStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

type streamFrame struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// ndjsonStream reads newline-delimited JSON frames of cumulative text.
type ndjsonStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ndjsonStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}

	var frame streamFrame
	if err := json.Unmarshal(s.scanner.Bytes(), &frame); err != nil {
		return "", fmt.Errorf("failed to decode stream frame: %w", err)
	}
	if frame.Done {
		s.done = true
	}
	return frame.Text, nil
}

func (s *ndjsonStream) Close() error {
	return s.body.Close()
}

var _ AgentRunner = (*HTTPAgentClient)(nil)

// DefaultRunTimeout bounds synchronous agent invocations when the caller did
// not set a deadline.
const DefaultRunTimeout = 2 * time.Minute
