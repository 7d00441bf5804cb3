package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/pkg/models"
)

// HTTPMemoryService talks to the fact-extraction sidecar over HTTP. Failures
// are logged and surfaced as errors; callers are expected to degrade rather
// than abort, matching the best-effort contract.
type HTTPMemoryService struct {
	url    string
	client *http.Client
	logger *logging.Logger
}

// NewHTTPMemoryService creates a new HTTPMemoryService.
func NewHTTPMemoryService(url string, logger *logging.Logger) *HTTPMemoryService {
	return &HTTPMemoryService{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type memorySearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

type memorySearchResponse struct {
	Results []struct {
		Memory string `json:"memory"`
	} `json:"results"`
}

// Search returns fact strings relevant to the query.
func (s *HTTPMemoryService) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	var resp memorySearchResponse
	err := s.post(ctx, "/search", memorySearchRequest{UserID: userID, Query: query, Limit: limit}, &resp)
	if err != nil {
		return nil, err
	}

	facts := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Memory != "" {
			facts = append(facts, r.Memory)
		}
	}
	return facts, nil
}

type memoryAddRequest struct {
	UserID   string                 `json:"user_id"`
	Messages []models.MemoryMessage `json:"messages"`
}

// Add feeds conversation turns to fact extraction.
func (s *HTTPMemoryService) Add(ctx context.Context, userID string, messages []models.MemoryMessage) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	var resp memorySearchResponse
	err := s.post(ctx, "/memories", memoryAddRequest{UserID: userID, Messages: messages}, &resp)
	if err != nil {
		return nil, err
	}

	facts := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		facts = append(facts, r.Memory)
	}
	s.logger.Debug("extracted memories", "user_id", userID, "count", len(facts))
	return facts, nil
}

// Available probes the sidecar health endpoint.
func (s *HTTPMemoryService) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (s *HTTPMemoryService) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("memory service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

var _ MemorySearcher = (*HTTPMemoryService)(nil)
