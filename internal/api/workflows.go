// Package api contains the HTTP handlers for the onboarding service.
package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"onboardflow/backend/internal/repository"
	"onboardflow/backend/pkg/models"
)

// StartRequest begins a user's onboarding workflow.
type StartRequest struct {
	UserID  string         `json:"user_id"`
	Context map[string]any `json:"context,omitempty"`
}

// StartOnboarding launches (or resumes) the onboarding workflow for a user.
// (POST /api/v1/onboarding/start)
func (s *Server) StartOnboarding(c echo.Context) error {
	ctx := c.Request().Context()

	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	instanceID, err := s.Workflows.Start(ctx, req.UserID, req.Context)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start workflow: "+err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"instance_id": instanceID})
}

// MessageRequest is one inbound user message. When Stream is set and no
// request id is supplied, the server mints one and returns it so the client
// can correlate the stream events.
type MessageRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

// SendMessage signals a user message to the workflow.
// (POST /api/v1/onboarding/:userID/messages)
func (s *Server) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userID")

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	if req.Stream && req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	err := s.Workflows.SignalUserMessage(ctx, userID, models.UserMessage{
		Content:        req.Content,
		ConversationID: req.ConversationID,
		RequestID:      req.RequestID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to deliver message: "+err.Error())
	}

	resp := map[string]any{"status": "queued"}
	if req.RequestID != "" {
		resp["request_id"] = req.RequestID
	}
	return c.JSON(http.StatusAccepted, resp)
}

// GetState returns the persisted workflow state for a user.
// (GET /api/v1/onboarding/:userID/state)
func (s *Server) GetState(c echo.Context) error {
	ctx := c.Request().Context()

	state, err := s.Workflows.GetState(ctx, c.Param("userID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "No workflow for user")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, state)
}

// GetCurrentStep returns the user's current step name.
// (GET /api/v1/onboarding/:userID/step)
func (s *Server) GetCurrentStep(c echo.Context) error {
	ctx := c.Request().Context()

	step, err := s.Workflows.GetCurrentStep(ctx, c.Param("userID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "No workflow for user")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"current_step": step})
}

// GetProgress returns the user's progress summary.
// (GET /api/v1/onboarding/:userID/progress)
func (s *Server) GetProgress(c echo.Context) error {
	ctx := c.Request().Context()

	progress, err := s.Workflows.GetProgress(ctx, c.Param("userID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "No workflow for user")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, progress)
}

// CancelStream cooperatively cancels an in-flight stream.
// (DELETE /api/v1/streams/:requestID)
func (s *Server) CancelStream(c echo.Context) error {
	requestID := c.Param("requestID")

	if !s.Streams.CancelStream(requestID) {
		return echo.NewHTTPError(http.StatusNotFound, "No active stream with that request id")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}
