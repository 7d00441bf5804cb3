package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/onboarding"
	"onboardflow/backend/internal/stream"
	"onboardflow/backend/internal/ws"
)

// Server holds the dependencies for the API server.
type Server struct {
	Workflows *onboarding.Service
	Streams   *stream.Orchestrator
	Hub       *ws.Hub
	Logger    *logging.Logger
}

// NewServer creates a new Server.
func NewServer(workflows *onboarding.Service, streams *stream.Orchestrator, hub *ws.Hub, logger *logging.Logger) *Server {
	return &Server{
		Workflows: workflows,
		Streams:   streams,
		Hub:       hub,
		Logger:    logger,
	}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.HandleHealth)

	v1 := e.Group("/api/v1")
	v1.POST("/onboarding/start", s.StartOnboarding)
	v1.POST("/onboarding/:userID/messages", s.SendMessage)
	v1.GET("/onboarding/:userID/state", s.GetState)
	v1.GET("/onboarding/:userID/step", s.GetCurrentStep)
	v1.GET("/onboarding/:userID/progress", s.GetProgress)
	v1.DELETE("/streams/:requestID", s.CancelStream)

	e.GET("/ws/:userID", s.HandleWebSocket)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "onboardflow",
		Version:   "1.0.0",
	})
}
