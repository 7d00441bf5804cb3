package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"onboardflow/backend/internal/onboarding"
	"onboardflow/backend/internal/services"
	"onboardflow/backend/pkg/models"
)

// Server exposes the onboarding workflow to MCP clients: progress queries,
// fact recall, and message delivery into the workflow.
type Server struct {
	mcpServer *server.MCPServer
	workflows *onboarding.Service
	memory    services.MemorySearcher
}

func NewServer(workflows *onboarding.Service, memory services.MemorySearcher) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Onboarding Flow",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
		memory:    memory,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_progress",
			mcp.WithDescription("Get a user's onboarding progress"),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("The user to look up")),
		),
		s.handleGetProgress,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"recall_memories",
			mcp.WithDescription("Recall facts known about a user"),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("The user to look up")),
			mcp.WithString("query", mcp.Required(), mcp.Description("The query to search for")),
		),
		s.handleRecallMemories,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"send_message",
			mcp.WithDescription("Send a message into a user's onboarding workflow"),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("The target user")),
			mcp.WithString("content", mcp.Required(), mcp.Description("The message content")),
		),
		s.handleSendMessage,
	)
}

func (s *Server) handleGetProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return mcp.NewToolResultError("Missing required parameter: user_id"), nil
	}

	progress, err := s.workflows.GetProgress(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get progress: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(progress)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRecallMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return mcp.NewToolResultError("Missing required parameter: user_id"), nil
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return mcp.NewToolResultError("Missing required parameter: query"), nil
	}

	facts, err := s.memory.Search(ctx, userID, query, 10)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to recall: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(facts)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return mcp.NewToolResultError("Missing required parameter: user_id"), nil
	}

	content, ok := args["content"].(string)
	if !ok || content == "" {
		return mcp.NewToolResultError("Missing required parameter: content"), nil
	}

	err := s.workflows.SignalUserMessage(ctx, userID, models.UserMessage{Content: content})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to deliver message: %v", err)), nil
	}

	return mcp.NewToolResultText("Message queued"), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
