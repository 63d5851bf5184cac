// Package mcpserver exposes the assistant as MCP tools over stdio, so MCP
// clients can drive the same conversational pipeline as the HTTP API.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/merchantry/askdb/orchestrator"
)

// Server wraps the orchestrator behind an MCP tool surface.
type Server struct {
	orch *orchestrator.Orchestrator
	mcp  *server.MCPServer
}

// New builds the MCP server and registers its tools.
func New(orch *orchestrator.Orchestrator, version string) *Server {
	s := &Server{
		orch: orch,
		mcp:  server.NewMCPServer("askdb", version),
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Ask a question about the retail database. Pass the returned session_id on follow-up questions to keep conversational context."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("session_id", mcp.Description("Session identifier from a previous call; omit to start a new session")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool("session_stats",
		mcp.WithDescription("Get statistics and the conversation summary for one session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
	), s.handleSessionStats)

	s.mcp.AddTool(mcp.NewTool("global_stats",
		mcp.WithDescription("Get process-wide query statistics."),
	), s.handleGlobalStats)

	s.mcp.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("End a session and discard its conversational context."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
	), s.handleEndSession)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessionID := req.GetString("session_id", "")

	resp, err := s.orch.Ask(ctx, question, sessionID, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleSessionStats(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stats, err := s.orch.SessionStatistics(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session stats failed: %v", err)), nil
	}
	return jsonResult(stats)
}

func (s *Server) handleGlobalStats(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.orch.GlobalStatistics())
}

func (s *Server) handleEndSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.orch.EndSession(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("end session failed: %v", err)), nil
	}
	return mcp.NewToolResultText("session ended"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
