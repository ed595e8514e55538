// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the attendrisk MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.HistoryManager, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"Attendance Risk Server",
		version,
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: evaluate_attendance ---
	s.AddTool(mcp.NewTool("evaluate_attendance",
		mcp.WithDescription("Evaluate attendance logs and vision detections and rank students by risk of missing the attendance requirement."),
		mcp.WithString("logs_path", mcp.Description("Path to a CSV or JSON file of attendance log records (defaults to the configured logs).")),
		mcp.WithString("detections_path", mcp.Description("Path to a CSV or JSON file of vision detections (defaults to the configured detections).")),
		mcp.WithString("min_label", mcp.Description("Only return students at or above this risk label. Defaults to 'safe'."), mcp.Enum("safe", "watch", "at_risk")),
		mcp.WithNumber("limit", mcp.Description("Limit the number of reports returned.")),
	), h.handleEvaluateAttendance)

	// --- 2. Tool: explain_student ---
	s.AddTool(mcp.NewTool("explain_student",
		mcp.WithDescription("Return the full risk report of one student: score, label, explanation, attendance summary and outlook."),
		mcp.WithString("student_id", mcp.Description("The student to explain."), mcp.Required()),
		mcp.WithString("logs_path", mcp.Description("Path to a CSV or JSON file of attendance log records.")),
		mcp.WithString("detections_path", mcp.Description("Path to a CSV or JSON file of vision detections.")),
	), h.handleExplainStudent)

	// --- 3. Tool: describe_model ---
	s.AddTool(mcp.NewTool("describe_model",
		mcp.WithDescription("Describe the active risk model: weights, formula, cutoffs and required attendance."),
	), h.handleDescribeModel)

	return s
}

// StartMCPServer starts the attendrisk MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.HistoryManager, version string) error {
	s := NewMCPServer(baseCfg, mgr, version)
	return server.ServeStdio(s)
}
