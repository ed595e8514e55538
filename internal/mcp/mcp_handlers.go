package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/attendrisk/attendrisk/core"
	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.HistoryManager
}

// evaluationResponse is the payload of evaluate_attendance.
type evaluationResponse struct {
	Reports []schema.EnrichedRiskReport `json:"reports"`
	Summary schema.BatchSummary         `json:"summary"`
}

// configFor clones the base config and applies the input paths of the request.
func (h *toolHandler) configFor(request mcp.CallToolRequest) *contract.Config {
	cfg := h.baseCfg.Clone()
	if p := request.GetString("logs_path", ""); p != "" {
		cfg.LogsPath = p
	}
	if p := request.GetString("detections_path", ""); p != "" {
		cfg.DetectionsPath = p
	}
	return cfg
}

func (h *toolHandler) handleEvaluateAttendance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.configFor(request)
	if m := request.GetString("min_label", ""); m != "" {
		label := schema.RiskLabel(m)
		if !slices.Contains(schema.AllRiskLabels, label) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid min_label %q: must be safe, watch, at_risk", m)), nil
		}
		cfg.MinLabel = label
	}
	if l := request.GetInt("limit", 0); l > 0 {
		cfg.ResultLimit = l
	}

	result, err := core.GetEvaluationResults(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}

	reports := core.SelectReports(result.Reports, cfg)
	return jsonResult(evaluationResponse{Reports: schema.EnrichReports(reports), Summary: result.Summary})
}

func (h *toolHandler) handleExplainStudent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	studentID := request.GetString("student_id", "")
	if studentID == "" {
		return mcp.NewToolResultError("student_id is required"), nil
	}
	cfg := h.configFor(request)

	result, err := core.GetEvaluationResults(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	report, ok := result.FindReport(studentID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no report for student %s", studentID)), nil
	}
	return jsonResult(report)
}

func (h *toolHandler) handleDescribeModel(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(core.BuildModelRenderModel(h.baseCfg.Engine))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
