package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/scoring"
)

// AnalyzeTool handles the analyze_lease MCP tool.
type AnalyzeTool struct {
	scorer *scoring.Scorer
}

// NewAnalyzeTool creates an AnalyzeTool.
func NewAnalyzeTool(scorer *scoring.Scorer) *AnalyzeTool {
	return &AnalyzeTool{scorer: scorer}
}

// Definition returns the MCP tool definition for analyze_lease.
func (t *AnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("analyze_lease",
		mcp.WithDescription(
			"Score an extracted car lease record for contract fairness. "+
				"Returns contract_fairness_score (0-100), red_flag_clauses and fairness_breakdown as JSON.",
		),
		mcp.WithString("record",
			mcp.Required(),
			mcp.Description(`The lease record as a JSON object string, e.g. {"monthly_lease_amount": "Rs. 20,000", "lease_duration": "36 months", "vehicle_details": {"make": "Toyota"}}`),
		),
	)
}

// Handle processes the analyze_lease tool call.
func (t *AnalyzeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := strings.TrimSpace(req.GetString("record", ""))
	if raw == "" {
		return mcp.NewToolResultError("'record' is required"), nil
	}

	rec, err := domain.DecodeLeaseRecord([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("'record' is not valid JSON: %v", err)), nil
	}

	out, err := json.Marshal(t.scorer.Analyze(rec))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
