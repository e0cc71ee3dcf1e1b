package mcptool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensource-finance/leasecheck/internal/scoring"
)

// HeuristicsTool handles the lease_heuristics MCP tool.
type HeuristicsTool struct {
	h *scoring.Heuristics
}

// NewHeuristicsTool creates a HeuristicsTool.
func NewHeuristicsTool(h *scoring.Heuristics) *HeuristicsTool {
	return &HeuristicsTool{h: h}
}

// Definition returns the MCP tool definition for lease_heuristics.
func (t *HeuristicsTool) Definition() mcp.Tool {
	return mcp.NewTool("lease_heuristics",
		mcp.WithDescription("Describe the weights, thresholds and red-flag reasons used by analyze_lease."),
	)
}

// Handle renders the active table as markdown.
func (t *HeuristicsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h := t.h
	var sb strings.Builder

	sb.WriteString("## Fairness Heuristics\n\n")
	fmt.Fprintf(&sb, "Profile version %d, default term %g months.\n\n", h.Version, h.DefaultTerm)

	sb.WriteString("### Weights\n\n")
	fmt.Fprintf(&sb, "- **Financial efficiency**: %g\n", h.Weights.FinancialEfficiency)
	fmt.Fprintf(&sb, "- **Asset value alignment**: %g\n", h.Weights.AssetValueAlignment)
	fmt.Fprintf(&sb, "- **Contract flexibility**: %g\n", h.Weights.ContractFlexibility)
	fmt.Fprintf(&sb, "- **Operational transparency**: %g\n", h.Weights.OperationalTransparency)

	sb.WriteString("\n### Implied annual rate\n\n")
	writeTiers(&sb, "rate below", h.Financial.Tiers, h.Financial.Excess)

	sb.WriteString("\n### Residual gap (percentage points)\n\n")
	writeTiers(&sb, "gap up to", h.Asset.Tiers, h.Asset.Excess)

	sb.WriteString("\n### Early termination fee (% of total payments)\n\n")
	writeTiers(&sb, "fee up to", h.Flexibility.Tiers, h.Flexibility.Excess)

	sb.WriteString("\n### Annual mileage\n\n")
	for _, tier := range h.Transparency.MileageTiers {
		fmt.Fprintf(&sb, "- at least %g km: %d\n", tier.Limit, tier.Score)
	}
	fmt.Fprintf(&sb, "- below: %d\n", h.Transparency.LowMileage.Score)

	sb.WriteString("\n### Red flags\n\n")
	for _, clause := range sortedKeys(h.Reasons) {
		fmt.Fprintf(&sb, "- **%s**: %s\n", clause, h.Reasons[clause])
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func writeTiers(sb *strings.Builder, label string, tiers []scoring.Tier, excess scoring.Outcome) {
	for _, tier := range tiers {
		fmt.Fprintf(sb, "- %s %g: %d\n", label, tier.Limit, tier.Score)
	}
	fmt.Fprintf(sb, "- above: %d", excess.Score)
	if excess.Flag != "" {
		fmt.Fprintf(sb, " (%s)", excess.Flag)
	}
	sb.WriteString("\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
