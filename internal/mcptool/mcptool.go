// Package mcptool exposes the fairness scorer as MCP tools, so an LLM agent
// that has just extracted a lease can score it in the same conversation.
//
// Each tool is a struct with its dependencies injected via constructor,
// a Definition() returning the mcp.Tool schema and a Handle() method.
package mcptool

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/opensource-finance/leasecheck/internal/scoring"
)

// NewServer builds an MCP server with every leasecheck tool registered.
func NewServer(scorer *scoring.Scorer, version string) *server.MCPServer {
	if scorer == nil {
		scorer = scoring.NewScorer(nil)
	}

	s := server.NewMCPServer(
		"leasecheck",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	analyze := NewAnalyzeTool(scorer)
	s.AddTool(analyze.Definition(), analyze.Handle)

	heuristics := NewHeuristicsTool(scorer.Heuristics())
	s.AddTool(heuristics.Definition(), heuristics.Handle)

	return s
}

const instructions = `leasecheck scores extracted car lease records for contract fairness.
Call analyze_lease with the JSON record produced from a lease PDF. The result
holds a 0-100 contract_fairness_score, the red-flag clauses with reasons and a
per-dimension breakdown. Call lease_heuristics to see the thresholds behind a score.`
