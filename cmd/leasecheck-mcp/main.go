// leasecheck - Contract fairness scoring for extracted car lease records.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command leasecheck-mcp serves the fairness scorer as MCP tools over stdio.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opensource-finance/leasecheck/internal/mcptool"
	"github.com/opensource-finance/leasecheck/internal/scoring"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("leasecheck-mcp %s\n", Version)
			return
		}
	}

	// stdout carries the MCP protocol; logs go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		slog.Error("leasecheck-mcp failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	heuristics := scoring.DefaultHeuristics()
	if path := os.Getenv("LEASECHECK_HEURISTICS"); path != "" {
		var err error
		heuristics, err = scoring.LoadHeuristics(path)
		if err != nil {
			return fmt.Errorf("load heuristics: %w", err)
		}
	}

	s := mcptool.NewServer(scoring.NewScorer(heuristics), Version)
	return server.ServeStdio(s)
}
