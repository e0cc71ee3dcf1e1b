// leasecheck - Contract fairness scoring for extracted car lease records.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command leasecheck-batch scores a directory of extracted lease records.
//
// Usage:
//
//	leasecheck-batch -dir ./extracted
//	leasecheck-batch -dir ./extracted -url http://localhost:8080 -tenant acme
//
// Without -url records are scored in-process with the built-in clause rules.
// With -url each record is posted to POST /analyze and stored by the server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/leasecheck/internal/assessment"
	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/rules"
	"github.com/opensource-finance/leasecheck/internal/scoring"
)

// result is one scored file.
type result struct {
	File   string
	Status string
	Score  int
	Flags  []string
	Err    error
}

// Metrics tracks batch results
type Metrics struct {
	Processed int64
	Fair      int64
	Review    int64
	Errors    int64

	ProcessingTimeMs int64
}

// scoreFunc scores one raw record.
type scoreFunc func(ctx context.Context, name string, raw []byte) (*domain.AssessmentResponse, error)

func main() {
	dir := flag.String("dir", "", "Directory of extracted lease records (*.json)")
	baseURL := flag.String("url", "", "leasecheck base URL; empty scores locally")
	tenantID := flag.String("tenant", "batch", "Tenant ID for requests")
	heuristicsPath := flag.String("heuristics", "", "Heuristics profile for local scoring")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each record result")
	flag.Parse()

	if *dir == "" {
		fmt.Println("Usage: leasecheck-batch -dir ./extracted [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.json"))
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(files)
	if len(files) == 0 {
		fmt.Printf("No *.json records in %s\n", *dir)
		return
	}

	var score scoreFunc
	if *baseURL != "" {
		if err := checkHealth(*baseURL); err != nil {
			fmt.Printf("ERROR: leasecheck not reachable at %s: %v\n", *baseURL, err)
			os.Exit(1)
		}
		score = remoteScorer(strings.TrimRight(*baseURL, "/"), *tenantID)
	} else {
		score, err = localScorer(*heuristicsPath, *tenantID)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Scoring %d records with %d workers...\n\n", len(files), *workers)
	start := time.Now()
	results, metrics := runBatch(context.Background(), files, score, *workers)

	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("ERROR  %-40s %v\n", filepath.Base(r.File), r.Err)
			continue
		}
		if *verbose || r.Status == domain.StatusReview {
			fmt.Printf("%-6s %-40s %3d  %s\n", r.Status, filepath.Base(r.File), r.Score, strings.Join(r.Flags, ", "))
		}
	}
	printSummary(metrics, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func localScorer(heuristicsPath, tenantID string) (scoreFunc, error) {
	heuristics := scoring.DefaultHeuristics()
	if heuristicsPath != "" {
		var err error
		if heuristics, err = scoring.LoadHeuristics(heuristicsPath); err != nil {
			return nil, err
		}
	}

	engine, err := rules.NewEngine(4)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		return nil, err
	}
	processor := assessment.NewProcessor(scoring.NewScorer(heuristics), engine)

	return func(ctx context.Context, name string, raw []byte) (*domain.AssessmentResponse, error) {
		rec, err := domain.DecodeLeaseRecord(raw)
		if err != nil {
			return nil, err
		}
		a := processor.Process(ctx, &assessment.Input{
			TenantID:   tenantID,
			DocumentID: name,
			Record:     rec,
		})
		return a.ToResponse(), nil
	}, nil
}

func remoteScorer(baseURL, tenantID string) scoreFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, name string, raw []byte) (*domain.AssessmentResponse, error) {
		target := baseURL + "/analyze?source=" + url.QueryEscape(name)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", tenantID)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}

		var out domain.AssessmentResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return &out, nil
	}
}

// runBatch scores files concurrently. Results keep the order of files.
func runBatch(ctx context.Context, files []string, score scoreFunc, numWorkers int) ([]result, *Metrics) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	metrics := &Metrics{}
	results := make([]result, len(files))

	work := make(chan int, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				start := time.Now()
				results[idx] = scoreFile(ctx, files[idx], score)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.Processed, 1)

				switch {
				case results[idx].Err != nil:
					atomic.AddInt64(&metrics.Errors, 1)
				case results[idx].Status == domain.StatusReview:
					atomic.AddInt64(&metrics.Review, 1)
				default:
					atomic.AddInt64(&metrics.Fair, 1)
				}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)
	wg.Wait()

	return results, metrics
}

func scoreFile(ctx context.Context, path string, score scoreFunc) result {
	r := result{File: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		r.Err = err
		return r
	}

	resp, err := score(ctx, filepath.Base(path), raw)
	if err != nil {
		r.Err = err
		return r
	}

	r.Status = resp.Status
	r.Score = resp.ContractFairnessScore
	for _, f := range resp.RedFlagClauses {
		r.Flags = append(r.Flags, f.Clause)
	}
	return r
}

func printSummary(m *Metrics, duration time.Duration) {
	fmt.Println()
	fmt.Println("SUMMARY")
	fmt.Printf("   Processed:  %d\n", m.Processed)
	fmt.Printf("   Fair:       %d\n", m.Fair)
	fmt.Printf("   Review:     %d\n", m.Review)
	fmt.Printf("   Errors:     %d\n", m.Errors)
	fmt.Printf("   Duration:   %v\n", duration.Round(time.Millisecond))
	if m.Processed > 0 {
		fmt.Printf("   Avg/record: %.2fms\n", float64(m.ProcessingTimeMs)/float64(m.Processed))
	}
}
