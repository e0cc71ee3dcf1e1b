// leasecheck - Contract fairness scoring for extracted car lease records.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/leasecheck/internal/api"
	"github.com/opensource-finance/leasecheck/internal/assessment"
	"github.com/opensource-finance/leasecheck/internal/bus"
	"github.com/opensource-finance/leasecheck/internal/cache"
	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/quota"
	"github.com/opensource-finance/leasecheck/internal/repository"
	"github.com/opensource-finance/leasecheck/internal/rules"
	"github.com/opensource-finance/leasecheck/internal/scoring"
	"github.com/opensource-finance/leasecheck/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "leasecheck: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting leasecheck",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	if err := run(cfg); err != nil {
		slog.Error("leasecheck failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *domain.Config) error {
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"quota_enabled", cfg.Quota.Enabled,
	)

	// Spans go to whatever provider is registered globally; with tracing
	// off we pin the no-op provider.
	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	heuristics := scoring.DefaultHeuristics()
	if path := cfg.Scoring.HeuristicsPath; path != "" {
		var err error
		heuristics, err = scoring.LoadHeuristics(path)
		if err != nil {
			return fmt.Errorf("load heuristics: %w", err)
		}
		slog.Info("heuristics profile loaded", "path", path, "version", heuristics.Version)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.NewEngine(cfg.Scoring.MaxRuleWorkers)
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}
	if os.Getenv("LEASECHECK_SEED_RULES") == "true" {
		if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
			return fmt.Errorf("load builtin rules: %w", err)
		}
	}
	tenants := splitList(os.Getenv("LEASECHECK_TENANTS"))
	loadTenantRules(ctx, repo, engine, tenants)
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	processor := assessment.NewProcessor(scoring.NewScorer(heuristics), engine)
	processor.Cache = cacheImpl
	processor.ResultTTL = cfg.Cache.ResultTTL
	processor.ReviewThreshold = cfg.Scoring.ReviewThreshold
	slog.Info("assessment processor initialized", "review_threshold", processor.ReviewThreshold)

	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("LEASECHECK_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, processor)
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenants}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Processor: processor,
		Quota:     quota.NewLimiter(cfg.Quota, cacheImpl),
	}, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("leasecheck is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("leasecheck shutdown complete")
	return nil
}

// loadTenantRules loads the stored clause rules of each listed tenant.
// Other tenants pick up their rules through POST /rules/reload.
func loadTenantRules(ctx context.Context, repo domain.Repository, engine *rules.Engine, tenants []string) {
	for _, tenantID := range tenants {
		stored, err := repo.ListClauseRules(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list clause rules", "tenant_id", tenantID, "error", err)
			continue
		}
		if err := engine.ReloadTenant(tenantID, stored); err != nil {
			slog.Warn("failed to load clause rules", "tenant_id", tenantID, "error", err)
			continue
		}
		slog.Info("clause rules loaded", "tenant_id", tenantID, "count", len(stored))
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  leasecheck - lease contract fairness")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /analyze            - Score and store a lease record")
	fmt.Println("    POST   /score              - Score a lease record (stateless)")
	fmt.Println("    GET    /assessments        - List recent assessments")
	fmt.Println("    GET    /assessments/{id}   - Get assessment by ID")
	fmt.Println("    GET    /documents/{id}     - Get stored lease record")
	fmt.Println("    GET    /heuristics         - Active scoring table")
	fmt.Println("    GET    /rules              - List clause rules")
	fmt.Println("    POST   /rules              - Create a clause rule")
	fmt.Println("    DELETE /rules/{id}         - Disable a clause rule")
	fmt.Println("    POST   /rules/reload       - Reload tenant rules from database")
	fmt.Println("    GET    /health             - Health check")
	fmt.Println()
}
