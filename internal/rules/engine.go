// Package rules provides the CEL-Go based clause rule engine.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

// Engine evaluates tenant clause rules against scored lease facts.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ClauseRule
	Program cel.Program
}

// NewEngine creates a new clause rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("monthly", cel.DoubleType),
		cel.Variable("term", cel.DoubleType),
		cel.Variable("termination_fee", cel.DoubleType),
		cel.Variable("purchase_price", cel.DoubleType),
		cel.Variable("mileage", cel.DoubleType),
		cel.Variable("residual", cel.DoubleType),
		cel.Variable("rate", cel.DoubleType),
		cel.Variable("make", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("present", cel.MapType(cel.StringType, cel.BoolType)),
		cel.Variable("score", cel.IntType),
		cel.Variable("breakdown", cel.MapType(cel.StringType, cel.IntType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ClauseRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ClauseRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[ruleKey(cfg)] = compiled

	return nil
}

// LoadRules compiles and loads the enabled rules.
func (e *Engine) LoadRules(configs []*domain.ClauseRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnloadRule removes a rule; unknown rules are ignored.
func (e *Engine) UnloadRule(tenantID, ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiledRules, tenantID+"/"+ruleID)
}

// ReloadRules clears all existing rules and loads new ones.
// The engine is left untouched when any rule fails to compile.
func (e *Engine) ReloadRules(configs []*domain.ClauseRule) error {
	newRules := make(map[string]*CompiledRule)

	e.mu.RLock()
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			e.mu.RUnlock()
			return err
		}
		newRules[ruleKey(cfg)] = compiled
	}
	e.mu.RUnlock()

	e.mu.Lock()
	e.compiledRules = newRules
	e.mu.Unlock()

	return nil
}

// ReloadTenant replaces the rules owned by tenantID, leaving global rules
// and other tenants untouched. Configs for other tenants are ignored.
// Nothing changes when any rule fails to compile.
func (e *Engine) ReloadTenant(tenantID string, configs []*domain.ClauseRule) error {
	fresh := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled || cfg.TenantID != tenantID {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		fresh[ruleKey(cfg)] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, rule := range e.compiledRules {
		if rule.Config.TenantID == tenantID {
			delete(e.compiledRules, key)
		}
	}
	for key, rule := range fresh {
		e.compiledRules[key] = rule
	}
	return nil
}

// Evaluate runs every rule visible to the tenant in parallel and returns
// the flags of the rules that matched, ordered by rule ID. Rules with an
// empty TenantID apply to every tenant. A rule that fails to evaluate is
// logged and skipped.
func (e *Engine) Evaluate(ctx context.Context, tenantID string, facts *Facts) []domain.RedFlag {
	rules := e.rulesFor(tenantID)
	if len(rules) == 0 {
		return nil
	}

	activation := facts.activation()

	matched := make([]bool, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if ctx.Err() != nil {
				return
			}
			matched[idx] = e.evaluateRule(ctx, r, activation)
		}(i, rule)
	}

	wg.Wait()

	flags := make([]domain.RedFlag, 0, len(rules))
	for i, r := range rules {
		if matched[i] {
			flags = append(flags, domain.RedFlag{Clause: r.Config.Clause, Reason: r.Config.Reason})
		}
	}
	return flags
}

func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any) bool {
	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		slog.Warn("clause rule evaluation failed",
			"rule_id", rule.Config.ID,
			"tenant_id", rule.Config.TenantID,
			"error", err,
		)
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// rulesFor returns the tenant's rules sorted by ID.
func (e *Engine) rulesFor(tenantID string) []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Config.TenantID == "" || rule.Config.TenantID == tenantID {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Config.ID != rules[j].Config.ID {
			return rules[i].Config.ID < rules[j].Config.ID
		}
		return rules[i].Config.TenantID < rules[j].Config.TenantID
	})
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// CountFor returns the number of rules that apply to a tenant.
func (e *Engine) CountFor(tenantID string) int {
	return len(e.rulesFor(tenantID))
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.ClauseRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ClauseRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.ClauseRule) (*CompiledRule, error) {
	if cfg.Clause == "" {
		return nil, fmt.Errorf("rule %s: clause is required", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if outputType := ast.OutputType(); outputType != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func ruleKey(cfg *domain.ClauseRule) string {
	return cfg.TenantID + "/" + cfg.ID
}
