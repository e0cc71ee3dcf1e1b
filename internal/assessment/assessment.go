// Package assessment turns an extracted lease record into a stored verdict.
// It runs the fairness scorer, applies tenant clause rules and decides
// whether the lease needs human review.
package assessment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/rules"
	"github.com/opensource-finance/leasecheck/internal/scoring"
)

// EngineVersion is recorded on every assessment.
const EngineVersion = "leasecheck-1.0"

var tracer = otel.Tracer("leasecheck-assessment")

// Processor scores lease records and produces assessments.
type Processor struct {
	Scorer *scoring.Scorer

	// Rules is optional; without it only built-in flags are raised.
	Rules *rules.Engine

	// Cache is optional; scored results are reused by fingerprint.
	Cache     domain.Cache
	ResultTTL time.Duration

	// Assessments scoring below ReviewThreshold are marked REVIEW.
	ReviewThreshold int

	tableDigest string
}

// NewProcessor creates a processor with the default review threshold.
func NewProcessor(scorer *scoring.Scorer, engine *rules.Engine) *Processor {
	if scorer == nil {
		scorer = scoring.NewScorer(nil)
	}
	return &Processor{
		Scorer:          scorer,
		Rules:           engine,
		ReviewThreshold: 60,
		ResultTTL:       24 * time.Hour,
		tableDigest:     digestTable(scorer.Heuristics()),
	}
}

// Input contains everything needed to assess one record.
type Input struct {
	TenantID   string
	DocumentID string
	TraceID    string
	Record     *domain.LeaseRecord
	StartTime  time.Time
}

// Process scores the record, applies clause rules and decides the status.
// It never fails; cache errors are logged and scoring proceeds.
func (p *Processor) Process(ctx context.Context, in *Input) *domain.Assessment {
	start := time.Now()
	if in.StartTime.IsZero() {
		in.StartTime = start
	}
	rec := in.Record
	if rec == nil {
		rec = domain.NewLeaseRecord(nil)
	}

	ctx, span := tracer.Start(ctx, "assessment.Process",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.String("document.id", in.DocumentID),
		),
	)
	defer span.End()

	fingerprint := Fingerprint(rec)
	cacheKey := p.tableDigest + ":" + fingerprint

	result, cacheHit := p.cached(ctx, in.TenantID, cacheKey)
	if !cacheHit {
		result = p.Scorer.Analyze(rec)
		p.store(ctx, in.TenantID, cacheKey, &result)
	}
	scoreMs := time.Since(start).Milliseconds()

	coreFlags := len(result.RedFlagClauses)

	rulesStart := time.Now()
	var ruleFlags []domain.RedFlag
	rulesEvaluated := 0
	if p.Rules != nil {
		rulesEvaluated = p.Rules.CountFor(in.TenantID)
		if rulesEvaluated > 0 {
			facts := rules.NewFacts(rec, p.Scorer.Heuristics(), result)
			ruleFlags = p.Rules.Evaluate(ctx, in.TenantID, facts)
		}
	}
	rulesMs := time.Since(rulesStart).Milliseconds()

	if len(ruleFlags) > 0 {
		flags := make([]domain.RedFlag, 0, coreFlags+len(ruleFlags))
		flags = append(flags, result.RedFlagClauses...)
		result.RedFlagClauses = append(flags, ruleFlags...)
	}

	status := domain.StatusFair
	if result.ContractFairnessScore < p.ReviewThreshold || coreFlags > 0 {
		status = domain.StatusReview
	}

	a := &domain.Assessment{
		ID:         uuid.New().String(),
		TenantID:   in.TenantID,
		DocumentID: in.DocumentID,
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Result:     result,
		Metadata: domain.AssessmentMetadata{
			TraceID:          in.TraceID,
			Fingerprint:      fingerprint,
			CacheHit:         cacheHit,
			ExtractionFailed: rec.ExtractionFailed(),
			ScoreMs:          scoreMs,
			RulesMs:          rulesMs,
			TotalMs:          time.Since(in.StartTime).Milliseconds(),
			RulesEvaluated:   rulesEvaluated,
			RuleFlags:        len(ruleFlags),
			EngineVersion:    EngineVersion,
		},
	}

	span.SetAttributes(
		attribute.Int("assessment.score", result.ContractFairnessScore),
		attribute.String("assessment.status", status),
		attribute.Bool("assessment.cache_hit", cacheHit),
	)

	return a
}

func (p *Processor) cached(ctx context.Context, tenantID, key string) (domain.FairnessResult, bool) {
	if p.Cache == nil {
		return domain.FairnessResult{}, false
	}
	r, err := p.Cache.GetResult(ctx, tenantID, key)
	if err != nil {
		slog.Warn("result cache read failed", "tenant_id", tenantID, "error", err)
		return domain.FairnessResult{}, false
	}
	if r == nil {
		return domain.FairnessResult{}, false
	}
	if r.RedFlagClauses == nil {
		r.RedFlagClauses = []domain.RedFlag{}
	}
	return *r, true
}

func (p *Processor) store(ctx context.Context, tenantID, key string, r *domain.FairnessResult) {
	if p.Cache == nil {
		return
	}
	if err := p.Cache.SetResult(ctx, tenantID, key, r, p.ResultTTL); err != nil {
		slog.Warn("result cache write failed", "tenant_id", tenantID, "error", err)
	}
}

// Fingerprint identifies a record by content: the SHA-256 of its JSON
// rendering with sorted keys, so key order and whitespace do not matter.
func Fingerprint(rec *domain.LeaseRecord) string {
	if rec == nil {
		rec = domain.NewLeaseRecord(nil)
	}
	b, err := json.Marshal(rec.Raw())
	if err != nil {
		b = []byte(rec.Text())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// digestTable keys cached results to the heuristics that produced them.
func digestTable(h *scoring.Heuristics) string {
	b, err := json.Marshal(h)
	if err != nil {
		return "default"
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// NeedsReview reports whether the assessment should be routed to a reviewer.
func NeedsReview(a *domain.Assessment) bool {
	return a.Status == domain.StatusReview
}

// Reasons extracts the human-readable reasons behind an assessment.
func Reasons(a *domain.Assessment) []string {
	var reasons []string
	for _, f := range a.Result.RedFlagClauses {
		if f.Reason != "" {
			reasons = append(reasons, f.Reason)
		}
	}
	return reasons
}
