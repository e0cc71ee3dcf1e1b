package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/leasecheck/internal/cache"
	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/rules"
	"github.com/opensource-finance/leasecheck/internal/scoring"
)

func decode(t *testing.T, js string) *domain.LeaseRecord {
	t.Helper()
	rec, err := domain.DecodeLeaseRecord([]byte(js))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec
}

func TestProcessor(t *testing.T) {
	proc := NewProcessor(nil, nil)
	ctx := context.Background()

	t.Run("FairLease", func(t *testing.T) {
		a := proc.Process(ctx, &Input{
			TenantID:   "tenant-001",
			DocumentID: "doc-001",
			TraceID:    "trace-001",
			Record:     decode(t, `{}`),
			StartTime:  time.Now(),
		})

		if a.Status != domain.StatusFair {
			t.Errorf("expected FAIR, got %s", a.Status)
		}
		if a.Result.ContractFairnessScore != 74 {
			t.Errorf("score = %d, want 74", a.Result.ContractFairnessScore)
		}
		if a.ID == "" {
			t.Error("assessment id is empty")
		}
		if a.TenantID != "tenant-001" || a.DocumentID != "doc-001" {
			t.Errorf("ids not carried: %+v", a)
		}
		if a.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", a.Metadata.TraceID)
		}
		if a.Metadata.EngineVersion != EngineVersion {
			t.Errorf("engine version = %q", a.Metadata.EngineVersion)
		}
		if len(a.Metadata.Fingerprint) != 64 {
			t.Errorf("fingerprint = %q", a.Metadata.Fingerprint)
		}
	})

	t.Run("FlaggedLeaseNeedsReview", func(t *testing.T) {
		a := proc.Process(ctx, &Input{
			TenantID: "tenant-001",
			Record:   decode(t, `{"note": "change in law"}`),
		})
		// 68 clears the threshold but a built-in flag was raised.
		if a.Result.ContractFairnessScore != 68 {
			t.Errorf("score = %d, want 68", a.Result.ContractFairnessScore)
		}
		if !NeedsReview(a) {
			t.Errorf("expected REVIEW, got %s", a.Status)
		}
		if len(Reasons(a)) != 1 {
			t.Errorf("reasons = %v", Reasons(a))
		}
	})

	t.Run("LowScoreNeedsReview", func(t *testing.T) {
		p := NewProcessor(nil, nil)
		p.ReviewThreshold = 80
		a := p.Process(ctx, &Input{TenantID: "tenant-001", Record: decode(t, `{}`)})
		if a.Status != domain.StatusReview {
			t.Errorf("expected REVIEW below threshold, got %s", a.Status)
		}
	})

	t.Run("ExtractionFailure", func(t *testing.T) {
		a := proc.Process(ctx, &Input{
			TenantID: "tenant-001",
			Record:   decode(t, `{"error": "could not parse", "raw_output": "???"}`),
		})
		if !a.Metadata.ExtractionFailed {
			t.Error("extraction failure not recorded")
		}
		if a.Result.ContractFairnessScore != 74 {
			t.Errorf("score = %d, want 74", a.Result.ContractFairnessScore)
		}
	})

	t.Run("NilRecord", func(t *testing.T) {
		a := proc.Process(ctx, &Input{TenantID: "tenant-001"})
		if a.Result.RedFlagClauses == nil {
			t.Error("flags must not be nil")
		}
	})
}

func TestProcessorClauseRules(t *testing.T) {
	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	engine.LoadRule(&domain.ClauseRule{
		ID:         "balloon",
		TenantID:   "tenant-001",
		Expression: `text.contains("balloon")`,
		Clause:     "Balloon Payment",
		Reason:     "lump sum at term end",
		Enabled:    true,
	})

	proc := NewProcessor(scoring.NewScorer(nil), engine)
	ctx := context.Background()
	rec := decode(t, `{"payment": "Balloon of Rs 2,00,000", "mileage_limits": {"annual_mileage_limit": 10000}}`)

	a := proc.Process(ctx, &Input{TenantID: "tenant-001", Record: rec})
	flags := a.Result.RedFlagClauses
	if len(flags) != 2 {
		t.Fatalf("flags = %v, want core flag then rule flag", flags)
	}
	if flags[0].Clause != scoring.FlagLowMileageLimit || flags[1].Clause != "Balloon Payment" {
		t.Errorf("flag order = %v", flags)
	}
	if a.Metadata.RulesEvaluated != 1 || a.Metadata.RuleFlags != 1 {
		t.Errorf("metadata = %+v", a.Metadata)
	}

	// Rule flags never move the score.
	if want := scoring.AnalyzeContract(rec).ContractFairnessScore; a.Result.ContractFairnessScore != want {
		t.Errorf("score = %d, want %d", a.Result.ContractFairnessScore, want)
	}

	other := proc.Process(ctx, &Input{TenantID: "tenant-002", Record: rec})
	if len(other.Result.RedFlagClauses) != 1 {
		t.Errorf("tenant-002 saw another tenant's rule: %v", other.Result.RedFlagClauses)
	}
}

func TestProcessorResultCache(t *testing.T) {
	c := cache.NewLRUCache(100, time.Minute)
	defer c.Close()

	proc := NewProcessor(nil, nil)
	proc.Cache = c
	ctx := context.Background()

	first := proc.Process(ctx, &Input{TenantID: "tenant-001", Record: decode(t, `{"a": 1, "b": "change in law"}`)})
	if first.Metadata.CacheHit {
		t.Error("first call should miss")
	}

	second := proc.Process(ctx, &Input{TenantID: "tenant-001", Record: decode(t, `{"b": "change in law", "a": 1}`)})
	if !second.Metadata.CacheHit {
		t.Error("reordered record should hit the cache")
	}
	if second.Result.ContractFairnessScore != first.Result.ContractFairnessScore {
		t.Errorf("cached score %d != %d", second.Result.ContractFairnessScore, first.Result.ContractFairnessScore)
	}
	if len(second.Result.RedFlagClauses) != len(first.Result.RedFlagClauses) {
		t.Errorf("cached flags %v != %v", second.Result.RedFlagClauses, first.Result.RedFlagClauses)
	}
	if second.ID == first.ID {
		t.Error("assessment ids must be unique")
	}

	third := proc.Process(ctx, &Input{TenantID: "tenant-002", Record: decode(t, `{"a": 1, "b": "change in law"}`)})
	if third.Metadata.CacheHit {
		t.Error("cache leaked across tenants")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(decode(t, `{"x": 1, "y": {"b": 2, "a": 1}}`))
	b := Fingerprint(decode(t, `{ "y": {"a": 1, "b": 2}, "x": 1 }`))
	c := Fingerprint(decode(t, `{"x": 2}`))

	if a != b {
		t.Error("fingerprint depends on key order")
	}
	if a == c {
		t.Error("different records share a fingerprint")
	}
	if Fingerprint(nil) != Fingerprint(decode(t, `{}`)) {
		t.Error("nil record should fingerprint as empty")
	}
}
