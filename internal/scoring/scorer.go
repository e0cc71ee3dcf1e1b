package scoring

import (
	"math"
	"strings"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

// Scorer turns a lease record into a FairnessResult using one heuristics table.
// A Scorer holds no mutable state and is safe for concurrent use.
type Scorer struct {
	h *Heuristics
}

// NewScorer binds a validated table. A nil table uses DefaultHeuristics.
func NewScorer(h *Heuristics) *Scorer {
	if h == nil {
		h = DefaultHeuristics()
	}
	return &Scorer{h: h}
}

// Heuristics returns the table in use.
func (s *Scorer) Heuristics() *Heuristics {
	return s.h
}

var defaultScorer = NewScorer(nil)

// AnalyzeContract scores a record with the built-in heuristics.
func AnalyzeContract(rec *domain.LeaseRecord) domain.FairnessResult {
	return defaultScorer.Analyze(rec)
}

// findings collects red flags in detection order.
type findings struct {
	h     *Heuristics
	flags []domain.RedFlag
}

func (f *findings) raise(clause string) {
	if clause == "" {
		return
	}
	f.flags = append(f.flags, domain.RedFlag{Clause: clause, Reason: f.h.Reasons[clause]})
}

// Analyze scores a record. It never fails: every value that cannot be
// resolved falls back to the table's neutral default. A nil record scores
// as an empty one.
func (s *Scorer) Analyze(rec *domain.LeaseRecord) domain.FairnessResult {
	if rec == nil {
		rec = domain.NewLeaseRecord(nil)
	}

	f := &findings{h: s.h, flags: []domain.RedFlag{}}

	breakdown := domain.FairnessBreakdown{
		FinancialEfficiency:     s.financialEfficiency(rec, f),
		AssetValueAlignment:     s.assetValueAlignment(rec, f),
		ContractFlexibility:     s.contractFlexibility(rec, f),
		OperationalTransparency: s.operationalTransparency(rec, f),
	}

	return domain.FairnessResult{
		ContractFairnessScore: s.combine(breakdown),
		RedFlagClauses:        f.flags,
		FairnessBreakdown:     breakdown,
	}
}

func (s *Scorer) financialEfficiency(rec *domain.LeaseRecord, f *findings) int {
	t := s.h.Financial
	rate, ok := s.h.ImpliedAnnualRate(rec)
	if !ok {
		return t.Unknown
	}

	for _, tier := range t.Tiers {
		if rate < tier.Limit {
			f.raise(tier.Flag)
			return tier.Score
		}
	}
	f.raise(t.Excess.Flag)
	return t.Excess.Score
}

func (s *Scorer) assetValueAlignment(rec *domain.LeaseRecord, f *findings) int {
	t := s.h.Asset
	delta := math.Abs(s.h.EstimateResidual(rec) - s.h.Benchmark(rec))

	for _, tier := range t.Tiers {
		if delta <= tier.Limit {
			f.raise(tier.Flag)
			return tier.Score
		}
	}
	f.raise(t.Excess.Flag)
	return t.Excess.Score
}

func (s *Scorer) contractFlexibility(rec *domain.LeaseRecord, f *findings) int {
	t := s.h.Flexibility

	score := t.Unknown
	fee, hasFee := rec.EarlyTerminationFee.Number()
	total := rec.MonthlyLeaseAmount.NumberOr(0) * rec.LeaseDuration.NumberOr(s.h.DefaultTerm)
	if hasFee && total > 0 {
		score = s.feeScore(fee/total*100, f)
	}

	text := rec.Text()
	for _, phrase := range t.RecoveryPhrases {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			score -= t.RecoveryPenalty
			f.raise(FlagTaxRecoveryRisk)
			break
		}
	}

	return max(0, score)
}

func (s *Scorer) feeScore(feePct float64, f *findings) int {
	t := s.h.Flexibility
	for _, tier := range t.Tiers {
		if feePct <= tier.Limit {
			f.raise(tier.Flag)
			return tier.Score
		}
	}
	f.raise(t.Excess.Flag)
	return t.Excess.Score
}

func (s *Scorer) operationalTransparency(rec *domain.LeaseRecord, f *findings) int {
	t := s.h.Transparency

	ops := t.Base
	if mileage, ok := rec.AnnualMileageLimit.Number(); ok {
		ops = s.mileageScore(mileage, f)
	}

	if s.h.repairPattern != nil && s.h.repairPattern.MatchString(rec.Text()) {
		ops -= t.RepairPenalty
		f.raise(FlagRestrictedRepairShop)
	}

	return max(0, ops)
}

func (s *Scorer) mileageScore(mileage float64, f *findings) int {
	t := s.h.Transparency
	for _, tier := range t.MileageTiers {
		if mileage >= tier.Limit {
			f.raise(tier.Flag)
			return tier.Score
		}
	}
	f.raise(t.LowMileage.Flag)
	return t.LowMileage.Score
}

// combine weights the dimensions, clamps to [0,100] and rounds half to even.
// Each product is converted explicitly so the terms are rounded to float64
// before summing and never fused, which keeps ties like 60.5 exact.
func (s *Scorer) combine(b domain.FairnessBreakdown) int {
	w := s.h.Weights
	fin := float64(float64(b.FinancialEfficiency) * w.FinancialEfficiency)
	asset := float64(float64(b.AssetValueAlignment) * w.AssetValueAlignment)
	flex := float64(float64(b.ContractFlexibility) * w.ContractFlexibility)
	ops := float64(float64(b.OperationalTransparency) * w.OperationalTransparency)

	total := fin + asset + flex + ops
	total = math.Max(0, math.Min(100, total))
	return int(math.RoundToEven(total))
}
