package rules

import (
	"strings"

	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/scoring"
)

// Facts are the normalized values a clause rule can see.
// Numeric facts are 0 when the field is absent; Present tells them apart.
type Facts struct {
	Monthly        float64
	Term           float64
	TerminationFee float64
	PurchasePrice  float64
	Mileage        float64
	Residual       float64
	Rate           float64
	Make           string
	Text           string
	Present        map[string]bool
	Score          int
	Breakdown      map[string]int
}

// NewFacts derives rule facts from a record and its fairness result.
// Term falls back to the table's default; Residual is the estimate the
// scorer used.
func NewFacts(rec *domain.LeaseRecord, h *scoring.Heuristics, result domain.FairnessResult) *Facts {
	if rec == nil {
		rec = domain.NewLeaseRecord(nil)
	}
	if h == nil {
		h = scoring.DefaultHeuristics()
	}

	monthly, hasMonthly := rec.MonthlyLeaseAmount.Number()
	fee, hasFee := rec.EarlyTerminationFee.Number()
	price, hasPrice := rec.PurchaseOptionPrice.Number()
	mileage, hasMileage := rec.AnnualMileageLimit.Number()
	_, hasTerm := rec.LeaseDuration.Number()
	_, hasResidual := rec.ResidualValue.Percentage()
	rate, _ := h.ImpliedAnnualRate(rec)

	return &Facts{
		Monthly:        monthly,
		Term:           rec.LeaseDuration.NumberOr(h.DefaultTerm),
		TerminationFee: fee,
		PurchasePrice:  price,
		Mileage:        mileage,
		Residual:       h.EstimateResidual(rec),
		Rate:           rate,
		Make:           strings.ToLower(rec.VehicleMake.Text()),
		Text:           rec.Text(),
		Present: map[string]bool{
			"monthly":          hasMonthly,
			"term":             hasTerm,
			"termination_fee":  hasFee,
			"purchase_price":   hasPrice,
			"mileage":          hasMileage,
			"residual_value":   hasResidual,
			"make":             rec.VehicleMake.Present(),
			"extraction_error": rec.ExtractionFailed(),
		},
		Score:     result.ContractFairnessScore,
		Breakdown: result.FairnessBreakdown.Map(),
	}
}

func (f *Facts) activation() map[string]any {
	if f == nil {
		f = &Facts{}
	}
	has := f.Present
	if has == nil {
		has = map[string]bool{}
	}
	breakdown := make(map[string]int64, len(f.Breakdown))
	for k, v := range f.Breakdown {
		breakdown[k] = int64(v)
	}

	return map[string]any{
		"monthly":         f.Monthly,
		"term":            f.Term,
		"termination_fee": f.TerminationFee,
		"purchase_price":  f.PurchasePrice,
		"mileage":         f.Mileage,
		"residual":        f.Residual,
		"rate":            f.Rate,
		"make":            f.Make,
		"text":            f.Text,
		"present":         has,
		"score":           int64(f.Score),
		"breakdown":       breakdown,
	}
}
