package scoring

import (
	"strings"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

// EstimateResidual returns the residual value as a percentage of the
// original vehicle price. The first available source wins:
//
//  1. a stated residual_value percentage
//  2. the purchase-option price against a vehicle price implied by the payments
//  3. a make-based fallback
//
// The result is not clamped.
func (h *Heuristics) EstimateResidual(rec *domain.LeaseRecord) float64 {
	if pct, ok := rec.ResidualValue.Percentage(); ok {
		return pct
	}

	if price, ok := rec.PurchaseOptionPrice.Number(); ok {
		if monthly, ok := rec.MonthlyLeaseAmount.Number(); ok {
			term := rec.LeaseDuration.NumberOr(h.DefaultTerm)
			vehiclePrice := (monthly * term) / h.Asset.PriceRatio
			return (price / vehiclePrice) * 100
		}
	}

	return bucketFor(h.Asset.Fallback, makeOf(rec), h.Asset.FallbackDefault)
}

// Benchmark returns the market residual percentage expected for a make.
func (h *Heuristics) Benchmark(rec *domain.LeaseRecord) float64 {
	return bucketFor(h.Asset.Benchmarks, makeOf(rec), h.Asset.BenchmarkDefault)
}

func makeOf(rec *domain.LeaseRecord) string {
	return strings.ToLower(rec.VehicleMake.Text())
}

// bucketFor matches by substring, first bucket wins.
func bucketFor(buckets []MakeBucket, vehicleMake string, def float64) float64 {
	if vehicleMake == "" {
		return def
	}
	for _, b := range buckets {
		for _, m := range b.Makes {
			if m != "" && strings.Contains(vehicleMake, strings.ToLower(m)) {
				return b.Residual
			}
		}
	}
	return def
}
