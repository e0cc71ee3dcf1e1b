package domain

// Fairness dimensions, in weighting order.
const (
	DimensionFinancialEfficiency     = "financial_efficiency"
	DimensionAssetValueAlignment     = "asset_value_alignment"
	DimensionContractFlexibility     = "contract_flexibility"
	DimensionOperationalTransparency = "operational_transparency"
)

// Dimensions lists every fairness dimension.
func Dimensions() []string {
	return []string{
		DimensionFinancialEfficiency,
		DimensionAssetValueAlignment,
		DimensionContractFlexibility,
		DimensionOperationalTransparency,
	}
}

// FairnessBreakdown holds the per-dimension scores, each in [0,100].
type FairnessBreakdown struct {
	FinancialEfficiency     int `json:"financial_efficiency"`
	AssetValueAlignment     int `json:"asset_value_alignment"`
	ContractFlexibility     int `json:"contract_flexibility"`
	OperationalTransparency int `json:"operational_transparency"`
}

// Map returns the breakdown keyed by dimension name.
func (b FairnessBreakdown) Map() map[string]int {
	return map[string]int{
		DimensionFinancialEfficiency:     b.FinancialEfficiency,
		DimensionAssetValueAlignment:     b.AssetValueAlignment,
		DimensionContractFlexibility:     b.ContractFlexibility,
		DimensionOperationalTransparency: b.OperationalTransparency,
	}
}

// RedFlag is a contract term outside an accepted norm.
type RedFlag struct {
	Clause string `json:"clause"`
	Reason string `json:"reason"`
}

// FairnessResult is the verdict for one lease record.
type FairnessResult struct {
	ContractFairnessScore int               `json:"contract_fairness_score"`
	RedFlagClauses        []RedFlag         `json:"red_flag_clauses"`
	FairnessBreakdown     FairnessBreakdown `json:"fairness_breakdown"`
}

// HasFlag reports whether a flag with the given clause was raised.
func (r *FairnessResult) HasFlag(clause string) bool {
	for _, f := range r.RedFlagClauses {
		if f.Clause == clause {
			return true
		}
	}
	return false
}
