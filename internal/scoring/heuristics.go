// Package scoring implements the contract-fairness scoring engine.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrInvalidHeuristics is returned when a heuristics table fails validation.
var ErrInvalidHeuristics = errors.New("invalid heuristics")

// Red-flag clause names raised by the scorer.
const (
	FlagHighInterestRate     = "High Implied Interest Rate"
	FlagResidualMismatch     = "Residual Value Mismatch"
	FlagSevereRVMismatch     = "Severe RV Mismatch"
	FlagHighTerminationFee   = "High Early Termination Fee"
	FlagTaxRecoveryRisk      = "GST/Cess Recovery Risk"
	FlagLowMileageLimit      = "Low Mileage Limit"
	FlagRestrictedRepairShop = "Restricted Repair Shops"
)

// Heuristics is the complete decision table behind a fairness score.
// Every threshold, weight and benchmark lives here so a profile can be
// reviewed and swapped without touching scoring control flow.
type Heuristics struct {
	Version int `yaml:"version" json:"version"`

	Weights Weights `yaml:"weights" json:"weights"`

	// DefaultTerm is the lease duration in months assumed when none is stated.
	DefaultTerm float64 `yaml:"default_term" json:"defaultTerm"`

	Financial    FinancialTable    `yaml:"financial" json:"financial"`
	Asset        AssetTable        `yaml:"asset" json:"asset"`
	Flexibility  FlexibilityTable  `yaml:"flexibility" json:"flexibility"`
	Transparency TransparencyTable `yaml:"transparency" json:"transparency"`

	// Reasons maps a red-flag clause to its explanation.
	Reasons map[string]string `yaml:"reasons" json:"reasons"`

	repairPattern *regexp.Regexp
}

// Weights of the four dimensions in the final score.
type Weights struct {
	FinancialEfficiency     float64 `yaml:"financial_efficiency" json:"financialEfficiency"`
	AssetValueAlignment     float64 `yaml:"asset_value_alignment" json:"assetValueAlignment"`
	ContractFlexibility     float64 `yaml:"contract_flexibility" json:"contractFlexibility"`
	OperationalTransparency float64 `yaml:"operational_transparency" json:"operationalTransparency"`
}

// Tier maps a measured value to a score. Flag, when set, is raised on a hit.
type Tier struct {
	Limit float64 `yaml:"limit" json:"limit"`
	Score int     `yaml:"score" json:"score"`
	Flag  string  `yaml:"flag,omitempty" json:"flag,omitempty"`
}

// Outcome is a score applied outside every tier.
type Outcome struct {
	Score int    `yaml:"score" json:"score"`
	Flag  string `yaml:"flag,omitempty" json:"flag,omitempty"`
}

// MakeBucket assigns a residual percentage to every make containing one of Makes.
type MakeBucket struct {
	Makes    []string `yaml:"makes" json:"makes"`
	Residual float64  `yaml:"residual" json:"residual"`
}

// FinancialTable scores the implied annual interest rate.
// Tiers are ascending; a rate strictly below a tier's limit earns its score.
type FinancialTable struct {
	// PaymentRatio is the assumed monthly payment as a share of asset price.
	PaymentRatio float64 `yaml:"payment_ratio" json:"paymentRatio"`
	Unknown      int     `yaml:"unknown" json:"unknown"`
	Tiers        []Tier  `yaml:"tiers" json:"tiers"`
	Excess       Outcome `yaml:"excess" json:"excess"`
}

// AssetTable estimates the residual value and scores its distance from
// the market benchmark. Tiers are ascending; delta <= limit earns the score.
type AssetTable struct {
	// PriceRatio is the assumed monthly payment as a share of vehicle price
	// when estimating the residual from a purchase option.
	PriceRatio float64 `yaml:"price_ratio" json:"priceRatio"`

	Fallback        []MakeBucket `yaml:"fallback" json:"fallback"`
	FallbackDefault float64      `yaml:"fallback_default" json:"fallbackDefault"`

	Benchmarks       []MakeBucket `yaml:"benchmarks" json:"benchmarks"`
	BenchmarkDefault float64      `yaml:"benchmark_default" json:"benchmarkDefault"`

	Tiers  []Tier  `yaml:"tiers" json:"tiers"`
	Excess Outcome `yaml:"excess" json:"excess"`
}

// FlexibilityTable scores the early-termination fee as a percentage of the
// total payable. Tiers are ascending; fee_pct <= limit earns the score.
type FlexibilityTable struct {
	Unknown int     `yaml:"unknown" json:"unknown"`
	Tiers   []Tier  `yaml:"tiers" json:"tiers"`
	Excess  Outcome `yaml:"excess" json:"excess"`

	RecoveryPhrases []string `yaml:"recovery_phrases" json:"recoveryPhrases"`
	RecoveryPenalty int      `yaml:"recovery_penalty" json:"recoveryPenalty"`
}

// TransparencyTable scores operational terms starting from Base.
// Mileage tiers are descending; a limit >= tier limit earns the score.
type TransparencyTable struct {
	Base         int     `yaml:"base" json:"base"`
	MileageTiers []Tier  `yaml:"mileage_tiers" json:"mileageTiers"`
	LowMileage   Outcome `yaml:"low_mileage" json:"lowMileage"`

	RepairPattern string `yaml:"repair_pattern" json:"repairPattern"`
	RepairPenalty int    `yaml:"repair_penalty" json:"repairPenalty"`
}

// DefaultHeuristics returns the built-in table.
func DefaultHeuristics() *Heuristics {
	h := &Heuristics{
		Version: 1,
		Weights: Weights{
			FinancialEfficiency:     0.40,
			AssetValueAlignment:     0.25,
			ContractFlexibility:     0.20,
			OperationalTransparency: 0.15,
		},
		DefaultTerm: 36,
		Financial: FinancialTable{
			PaymentRatio: 0.02,
			Unknown:      50,
			Tiers: []Tier{
				{Limit: 0.10, Score: 100},
				{Limit: 0.12, Score: 75},
				{Limit: 0.15, Score: 40},
			},
			Excess: Outcome{Score: 0, Flag: FlagHighInterestRate},
		},
		Asset: AssetTable{
			PriceRatio: 0.018,
			Fallback: []MakeBucket{
				{Makes: []string{"toyota", "maruti"}, Residual: 70},
				{Makes: []string{"hyundai", "honda"}, Residual: 63},
				{Makes: []string{"bmw", "audi", "mercedes"}, Residual: 45},
			},
			FallbackDefault: 55,
			Benchmarks: []MakeBucket{
				{Makes: []string{"toyota", "maruti"}, Residual: 70},
				{Makes: []string{"hyundai", "honda"}, Residual: 63},
			},
			BenchmarkDefault: 55,
			Tiers: []Tier{
				{Limit: 5, Score: 100},
				{Limit: 10, Score: 75},
				{Limit: 20, Score: 40, Flag: FlagResidualMismatch},
			},
			Excess: Outcome{Score: 0, Flag: FlagSevereRVMismatch},
		},
		Flexibility: FlexibilityTable{
			Unknown: 70,
			Tiers: []Tier{
				{Limit: 3, Score: 100},
				{Limit: 6, Score: 75},
			},
			Excess:          Outcome{Score: 40, Flag: FlagHighTerminationFee},
			RecoveryPhrases: []string{"gst recoverable", "cess recoverable", "change in law"},
			RecoveryPenalty: 30,
		},
		Transparency: TransparencyTable{
			Base: 100,
			MileageTiers: []Tier{
				{Limit: 15000, Score: 100},
				{Limit: 12000, Score: 80},
			},
			LowMileage:    Outcome{Score: 40, Flag: FlagLowMileageLimit},
			RepairPattern: `(authorized|approved|must be serviced) (service|repair) center`,
			RepairPenalty: 30,
		},
		Reasons: map[string]string{
			FlagHighInterestRate:     "APR is significantly higher than Indian car loan norms (8-11%).",
			FlagResidualMismatch:     "Contract RV differs noticeably from expected Indian RV benchmarks.",
			FlagSevereRVMismatch:     "Residual value deviates by more than 20% from industry expectations.",
			FlagHighTerminationFee:   "Termination penalty exceeds accepted Indian auto-finance norms.",
			FlagTaxRecoveryRisk:      "Contract passes future tax increases to lessee, raising total cost.",
			FlagLowMileageLimit:      "Mileage allowance is below normal Indian usage (~12,000 km/year).",
			FlagRestrictedRepairShop: "Lessee is limited to specific repair centers, reducing flexibility.",
		},
	}

	if err := h.Validate(); err != nil {
		panic(fmt.Sprintf("scoring: default heuristics: %v", err))
	}
	return h
}

// Validate checks the table and compiles its patterns.
func (h *Heuristics) Validate() error {
	w := h.Weights
	for _, v := range []float64{w.FinancialEfficiency, w.AssetValueAlignment, w.ContractFlexibility, w.OperationalTransparency} {
		if v < 0 {
			return fmt.Errorf("%w: negative weight %v", ErrInvalidHeuristics, v)
		}
	}
	sum := w.FinancialEfficiency + w.AssetValueAlignment + w.ContractFlexibility + w.OperationalTransparency
	if math.Abs(sum-1) > 0.001 {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidHeuristics, sum)
	}

	if h.DefaultTerm <= 0 {
		return fmt.Errorf("%w: default_term must be positive", ErrInvalidHeuristics)
	}
	if h.Financial.PaymentRatio <= 0 || h.Asset.PriceRatio <= 0 {
		return fmt.Errorf("%w: payment ratios must be positive", ErrInvalidHeuristics)
	}

	if err := checkTiers("financial", h.Financial.Tiers, true); err != nil {
		return err
	}
	if err := checkTiers("asset", h.Asset.Tiers, true); err != nil {
		return err
	}
	if err := checkTiers("flexibility", h.Flexibility.Tiers, true); err != nil {
		return err
	}
	if err := checkTiers("transparency", h.Transparency.MileageTiers, false); err != nil {
		return err
	}

	for _, s := range []int{
		h.Financial.Unknown, h.Financial.Excess.Score,
		h.Asset.Excess.Score,
		h.Flexibility.Unknown, h.Flexibility.Excess.Score,
		h.Transparency.Base, h.Transparency.LowMileage.Score,
	} {
		if s < 0 || s > 100 {
			return fmt.Errorf("%w: score %d out of range", ErrInvalidHeuristics, s)
		}
	}

	for _, flag := range h.flags() {
		if h.Reasons[flag] == "" {
			return fmt.Errorf("%w: no reason for flag %q", ErrInvalidHeuristics, flag)
		}
	}

	re, err := regexp.Compile("(?i)" + h.Transparency.RepairPattern)
	if err != nil {
		return fmt.Errorf("%w: repair_pattern: %v", ErrInvalidHeuristics, err)
	}
	h.repairPattern = re

	return nil
}

// flags lists every clause the table can raise.
func (h *Heuristics) flags() []string {
	var out []string
	add := func(f string) {
		if f != "" {
			out = append(out, f)
		}
	}
	for _, t := range h.Financial.Tiers {
		add(t.Flag)
	}
	add(h.Financial.Excess.Flag)
	for _, t := range h.Asset.Tiers {
		add(t.Flag)
	}
	add(h.Asset.Excess.Flag)
	for _, t := range h.Flexibility.Tiers {
		add(t.Flag)
	}
	add(h.Flexibility.Excess.Flag)
	add(FlagTaxRecoveryRisk)
	for _, t := range h.Transparency.MileageTiers {
		add(t.Flag)
	}
	add(h.Transparency.LowMileage.Flag)
	add(FlagRestrictedRepairShop)
	return out
}

func checkTiers(name string, tiers []Tier, ascending bool) error {
	for i, t := range tiers {
		if t.Score < 0 || t.Score > 100 {
			return fmt.Errorf("%w: %s tier %d score %d out of range", ErrInvalidHeuristics, name, i, t.Score)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1].Limit
		if (ascending && t.Limit <= prev) || (!ascending && t.Limit >= prev) {
			return fmt.Errorf("%w: %s tiers out of order at %d", ErrInvalidHeuristics, name, i)
		}
	}
	return nil
}

// ParseHeuristicsYAML overlays a versioned YAML profile on the defaults.
// Keys left out of the profile keep their default values; lists given in
// the profile replace the default lists.
func ParseHeuristicsYAML(b []byte) (*Heuristics, error) {
	h := DefaultHeuristics()
	h.Version = 0
	if err := yaml.Unmarshal(b, h); err != nil {
		return nil, fmt.Errorf("parse heuristics: %w", err)
	}
	if h.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHeuristics, h.Version)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// LoadHeuristics reads a YAML profile from disk.
func LoadHeuristics(path string) (*Heuristics, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load heuristics: %w", err)
	}
	return ParseHeuristicsYAML(b)
}
