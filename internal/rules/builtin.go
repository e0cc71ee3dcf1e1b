package rules

import "github.com/opensource-finance/leasecheck/internal/domain"

// BuiltinRules returns starter clause rules that apply to every tenant.
// They are seeded only on request; a fresh deployment evaluates no rules.
func BuiltinRules() []*domain.ClauseRule {
	return []*domain.ClauseRule{
		{
			ID:          "balloon-payment",
			Name:        "Balloon Payment",
			Description: "Large final payment due at the end of the term",
			Version:     "1.0.0",
			Expression:  `text.contains("balloon")`,
			Clause:      "Balloon Payment",
			Reason:      "A large lump sum falls due at term end.",
			Enabled:     true,
		},
		{
			ID:          "long-term",
			Name:        "Long Lease Term",
			Description: "Lease runs beyond five years",
			Version:     "1.0.0",
			Expression:  `present["term"] && term > 60.0`,
			Clause:      "Long Lease Term",
			Reason:      "Term exceeds 60 months; the asset may outlive its warranty.",
			Enabled:     true,
		},
		{
			ID:          "missing-payment",
			Name:        "Missing Payment Terms",
			Description: "No monthly amount could be read",
			Version:     "1.0.0",
			Expression:  `!present["monthly"] && !present["extraction_error"]`,
			Clause:      "Missing Payment Terms",
			Reason:      "The monthly lease amount was not found in the contract.",
			Enabled:     true,
		},
		{
			ID:          "extraction-failed",
			Name:        "Extraction Failed",
			Description: "Upstream extraction reported an error",
			Version:     "1.0.0",
			Expression:  `present["extraction_error"]`,
			Clause:      "Extraction Failed",
			Reason:      "The contract could not be read; every term was scored as absent.",
			Enabled:     true,
		},
	}
}
