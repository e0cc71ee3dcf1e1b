package domain

// ClauseRule is a tenant-defined red-flag detector.
// Expression is a CEL predicate over the normalized lease facts; when it
// evaluates to true the rule's Clause and Reason are reported as a RedFlag.
// Clause rules never change the fairness score.
type ClauseRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression; must evaluate to bool
	Expression string `json:"expression"`

	Clause string `json:"clause"`
	Reason string `json:"reason"`

	Enabled bool `json:"enabled"`
}
