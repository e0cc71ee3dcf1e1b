package domain

import (
	"time"
)

// Assessment is a scored lease document, as stored and served by the API.
type Assessment struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	DocumentID string    `json:"documentId"`
	Status     string    `json:"status"` // "FAIR" or "REVIEW"
	Timestamp  time.Time `json:"timestamp"`

	// Result is the core verdict; RedFlagClauses also carries any flags
	// raised by tenant clause rules, after the built-in ones.
	Result FairnessResult `json:"result"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID          string `json:"traceId"`
	Fingerprint      string `json:"fingerprint"`
	CacheHit         bool   `json:"cacheHit"`
	ExtractionFailed bool   `json:"extractionFailed,omitempty"`
	ScoreMs          int64  `json:"scoreMs"`
	RulesMs          int64  `json:"rulesMs"`
	TotalMs          int64  `json:"totalMs"`
	RulesEvaluated   int    `json:"rulesEvaluated"`
	RuleFlags        int    `json:"ruleFlags"`
	EngineVersion    string `json:"engineVersion"`
}

// Assessment status values.
const (
	StatusFair   = "FAIR"
	StatusReview = "REVIEW"
)

// LeaseDocument is an extracted lease record as received from upstream.
type LeaseDocument struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Source    string    `json:"source,omitempty"` // e.g. original PDF file name
	Record    []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssessmentResponse is the API view of an assessment.
type AssessmentResponse struct {
	AssessmentID          string             `json:"assessmentId"`
	DocumentID            string             `json:"documentId"`
	TenantID              string             `json:"tenantId"`
	Status                string             `json:"status"`
	ContractFairnessScore int                `json:"contract_fairness_score"`
	RedFlagClauses        []RedFlag          `json:"red_flag_clauses"`
	FairnessBreakdown     FairnessBreakdown  `json:"fairness_breakdown"`
	Metadata              AssessmentMetadata `json:"metadata"`
}

// ToResponse converts an Assessment to its API response.
func (a *Assessment) ToResponse() *AssessmentResponse {
	flags := a.Result.RedFlagClauses
	if flags == nil {
		flags = []RedFlag{}
	}

	return &AssessmentResponse{
		AssessmentID:          a.ID,
		DocumentID:            a.DocumentID,
		TenantID:              a.TenantID,
		Status:                a.Status,
		ContractFairnessScore: a.Result.ContractFairnessScore,
		RedFlagClauses:        flags,
		FairnessBreakdown:     a.Result.FairnessBreakdown,
		Metadata:              a.Metadata,
	}
}
