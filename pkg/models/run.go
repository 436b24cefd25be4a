package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ComplianceCompliant     = "compliant"
	ComplianceNonCompliant  = "non_compliant"
	ComplianceNeedsMoreInfo = "needs_more_info"
	ComplianceNotApplicable = "not_applicable"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// confidenceRank orders confidence levels for lowest-wins downgrading.
var confidenceRank = map[string]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

// LowerConfidence returns the lower of two confidence levels. Unknown values
// rank below "low" so a malformed level never inflates the aggregate.
func LowerConfidence(a, b string) string {
	ra, okA := confidenceRank[a]
	rb, okB := confidenceRank[b]
	switch {
	case !okA:
		return a
	case !okB:
		return b
	case rb < ra:
		return b
	default:
		return a
	}
}

// SectionVerdict is one code section's verdict within a batch response.
type SectionVerdict struct {
	SectionKey       string   `json:"section_key"`
	ComplianceStatus string   `json:"compliance_status"`
	Confidence       string   `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	Violations       []string `json:"violations,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// AnalysisRun is one persisted evaluation outcome for a check. RunNumber is a
// per-check 1-based sequence; batch fields are zero for legacy single runs.
type AnalysisRun struct {
	ID               uuid.UUID        `db:"id"                 json:"id"`
	CheckID          uuid.UUID        `db:"check_id"           json:"check_id"`
	RunNumber        int              `db:"run_number"         json:"run_number"`
	BatchGroupID     uuid.UUID        `db:"batch_group_id"     json:"batch_group_id,omitempty"`
	BatchNumber      int              `db:"batch_number"       json:"batch_number,omitempty"`
	TotalBatches     int              `db:"total_batches"      json:"total_batches,omitempty"`
	SectionKeys      []string         `db:"section_keys"       json:"section_keys"`
	ComplianceStatus string           `db:"compliance_status"  json:"compliance_status"`
	Confidence       string           `db:"confidence"         json:"confidence"`
	Reasoning        string           `db:"reasoning"          json:"reasoning"`
	Violations       []string         `db:"violations"         json:"violations"`
	Recommendations  []string         `db:"recommendations"    json:"recommendations"`
	SectionVerdicts  []SectionVerdict `db:"section_verdicts"   json:"section_verdicts,omitempty"`
	RawResponse      string           `db:"raw_response"       json:"raw_response,omitempty"`
	Provider         string           `db:"provider"           json:"provider"`
	Model            string           `db:"model"              json:"model"`
	ExecutionTimeMs  int64            `db:"execution_time_ms"  json:"execution_time_ms"`
	CreatedAt        time.Time        `db:"created_at"         json:"created_at"`
}
