package models

import "context"

// InferenceProvider is the core interface that all AI integrations must
// implement. Never call specific AI providers directly; always inject this
// interface.
type InferenceProvider interface {
	// Evaluate submits a prompt plus evidence attachments and returns the
	// provider's structured compliance verdict.
	Evaluate(ctx context.Context, req InferenceRequest) (InferenceResponse, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// InferenceRequest is the input to one inference call.
type InferenceRequest struct {
	Prompt   string
	Evidence []string // screenshot references attached as supporting evidence
	Model    string   // optional per-request model override
}

// ParsedVerdict is the structured portion of a provider response. Batch
// evaluations populate Sections; legacy single evaluations populate the
// top-level fields directly.
type ParsedVerdict struct {
	Sections         []SectionVerdict `json:"sections,omitempty"`
	ComplianceStatus string           `json:"compliance_status,omitempty"`
	Confidence       string           `json:"confidence,omitempty"`
	Reasoning        string           `json:"reasoning,omitempty"`
	Violations       []string         `json:"violations,omitempty"`
	Recommendations  []string         `json:"recommendations,omitempty"`
	Summary          string           `json:"summary,omitempty"`
}

// InferenceResponse is the output of one inference call.
type InferenceResponse struct {
	Model  string
	Raw    string
	Parsed ParsedVerdict
}
