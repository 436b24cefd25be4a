// Package mock provides an InferenceProvider for tests.
package mock

import (
	"context"

	"github.com/complycheck/complycheck/internal/ai"
	"github.com/complycheck/complycheck/pkg/models"
)

// MockProvider satisfies models.InferenceProvider for testing.
type MockProvider struct {
	Name_        string
	EvaluateFunc func(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Evaluate(ctx context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, req)
	}
	return models.InferenceResponse{}, nil
}

// NewMockProvider returns a MockProvider that reports every section compliant.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		EvaluateFunc: func(_ context.Context, req models.InferenceRequest) (models.InferenceResponse, error) {
			return models.InferenceResponse{
				Model: "mock-v1",
				Raw:   `{"compliance_status":"compliant","confidence":"high"}`,
				Parsed: models.ParsedVerdict{
					ComplianceStatus: models.ComplianceCompliant,
					Confidence:       models.ConfidenceHigh,
					Reasoning:        "Mock evaluation for testing",
					Summary:          "Mock verdict",
				},
			}, nil
		},
	}
}

// NewSectionedProvider returns a MockProvider that echoes one verdict per
// requested section with the given status and confidence.
func NewSectionedProvider(sectionKeys []string, status, confidence string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		EvaluateFunc: func(_ context.Context, _ models.InferenceRequest) (models.InferenceResponse, error) {
			verdicts := make([]models.SectionVerdict, 0, len(sectionKeys))
			for _, key := range sectionKeys {
				verdicts = append(verdicts, models.SectionVerdict{
					SectionKey:       key,
					ComplianceStatus: status,
					Confidence:       confidence,
					Reasoning:        "Mock section verdict",
				})
			}
			return models.InferenceResponse{
				Model:  "mock-v1",
				Raw:    `{"sections":[]}`,
				Parsed: models.ParsedVerdict{Sections: verdicts, Summary: "Mock batch verdict"},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		EvaluateFunc: func(_ context.Context, _ models.InferenceRequest) (models.InferenceResponse, error) {
			return models.InferenceResponse{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		EvaluateFunc: func(ctx context.Context, _ models.InferenceRequest) (models.InferenceResponse, error) {
			<-ctx.Done()
			return models.InferenceResponse{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements InferenceProvider.
var _ models.InferenceProvider = (*MockProvider)(nil)
