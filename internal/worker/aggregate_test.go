package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/complycheck/complycheck/pkg/models"
)

func verdict(status, confidence string) models.SectionVerdict {
	return models.SectionVerdict{ComplianceStatus: status, Confidence: confidence}
}

func TestAggregateVerdictsStatusPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{
			name:     "all compliant",
			statuses: []string{models.ComplianceCompliant, models.ComplianceCompliant},
			want:     models.ComplianceCompliant,
		},
		{
			name:     "one non compliant taints the run",
			statuses: []string{models.ComplianceCompliant, models.ComplianceNonCompliant},
			want:     models.ComplianceNonCompliant,
		},
		{
			name:     "needs more info beats compliant",
			statuses: []string{models.ComplianceCompliant, models.ComplianceNeedsMoreInfo},
			want:     models.ComplianceNeedsMoreInfo,
		},
		{
			name:     "non compliant beats needs more info",
			statuses: []string{models.ComplianceNeedsMoreInfo, models.ComplianceNonCompliant},
			want:     models.ComplianceNonCompliant,
		},
		{
			name:     "all not applicable",
			statuses: []string{models.ComplianceNotApplicable, models.ComplianceNotApplicable},
			want:     models.ComplianceNotApplicable,
		},
		{
			name:     "not applicable sections do not taint a compliant run",
			statuses: []string{models.ComplianceCompliant, models.ComplianceNotApplicable},
			want:     models.ComplianceCompliant,
		},
		{
			name:     "unrecognized status treated as compliant-neutral",
			statuses: []string{"unsure", models.ComplianceCompliant},
			want:     models.ComplianceCompliant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts := make([]models.SectionVerdict, 0, len(tt.statuses))
			for _, status := range tt.statuses {
				verdicts = append(verdicts, verdict(status, models.ConfidenceHigh))
			}
			agg := aggregateVerdicts(verdicts)
			assert.Equal(t, tt.want, agg.Status)
		})
	}
}

func TestAggregateVerdictsConfidenceIsLowestApplicable(t *testing.T) {
	agg := aggregateVerdicts([]models.SectionVerdict{
		verdict(models.ComplianceCompliant, models.ConfidenceHigh),
		verdict(models.ComplianceNonCompliant, models.ConfidenceLow),
		verdict(models.ComplianceCompliant, models.ConfidenceMedium),
	})
	assert.Equal(t, models.ConfidenceLow, agg.Confidence)
}

func TestAggregateVerdictsIgnoresNotApplicableConfidence(t *testing.T) {
	agg := aggregateVerdicts([]models.SectionVerdict{
		verdict(models.ComplianceNotApplicable, models.ConfidenceLow),
		verdict(models.ComplianceCompliant, models.ConfidenceHigh),
	})
	assert.Equal(t, models.ConfidenceHigh, agg.Confidence,
		"a low-confidence n/a verdict must not drag the aggregate down")
}

func TestAggregateVerdictsConfidenceFallback(t *testing.T) {
	// Every section is not applicable, so no section "applies"; the lowest
	// confidence across all of them is used instead of leaving it empty.
	agg := aggregateVerdicts([]models.SectionVerdict{
		verdict(models.ComplianceNotApplicable, models.ConfidenceHigh),
		verdict(models.ComplianceNotApplicable, models.ConfidenceMedium),
	})
	assert.Equal(t, models.ComplianceNotApplicable, agg.Status)
	assert.Equal(t, models.ConfidenceMedium, agg.Confidence)
}

func TestAggregateVerdictsTagsFindingsWithSectionNumber(t *testing.T) {
	agg := aggregateVerdicts([]models.SectionVerdict{
		{
			ComplianceStatus: models.ComplianceNonCompliant,
			Confidence:       models.ConfidenceHigh,
			Reasoning:        "ceiling too low",
			Violations:       []string{"height 2.2m"},
		},
		{
			ComplianceStatus: models.ComplianceCompliant,
			Confidence:       models.ConfidenceHigh,
			Reasoning:        "window area sufficient",
			Recommendations:  []string{"document glazing type"},
		},
	})

	assert.Equal(t, []string{"[Section 1] height 2.2m"}, agg.Violations)
	assert.Equal(t, []string{"[Section 2] document glazing type"}, agg.Recommendations)
	assert.Equal(t, "[Section 1] ceiling too low\n[Section 2] window area sufficient", agg.Reasoning)
}

func TestAggregateVerdictsEmptyInput(t *testing.T) {
	agg := aggregateVerdicts(nil)
	assert.Equal(t, models.ComplianceCompliant, agg.Status)
	assert.Empty(t, agg.Confidence)
	assert.Empty(t, agg.Violations)
	assert.Empty(t, agg.Reasoning)
}

func TestLowerConfidence(t *testing.T) {
	assert.Equal(t, models.ConfidenceLow, models.LowerConfidence(models.ConfidenceHigh, models.ConfidenceLow))
	assert.Equal(t, models.ConfidenceMedium, models.LowerConfidence(models.ConfidenceMedium, models.ConfidenceHigh))
	assert.Equal(t, models.ConfidenceHigh, models.LowerConfidence(models.ConfidenceHigh, models.ConfidenceHigh))
	assert.Equal(t, "bogus", models.LowerConfidence("bogus", models.ConfidenceLow),
		"unknown levels rank below low")
}
