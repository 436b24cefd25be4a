package worker

import (
	"fmt"
	"strings"

	"github.com/complycheck/complycheck/pkg/models"
)

// aggregate is the run-level verdict derived from per-section verdicts.
type aggregate struct {
	Status          string
	Confidence      string
	Reasoning       string
	Violations      []string
	Recommendations []string
}

// aggregateVerdicts folds per-section verdicts into one run-level verdict.
//
// Status precedence: any non_compliant wins; else any needs_more_info; else
// not_applicable when every section is not_applicable; else compliant.
// Confidence is the lowest among sections that apply (all sections when none
// apply). Violations and recommendations are unioned, each tagged with its
// 1-based originating section number.
func aggregateVerdicts(verdicts []models.SectionVerdict) aggregate {
	agg := aggregate{Status: models.ComplianceCompliant}

	anyNonCompliant := false
	anyNeedsInfo := false
	allNotApplicable := true

	for i, v := range verdicts {
		switch v.ComplianceStatus {
		case models.ComplianceNonCompliant:
			anyNonCompliant = true
			allNotApplicable = false
		case models.ComplianceNeedsMoreInfo:
			anyNeedsInfo = true
			allNotApplicable = false
		case models.ComplianceNotApplicable:
			// applicable confidence is skipped below
		default:
			allNotApplicable = false
		}

		if v.ComplianceStatus != models.ComplianceNotApplicable && v.Confidence != "" {
			if agg.Confidence == "" {
				agg.Confidence = v.Confidence
			} else {
				agg.Confidence = models.LowerConfidence(agg.Confidence, v.Confidence)
			}
		}

		for _, violation := range v.Violations {
			agg.Violations = append(agg.Violations, tagSection(i+1, violation))
		}
		for _, rec := range v.Recommendations {
			agg.Recommendations = append(agg.Recommendations, tagSection(i+1, rec))
		}
	}

	switch {
	case anyNonCompliant:
		agg.Status = models.ComplianceNonCompliant
	case anyNeedsInfo:
		agg.Status = models.ComplianceNeedsMoreInfo
	case allNotApplicable && len(verdicts) > 0:
		agg.Status = models.ComplianceNotApplicable
	}

	// No applicable section contributed a confidence: fall back to the lowest
	// across all sections.
	if agg.Confidence == "" {
		for _, v := range verdicts {
			if v.Confidence == "" {
				continue
			}
			if agg.Confidence == "" {
				agg.Confidence = v.Confidence
			} else {
				agg.Confidence = models.LowerConfidence(agg.Confidence, v.Confidence)
			}
		}
	}

	var reasonings []string
	for i, v := range verdicts {
		if v.Reasoning != "" {
			reasonings = append(reasonings, tagSection(i+1, v.Reasoning))
		}
	}
	agg.Reasoning = strings.Join(reasonings, "\n")

	return agg
}

func tagSection(n int, text string) string {
	return fmt.Sprintf("[Section %d] %s", n, text)
}
