package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/complycheck/complycheck/internal/ai"
	"github.com/complycheck/complycheck/internal/store"
	"github.com/complycheck/complycheck/pkg/models"
	"github.com/google/uuid"
)

// handleSingle is the legacy path: one check, one section, no batching. The
// verdict is taken directly from the provider response, and the check is
// marked completed unconditionally on success.
func (p *Processor) handleSingle(ctx context.Context, job *models.Job, payload models.SinglePayload) error {
	check, err := p.store.GetCheck(ctx, payload.CheckID)
	if err != nil {
		return fmt.Errorf("load check %s: %w", payload.CheckID, err)
	}
	if check.ManualStatus != nil && *check.ManualStatus != "" {
		return &cancelledError{reason: "check has manual status override"}
	}
	if check.Status == models.CheckStatusCancelled {
		return &cancelledError{reason: "check was cancelled"}
	}

	prompt := buildSinglePrompt(payload)

	resp, elapsed, err := p.evaluate(ctx, prompt, payload.Context)
	if err != nil {
		return err
	}
	if resp.Parsed.ComplianceStatus == "" {
		return fmt.Errorf("%w: missing compliance status", ai.ErrInvalidResponse)
	}

	runNumber, err := p.store.NextRunNumber(ctx, payload.CheckID)
	if err != nil {
		return fmt.Errorf("reserve run number: %w", err)
	}

	run := &models.AnalysisRun{
		ID:               uuid.New(),
		CheckID:          payload.CheckID,
		RunNumber:        runNumber,
		SectionKeys:      []string{payload.Section.Section.Key},
		ComplianceStatus: resp.Parsed.ComplianceStatus,
		Confidence:       resp.Parsed.Confidence,
		Reasoning:        resp.Parsed.Reasoning,
		Violations:       resp.Parsed.Violations,
		Recommendations:  resp.Parsed.Recommendations,
		RawResponse:      resp.Raw,
		Provider:         p.provider.Name(),
		Model:            resp.Model,
		ExecutionTimeMs:  elapsed.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}

	if err := p.store.CreateAnalysisRun(ctx, run); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		return err
	}

	if err := p.store.UpdateCheckStatuses(ctx, []uuid.UUID{payload.CheckID}, models.CheckStatusCompleted); err != nil {
		return fmt.Errorf("mark check completed: %w", err)
	}

	slog.Info("single analysis recorded",
		"check_id", payload.CheckID, "run_number", runNumber,
		"compliance_status", run.ComplianceStatus)
	return nil
}
