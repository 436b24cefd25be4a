package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/complycheck/complycheck/internal/ai"
	"github.com/complycheck/complycheck/internal/metrics"
	"github.com/complycheck/complycheck/internal/store"
	"github.com/complycheck/complycheck/pkg/models"
	"github.com/google/uuid"
)

// handleBatch evaluates one check's code sections in a single inference call
// and records the aggregated run. The last sibling batch of a group to finish
// flips every check in the group to completed (fan-in).
func (p *Processor) handleBatch(ctx context.Context, job *models.Job, payload models.BatchPayload) error {
	if len(payload.Sections) == 0 {
		return fmt.Errorf("batch job %s has no sections", job.ID)
	}

	// Cancellation is sampled here, before the inference call; a signal
	// arriving once the call is in flight is only honored by later jobs.
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

	prompt := buildBatchPrompt(payload)

	resp, elapsed, err := p.evaluate(ctx, prompt, payload.Context)
	if err != nil {
		return err
	}
	if len(resp.Parsed.Sections) == 0 {
		return fmt.Errorf("%w: missing per-section verdicts", ai.ErrInvalidResponse)
	}

	agg := aggregateVerdicts(resp.Parsed.Sections)
	reasoning := resp.Parsed.Summary
	if reasoning == "" {
		reasoning = agg.Reasoning
	}

	sectionKeys := make([]string, 0, len(payload.Sections))
	for _, b := range payload.Sections {
		sectionKeys = append(sectionKeys, b.Section.Key)
	}

	run := &models.AnalysisRun{
		ID:               uuid.New(),
		CheckID:          payload.CheckID,
		RunNumber:        payload.RunNumber,
		BatchGroupID:     payload.BatchGroupID,
		BatchNumber:      payload.BatchNumber,
		TotalBatches:     payload.TotalBatches,
		SectionKeys:      sectionKeys,
		ComplianceStatus: agg.Status,
		Confidence:       agg.Confidence,
		Reasoning:        reasoning,
		Violations:       agg.Violations,
		Recommendations:  agg.Recommendations,
		SectionVerdicts:  resp.Parsed.Sections,
		RawResponse:      resp.Raw,
		Provider:         p.provider.Name(),
		Model:            resp.Model,
		ExecutionTimeMs:  elapsed.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}

	if err := p.store.CreateAnalysisRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// This run was already recorded by an earlier processing of the
			// same job, so the group counter must not be bumped again.
			slog.Warn("duplicate run for check, skipping fan-in",
				"check_id", payload.CheckID, "run_number", payload.RunNumber)
			return nil
		}
		return err
	}

	return p.completeBatchGroup(ctx, payload.BatchGroupID, payload.TotalBatches)
}

// completeBatchGroup bumps the group's completion counter; exactly one caller
// observes the count reaching the total and performs the fan-in side effect.
func (p *Processor) completeBatchGroup(ctx context.Context, groupID uuid.UUID, totalBatches int) error {
	completed, err := p.store.IncrementBatchCompletion(ctx, groupID, totalBatches)
	if err != nil {
		return err
	}
	if completed != totalBatches {
		return nil
	}

	checkIDs, err := p.store.GetBatchGroupCheckIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("collect batch group checks: %w", err)
	}
	if err := p.store.UpdateCheckStatuses(ctx, checkIDs, models.CheckStatusCompleted); err != nil {
		return fmt.Errorf("mark batch group checks completed: %w", err)
	}

	slog.Info("batch group completed",
		"batch_group_id", groupID, "total_batches", totalBatches, "checks", len(checkIDs))
	return nil
}

// evaluate performs one inference call under the configured timeout.
func (p *Processor) evaluate(ctx context.Context, prompt string, shared models.SharedContext) (models.InferenceResponse, time.Duration, error) {
	inferCtx := ctx
	if p.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, p.cfg.InferenceTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.provider.Evaluate(inferCtx, models.InferenceRequest{
		Prompt:   prompt,
		Evidence: shared.Screenshots,
		Model:    shared.Model,
	})
	elapsed := time.Since(start)
	metrics.InferenceDuration.WithLabelValues(p.provider.Name()).Observe(elapsed.Seconds())
	if err != nil {
		return models.InferenceResponse{}, elapsed, fmt.Errorf("inference: %w", err)
	}
	return resp, elapsed, nil
}
