package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/complycheck/complycheck/pkg/models"
	"github.com/google/uuid"
)

// handleExpansion fans one element instance out into sibling batch_analysis
// jobs: exactly one per check, each carrying the check's code section plus its
// one-hop cross-referenced sections. The expansion itself never calls the
// inference provider.
//
// A retried expansion skips checks whose child job was already enqueued by an
// earlier attempt, so a partial failure does not duplicate work.
func (p *Processor) handleExpansion(ctx context.Context, job *models.Job, payload models.ExpansionPayload) error {
	if len(payload.CheckIDs) == 0 {
		return fmt.Errorf("expansion job %s has no check ids", job.ID)
	}
	if payload.BatchGroupID == uuid.Nil {
		return fmt.Errorf("expansion job %s has no batch group id", job.ID)
	}

	checks, err := p.store.GetChecks(ctx, payload.CheckIDs)
	if err != nil {
		return fmt.Errorf("load checks: %w", err)
	}
	if len(checks) < len(payload.CheckIDs) {
		// Expanding a partial set would leave the batch group short of
		// TotalBatches and its fan-in unreachable.
		return fmt.Errorf("expansion job %s references missing checks: requested %d, found %d",
			job.ID, len(payload.CheckIDs), len(checks))
	}

	bundles, err := p.loadSectionBundles(ctx, checks)
	if err != nil {
		return err
	}

	for i, check := range checks {
		bundle, ok := bundles[check.CodeSectionKey]
		if !ok {
			return fmt.Errorf("check %s references unknown section %q", check.ID, check.CodeSectionKey)
		}

		first, err := p.queue.AddExpandedOnce(ctx, payload.BatchGroupID, check.ID)
		if err != nil {
			return fmt.Errorf("record expansion of check %s: %w", check.ID, err)
		}
		if !first {
			slog.Info("check already expanded for group, skipping",
				"check_id", check.ID, "batch_group_id", payload.BatchGroupID)
			continue
		}

		runNumber, err := p.store.NextRunNumber(ctx, check.ID)
		if err != nil {
			p.releaseExpansion(ctx, payload.BatchGroupID, check.ID)
			return fmt.Errorf("reserve run number for check %s: %w", check.ID, err)
		}

		childPayload, err := json.Marshal(models.BatchPayload{
			CheckID:      check.ID,
			Sections:     []models.SectionBundle{bundle},
			BatchNumber:  i + 1,
			TotalBatches: payload.TotalBatches,
			BatchGroupID: payload.BatchGroupID,
			RunNumber:    runNumber,
			Context:      payload.Context,
		})
		if err != nil {
			p.releaseExpansion(ctx, payload.BatchGroupID, check.ID)
			return fmt.Errorf("encode batch payload for check %s: %w", check.ID, err)
		}

		child := &models.Job{
			ID:          uuid.New(),
			Type:        models.JobTypeBatchAnalysis,
			Payload:     childPayload,
			Status:      models.JobStatusPending,
			MaxAttempts: job.MaxAttempts,
			CreatedAt:   time.Now().UTC(),
		}
		if err := p.queue.SetJobFields(ctx, child.ID, child.Fields()); err != nil {
			p.releaseExpansion(ctx, payload.BatchGroupID, check.ID)
			return fmt.Errorf("create batch job for check %s: %w", check.ID, err)
		}
		if err := p.queue.Push(ctx, p.cfg.QueueName, child.ID); err != nil {
			p.releaseExpansion(ctx, payload.BatchGroupID, check.ID)
			return fmt.Errorf("enqueue batch job for check %s: %w", check.ID, err)
		}

		slog.Info("expanded check into batch job",
			"check_id", check.ID, "child_job_id", child.ID,
			"batch_number", i+1, "total_batches", payload.TotalBatches,
			"run_number", runNumber, "batch_group_id", payload.BatchGroupID)
	}

	return nil
}

// releaseExpansion drops the group's reservation for a check so a retried
// expansion does not skip it. Best effort: a failure here leaves the check
// unexpanded until an operator intervenes, and is logged for that reason.
func (p *Processor) releaseExpansion(ctx context.Context, groupID, checkID uuid.UUID) {
	if err := p.queue.RemoveExpanded(ctx, groupID, checkID); err != nil {
		slog.Error("release expansion reservation",
			"batch_group_id", groupID, "check_id", checkID, "error", err)
	}
}

// loadSectionBundles resolves each check's code section and, in one hop, every
// section it cross-references, keyed by the check's section key.
func (p *Processor) loadSectionBundles(ctx context.Context, checks []*models.Check) (map[string]models.SectionBundle, error) {
	keySet := make(map[string]bool, len(checks))
	keys := make([]string, 0, len(checks))
	for _, c := range checks {
		if !keySet[c.CodeSectionKey] {
			keySet[c.CodeSectionKey] = true
			keys = append(keys, c.CodeSectionKey)
		}
	}

	sections, err := p.store.GetSectionsByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	byKey := make(map[string]models.CodeSection, len(sections))
	for _, s := range sections {
		byKey[s.Key] = *s
	}

	refs, err := p.store.GetSectionReferences(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load section references: %w", err)
	}

	refKeySet := make(map[string]bool)
	var refKeys []string
	for _, targets := range refs {
		for _, t := range targets {
			if !refKeySet[t] {
				refKeySet[t] = true
				refKeys = append(refKeys, t)
			}
		}
	}

	refByKey := make(map[string]models.CodeSection)
	if len(refKeys) > 0 {
		refSections, err := p.store.GetSectionsByKeys(ctx, refKeys)
		if err != nil {
			return nil, fmt.Errorf("load referenced sections: %w", err)
		}
		for _, s := range refSections {
			refByKey[s.Key] = *s
		}
	}

	bundles := make(map[string]models.SectionBundle, len(byKey))
	for key, section := range byKey {
		bundle := models.SectionBundle{Section: section}
		for _, target := range refs[key] {
			if ref, ok := refByKey[target]; ok {
				bundle.References = append(bundle.References, ref)
			}
		}
		bundles[key] = bundle
	}
	return bundles, nil
}
