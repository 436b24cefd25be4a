package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/complycheck/complycheck/internal/api/response"
	"github.com/complycheck/complycheck/internal/queue"
	"github.com/complycheck/complycheck/pkg/models"
)

const maxChecksPerAssessment = 100

// NewAssessHandler returns an http.HandlerFunc for POST /api/v1/assessments.
// It enqueues one element_group_expansion job covering the requested checks;
// the processor later fans it out into per-check batch jobs.
func NewAssessHandler(q queue.Queue, queueName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CheckIDs     []string `json:"check_ids"`
			Screenshots  []string `json:"screenshots"`
			BuildingInfo string   `json:"building_info"`
			Provider     string   `json:"provider"`
			Model        string   `json:"model"`
			ExtraContext string   `json:"extra_context"`
			MaxAttempts  int      `json:"max_attempts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if len(req.CheckIDs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "check_ids is required", nil)
			return
		}
		if len(req.CheckIDs) > maxChecksPerAssessment {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"too many checks in one assessment", map[string]int{"max": maxChecksPerAssessment})
			return
		}

		checkIDs := make([]uuid.UUID, 0, len(req.CheckIDs))
		for _, raw := range req.CheckIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"check_ids must be valid UUIDs", map[string]string{"invalid": raw})
				return
			}
			checkIDs = append(checkIDs, id)
		}

		maxAttempts := req.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = models.DefaultMaxAttempts
		}

		groupID := uuid.New()
		payload, err := json.Marshal(models.ExpansionPayload{
			CheckIDs:     checkIDs,
			BatchGroupID: groupID,
			TotalBatches: len(checkIDs),
			Context: models.SharedContext{
				Screenshots:  req.Screenshots,
				BuildingInfo: req.BuildingInfo,
				Provider:     req.Provider,
				Model:        req.Model,
				ExtraContext: req.ExtraContext,
			},
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		job := &models.Job{
			ID:          uuid.New(),
			Type:        models.JobTypeElementGroupExpansion,
			Payload:     payload,
			Status:      models.JobStatusPending,
			MaxAttempts: maxAttempts,
			CreatedAt:   time.Now().UTC(),
		}

		if err := q.SetJobFields(r.Context(), job.ID, job.Fields()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Could not create the assessment job", nil)
			return
		}
		if err := q.Push(r.Context(), queueName, job.ID); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Could not enqueue the assessment job", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id":         job.ID,
			"batch_group_id": groupID,
			"total_batches":  len(checkIDs),
		})
	}
}
