package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/complycheck/complycheck/internal/api/response"
	"github.com/complycheck/complycheck/internal/store"
	"github.com/complycheck/complycheck/pkg/models"
)

// NewGetAssessmentHandler returns an http.HandlerFunc for
// GET /api/v1/assessments/{groupID}: the analysis runs recorded so far for a
// batch group, so callers can poll for results while batches are in flight.
func NewGetAssessmentHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "groupID must be a valid UUID", nil)
			return
		}

		runs, err := st.GetRunsByBatchGroup(r.Context(), groupID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load assessment results", nil)
			return
		}
		if len(runs) == 0 {
			response.Error(w, http.StatusNotFound, "ASSESSMENT_NOT_FOUND",
				"No results recorded for that batch group", nil)
			return
		}

		response.JSON(w, assessmentResponse{
			BatchGroupID: groupID.String(),
			TotalBatches: runs[0].TotalBatches,
			Completed:    len(runs),
			Runs:         runs,
		})
	}
}

type assessmentResponse struct {
	BatchGroupID string                `json:"batch_group_id"`
	TotalBatches int                   `json:"total_batches"`
	Completed    int                   `json:"completed"`
	Runs         []*models.AnalysisRun `json:"runs"`
}
