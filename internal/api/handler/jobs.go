package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/complycheck/complycheck/internal/api/response"
	"github.com/complycheck/complycheck/internal/queue"
	"github.com/complycheck/complycheck/pkg/models"
)

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Terminal jobs are retained in the queue store, so operators can inspect
// failed and cancelled work here.
func NewGetJobHandler(q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		fields, ok, err := q.GetJobFields(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Could not load the job record", nil)
			return
		}
		if !ok {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No job with that id", nil)
			return
		}

		job, err := models.JobFromFields(jobID, fields)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Job record is malformed", nil)
			return
		}

		response.JSON(w, jobResponse{
			ID:          job.ID.String(),
			Type:        job.Type,
			Status:      job.Status,
			Attempts:    job.Attempts,
			MaxAttempts: job.MaxAttempts,
			Error:       job.Error,
			CreatedAt:   timeOrEmpty(job.CreatedAt),
			StartedAt:   timeOrEmpty(job.StartedAt),
			CompletedAt: timeOrEmpty(job.CompletedAt),
			CancelledAt: timeOrEmpty(job.CancelledAt),
		})
	}
}

func timeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type jobResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
}
