package handler

import (
	"context"
	"net/http"

	"github.com/complycheck/complycheck/internal/api/response"
	"github.com/complycheck/complycheck/internal/worker"
)

// QueueProcessor defines the interface the trigger handler depends on.
type QueueProcessor interface {
	Run(ctx context.Context) (worker.Summary, error)
}

// NewProcessHandler returns an http.HandlerFunc for POST /api/v1/queue/process.
// It runs one poll-process pass and reports the summary, so an external
// scheduler can drive the queue with periodic calls.
func NewProcessHandler(p QueueProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := p.Run(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "QUEUE_ERROR",
				"Queue pass aborted", map[string]any{
					"processed": summary.Processed,
					"error":     err.Error(),
				})
			return
		}

		response.JSON(w, summary)
	}
}
