// Package worker contains the poll-process loop and the job type handlers.
//
// Processing is at-least-once: a job that errors with attempts remaining is
// re-pushed and will be observed again, possibly by a different invocation.
// Jobs within one pass run strictly sequentially; concurrency arises across
// overlapping invocations, which the queue store and the store's atomic
// counters are expected to tolerate.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/complycheck/complycheck/internal/metrics"
	"github.com/complycheck/complycheck/internal/queue"
	"github.com/complycheck/complycheck/internal/store"
	"github.com/complycheck/complycheck/pkg/models"
	"github.com/google/uuid"
)

// Config holds the processor's per-invocation budgets.
type Config struct {
	QueueName        string
	MaxJobsPerRun    int
	MaxRunDuration   time.Duration
	StaleAfter       time.Duration
	InferenceTimeout time.Duration
}

// Summary reports what one processor pass accomplished.
type Summary struct {
	Processed int   `json:"processed"`
	Remaining int64 `json:"remaining"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// Processor dequeues analysis jobs and dispatches them to the handler
// matching their type, applying the retry/cancellation/completion policy.
type Processor struct {
	queue    queue.Queue
	store    store.Store
	provider models.InferenceProvider
	cfg      Config
}

// New creates a Processor.
func New(cfg Config, q queue.Queue, st store.Store, provider models.InferenceProvider) *Processor {
	if cfg.MaxJobsPerRun <= 0 {
		cfg.MaxJobsPerRun = 25
	}
	if cfg.MaxRunDuration <= 0 {
		cfg.MaxRunDuration = 50 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &Processor{queue: q, store: st, provider: provider, cfg: cfg}
}

// cancelledError signals that a handler short-circuited because the check
// carries an external cancellation signal. It is terminal, never retried.
type cancelledError struct {
	reason string
}

func (e *cancelledError) Error() string { return "job cancelled: " + e.reason }

// Run performs one poll-process pass: it pops jobs until the count or time
// budget is exhausted, leaving unconsumed work on the queue for the next
// invocation. One poisoned job never halts the rest of the pass.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	if requeued, err := p.sweepStale(ctx); err != nil {
		slog.Error("stale sweep failed", "error", err)
	} else if requeued > 0 {
		slog.Info("requeued stale processing jobs", "count", requeued)
	}

	processed := 0
	for processed < p.cfg.MaxJobsPerRun {
		if time.Since(start) > p.cfg.MaxRunDuration {
			slog.Warn("run duration budget exhausted, leaving remaining jobs queued",
				"processed", processed, "budget", p.cfg.MaxRunDuration)
			break
		}

		jobID, ok, err := p.queue.Pop(ctx, p.cfg.QueueName)
		if err != nil {
			return p.summary(ctx, processed, start), fmt.Errorf("pop job: %w", err)
		}
		if !ok {
			break
		}

		p.processOne(ctx, jobID)
		processed++
	}

	s := p.summary(ctx, processed, start)
	slog.Info("queue pass finished",
		"processed", s.Processed, "remaining", s.Remaining, "elapsed_ms", s.ElapsedMs)
	return s, nil
}

// RunEvery runs the processor on a ticker until the context is cancelled.
// This is optional; deployments may instead trigger passes via the HTTP
// endpoint from an external scheduler.
func (p *Processor) RunEvery(ctx context.Context, interval time.Duration) {
	slog.Info("starting queue poller", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping queue poller")
			return
		case <-ticker.C:
			if _, err := p.Run(ctx); err != nil {
				slog.Error("queue pass error", "error", err)
			}
		}
	}
}

func (p *Processor) summary(ctx context.Context, processed int, start time.Time) Summary {
	remaining, err := p.queue.Length(ctx, p.cfg.QueueName)
	if err != nil {
		slog.Error("read queue length", "error", err)
	}
	metrics.QueueRemaining.Set(float64(remaining))
	return Summary{
		Processed: processed,
		Remaining: remaining,
		ElapsedMs: time.Since(start).Milliseconds(),
	}
}

// processOne loads, dispatches, and transitions a single job. All failures
// are contained here so the pass can continue with the next job.
func (p *Processor) processOne(ctx context.Context, jobID uuid.UUID) {
	fields, ok, err := p.queue.GetJobFields(ctx, jobID)
	if err != nil {
		slog.Error("load job record", "job_id", jobID, "error", err)
		return
	}
	if !ok {
		// A dangling id is not worth failing the pass over.
		slog.Warn("popped job has no record, skipping", "job_id", jobID)
		metrics.JobsProcessed.WithLabelValues("unknown", "skipped").Inc()
		return
	}

	job, err := models.JobFromFields(jobID, fields)
	if err != nil {
		slog.Warn("malformed job record, skipping", "job_id", jobID, "error", err)
		metrics.JobsProcessed.WithLabelValues("unknown", "skipped").Inc()
		return
	}

	if job.Status == models.JobStatusCancelled {
		slog.Info("skipping cancelled job", "job_id", jobID, "type", job.Type)
		metrics.JobsProcessed.WithLabelValues(job.Type, "skipped").Inc()
		return
	}

	job.Status = models.JobStatusProcessing
	job.StartedAt = time.Now().UTC()
	job.Attempts++
	if err := p.queue.SetJobFields(ctx, jobID, job.Fields()); err != nil {
		slog.Error("mark job processing", "job_id", jobID, "error", err)
		return
	}
	if err := p.queue.MarkInFlight(ctx, jobID, job.StartedAt.Add(p.cfg.StaleAfter)); err != nil {
		slog.Error("mark job in flight", "job_id", jobID, "error", err)
	}

	handlerErr := p.dispatch(ctx, job)

	switch {
	case handlerErr == nil:
		job.Status = models.JobStatusCompleted
		job.CompletedAt = time.Now().UTC()
		job.Error = ""
		metrics.JobsProcessed.WithLabelValues(job.Type, "completed").Inc()
		slog.Info("job completed", "job_id", jobID, "type", job.Type, "attempts", job.Attempts)

	case isCancellation(handlerErr):
		job.Status = models.JobStatusCancelled
		job.CancelledAt = time.Now().UTC()
		job.Error = handlerErr.Error()
		metrics.JobsProcessed.WithLabelValues(job.Type, "cancelled").Inc()
		slog.Info("job cancelled", "job_id", jobID, "type", job.Type, "reason", handlerErr.Error())

	case job.Attempts < job.MaxAttempts:
		job.Status = models.JobStatusPending
		job.Error = handlerErr.Error()
		metrics.JobsProcessed.WithLabelValues(job.Type, "retried").Inc()
		slog.Warn("job failed, requeueing",
			"job_id", jobID, "type", job.Type,
			"attempts", job.Attempts, "max_attempts", job.MaxAttempts, "error", handlerErr)

	default:
		job.Status = models.JobStatusFailed
		job.Error = handlerErr.Error()
		metrics.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
		slog.Error("job permanently failed",
			"job_id", jobID, "type", job.Type, "attempts", job.Attempts, "error", handlerErr)
	}

	if err := p.queue.SetJobFields(ctx, jobID, job.Fields()); err != nil {
		slog.Error("persist job transition", "job_id", jobID, "status", job.Status, "error", err)
	}
	if job.Status == models.JobStatusPending {
		if err := p.queue.Push(ctx, p.cfg.QueueName, jobID); err != nil {
			slog.Error("requeue job for retry", "job_id", jobID, "error", err)
		}
	}
	if err := p.queue.ClearInFlight(ctx, jobID); err != nil {
		slog.Error("clear in-flight entry", "job_id", jobID, "error", err)
	}
}

// dispatch decodes the type-specific payload and invokes the matching handler.
func (p *Processor) dispatch(ctx context.Context, job *models.Job) error {
	switch job.Type {
	case models.JobTypeElementGroupExpansion:
		var payload models.ExpansionPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode expansion payload: %w", err)
		}
		return p.handleExpansion(ctx, job, payload)

	case models.JobTypeBatchAnalysis:
		var payload models.BatchPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode batch payload: %w", err)
		}
		return p.handleBatch(ctx, job, payload)

	case models.JobTypeSingleAnalysis:
		var payload models.SinglePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode single payload: %w", err)
		}
		return p.handleSingle(ctx, job, payload)

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// sweepStale requeues jobs whose processing deadline passed, e.g. the host
// was killed mid-handler and left them processing with no one to finish them.
func (p *Processor) sweepStale(ctx context.Context) (int, error) {
	expired, err := p.queue.ExpiredInFlight(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list expired in-flight jobs: %w", err)
	}

	requeued := 0
	for _, jobID := range expired {
		fields, ok, err := p.queue.GetJobFields(ctx, jobID)
		if err != nil {
			slog.Error("load stale job record", "job_id", jobID, "error", err)
			continue
		}
		if ok && fields["status"] == models.JobStatusProcessing {
			job, err := models.JobFromFields(jobID, fields)
			if err != nil {
				slog.Warn("malformed stale job record, skipping", "job_id", jobID, "error", err)
			} else if job.Attempts >= job.MaxAttempts {
				// The stalled attempt was the last one the job had; requeueing
				// would hand it an attempt beyond its budget.
				if err := p.queue.SetJobFields(ctx, jobID, map[string]string{
					"status": models.JobStatusFailed,
					"error":  "processing deadline exceeded on final attempt",
				}); err != nil {
					slog.Error("fail stale job", "job_id", jobID, "error", err)
					continue
				}
				metrics.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
				slog.Error("stale job out of attempts, failing",
					"job_id", jobID, "type", job.Type, "attempts", job.Attempts)
			} else {
				if err := p.queue.SetJobFields(ctx, jobID, map[string]string{
					"status": models.JobStatusPending,
				}); err != nil {
					slog.Error("reset stale job", "job_id", jobID, "error", err)
					continue
				}
				if err := p.queue.Push(ctx, p.cfg.QueueName, jobID); err != nil {
					slog.Error("requeue stale job", "job_id", jobID, "error", err)
					continue
				}
				metrics.StaleRequeued.Inc()
				slog.Warn("requeued stale processing job", "job_id", jobID)
				requeued++
			}
		}
		if err := p.queue.ClearInFlight(ctx, jobID); err != nil {
			slog.Error("clear stale in-flight entry", "job_id", jobID, "error", err)
		}
	}
	return requeued, nil
}

func isCancellation(err error) bool {
	var ce *cancelledError
	return errors.As(err, &ce)
}
