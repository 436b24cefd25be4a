// Package models contains shared data models used across the ComplyCheck codebase.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

const (
	JobTypeSingleAnalysis        = "single_analysis"
	JobTypeBatchAnalysis         = "batch_analysis"
	JobTypeElementGroupExpansion = "element_group_expansion"
)

// DefaultMaxAttempts is applied when a job is enqueued without an explicit limit.
const DefaultMaxAttempts = 3

// Job is the persisted unit of queued work. It lives in the queue store as a
// hash record keyed by ID; queue membership is tracked separately, so a job
// record can exist without being on any queue (terminal states are retained
// for inspection).
type Job struct {
	ID          uuid.UUID
	Type        string
	Payload     json.RawMessage
	Status      string
	Attempts    int
	MaxAttempts int
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	CancelledAt time.Time
}

// Fields flattens the job into the string field map stored in the queue store.
// Zero-value timestamps are omitted.
func (j *Job) Fields() map[string]string {
	f := map[string]string{
		"type":         j.Type,
		"payload":      string(j.Payload),
		"status":       j.Status,
		"attempts":     strconv.Itoa(j.Attempts),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"error":        j.Error,
		"created_at":   j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !j.StartedAt.IsZero() {
		f["started_at"] = j.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !j.CompletedAt.IsZero() {
		f["completed_at"] = j.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	if !j.CancelledAt.IsZero() {
		f["cancelled_at"] = j.CancelledAt.UTC().Format(time.RFC3339Nano)
	}
	return f
}

// JobFromFields rebuilds a job from its stored field map.
func JobFromFields(id uuid.UUID, fields map[string]string) (*Job, error) {
	j := &Job{
		ID:      id,
		Type:    fields["type"],
		Payload: json.RawMessage(fields["payload"]),
		Status:  fields["status"],
		Error:   fields["error"],
	}
	if j.Type == "" {
		return nil, fmt.Errorf("job %s: missing type field", id)
	}

	var err error
	if j.Attempts, err = parseIntField(fields, "attempts"); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	if j.MaxAttempts, err = parseIntField(fields, "max_attempts"); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = DefaultMaxAttempts
	}

	j.CreatedAt = parseTimeField(fields, "created_at")
	j.StartedAt = parseTimeField(fields, "started_at")
	j.CompletedAt = parseTimeField(fields, "completed_at")
	j.CancelledAt = parseTimeField(fields, "cancelled_at")

	return j, nil
}

func parseIntField(fields map[string]string, key string) (int, error) {
	v := fields[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return n, nil
}

func parseTimeField(fields map[string]string, key string) time.Time {
	v := fields[key]
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SharedContext carries the evaluation context common to every job spawned
// from one assessment request.
type SharedContext struct {
	Screenshots  []string `json:"screenshots,omitempty"`
	BuildingInfo string   `json:"building_info,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	ExtraContext string   `json:"extra_context,omitempty"`
}

// ExpansionPayload is the payload of an element_group_expansion job: one
// logical element instance whose checks fan out into sibling batch jobs.
type ExpansionPayload struct {
	CheckIDs     []uuid.UUID   `json:"check_ids"`
	BatchGroupID uuid.UUID     `json:"batch_group_id"`
	TotalBatches int           `json:"total_batches"`
	Context      SharedContext `json:"context"`
}

// SectionBundle pairs a code section with its one-hop cross-referenced
// sections, resolved at fan-out time so the analysis prompt is self-contained.
type SectionBundle struct {
	Section    CodeSection   `json:"section"`
	References []CodeSection `json:"references,omitempty"`
}

// BatchPayload is the payload of a batch_analysis job.
type BatchPayload struct {
	CheckID      uuid.UUID       `json:"check_id"`
	Sections     []SectionBundle `json:"sections"`
	BatchNumber  int             `json:"batch_number"`
	TotalBatches int             `json:"total_batches"`
	BatchGroupID uuid.UUID       `json:"batch_group_id"`
	RunNumber    int             `json:"run_number"`
	Context      SharedContext   `json:"context"`
	CustomPrompt string          `json:"custom_prompt,omitempty"`
}

// SinglePayload is the payload of a legacy single_analysis job: one check,
// one section, no grouping.
type SinglePayload struct {
	CheckID      uuid.UUID     `json:"check_id"`
	Section      SectionBundle `json:"section"`
	Context      SharedContext `json:"context"`
	CustomPrompt string        `json:"custom_prompt,omitempty"`
}
