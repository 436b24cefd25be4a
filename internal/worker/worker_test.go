package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/complycheck/complycheck/internal/store"
	"github.com/complycheck/complycheck/pkg/models"
)

// --- in-memory queue fake ---

type fakeQueue struct {
	mu       sync.Mutex
	queues   map[string][]uuid.UUID
	jobs     map[uuid.UUID]map[string]string
	inflight map[uuid.UUID]time.Time
	expanded map[string]bool

	pushErr       error
	setFieldsErrs map[uuid.UUID]error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		queues:        make(map[string][]uuid.UUID),
		jobs:          make(map[uuid.UUID]map[string]string),
		inflight:      make(map[uuid.UUID]time.Time),
		expanded:      make(map[string]bool),
		setFieldsErrs: make(map[uuid.UUID]error),
	}
}

func (q *fakeQueue) Push(_ context.Context, name string, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return q.pushErr
	}
	q.queues[name] = append(q.queues[name], jobID)
	return nil
}

func (q *fakeQueue) Pop(_ context.Context, name string) (uuid.UUID, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.queues[name]
	if len(entries) == 0 {
		return uuid.Nil, false, nil
	}
	id := entries[0]
	q.queues[name] = entries[1:]
	return id, true, nil
}

func (q *fakeQueue) Length(_ context.Context, name string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.queues[name])), nil
}

func (q *fakeQueue) SetJobFields(_ context.Context, jobID uuid.UUID, fields map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.setFieldsErrs[jobID]; err != nil {
		return err
	}
	rec := q.jobs[jobID]
	if rec == nil {
		rec = make(map[string]string)
		q.jobs[jobID] = rec
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

func (q *fakeQueue) GetJobFields(_ context.Context, jobID uuid.UUID) (map[string]string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.jobs[jobID]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, true, nil
}

func (q *fakeQueue) MarkInFlight(_ context.Context, jobID uuid.UUID, deadline time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight[jobID] = deadline
	return nil
}

func (q *fakeQueue) ClearInFlight(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, jobID)
	return nil
}

func (q *fakeQueue) ExpiredInFlight(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []uuid.UUID
	for id, deadline := range q.inflight {
		if deadline.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (q *fakeQueue) AddExpandedOnce(_ context.Context, groupID, checkID uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := groupID.String() + ":" + checkID.String()
	if q.expanded[key] {
		return false, nil
	}
	q.expanded[key] = true
	return true, nil
}

func (q *fakeQueue) RemoveExpanded(_ context.Context, groupID, checkID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.expanded, groupID.String()+":"+checkID.String())
	return nil
}

func (q *fakeQueue) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func (q *fakeQueue) Ping(_ context.Context) error { return nil }
func (q *fakeQueue) Close() error                 { return nil }

// job returns the parsed record for a job id, failing the test when absent.
func (q *fakeQueue) job(t *testing.T, id uuid.UUID) *models.Job {
	t.Helper()
	fields, ok, err := q.GetJobFields(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "job %s has no record", id)
	j, err := models.JobFromFields(id, fields)
	require.NoError(t, err)
	return j
}

// jobsOfType returns ids of all recorded jobs with the given type.
func (q *fakeQueue) jobsOfType(jobType string) []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []uuid.UUID
	for id, rec := range q.jobs {
		if rec["type"] == jobType {
			ids = append(ids, id)
		}
	}
	return ids
}

// --- in-memory store fake ---

type groupCounter struct {
	total     int
	completed int
}

type fakeStore struct {
	mu       sync.Mutex
	checks   map[uuid.UUID]*models.Check
	sections map[string]*models.CodeSection
	refs     map[string][]string
	runs     []*models.AnalysisRun
	counters map[uuid.UUID]int
	groups   map[uuid.UUID]*groupCounter

	nextRunErrOn int // fail the Nth NextRunNumber call (1-based), 0 = never
	nextRunCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		checks:   make(map[uuid.UUID]*models.Check),
		sections: make(map[string]*models.CodeSection),
		refs:     make(map[string][]string),
		counters: make(map[uuid.UUID]int),
		groups:   make(map[uuid.UUID]*groupCounter),
	}
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }

func (s *fakeStore) GetCheck(_ context.Context, id uuid.UUID) (*models.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *fakeStore) GetChecks(_ context.Context, ids []uuid.UUID) ([]*models.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Check
	for _, id := range ids {
		if c, ok := s.checks[id]; ok {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCheckStatuses(_ context.Context, ids []uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if c, ok := s.checks[id]; ok {
			c.Status = status
		}
	}
	return nil
}

func (s *fakeStore) GetSectionsByKeys(_ context.Context, keys []string) ([]*models.CodeSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CodeSection
	for _, key := range keys {
		if sec, ok := s.sections[key]; ok {
			copied := *sec
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeStore) GetSectionReferences(_ context.Context, sourceKeys []string) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string)
	for _, key := range sourceKeys {
		if targets, ok := s.refs[key]; ok {
			out[key] = append([]string(nil), targets...)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateAnalysisRun(_ context.Context, run *models.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.runs {
		if existing.CheckID == run.CheckID && existing.RunNumber == run.RunNumber {
			return store.ErrDuplicateKey
		}
	}
	copied := *run
	s.runs = append(s.runs, &copied)
	return nil
}

func (s *fakeStore) GetRunsByBatchGroup(_ context.Context, groupID uuid.UUID) ([]*models.AnalysisRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AnalysisRun
	for _, r := range s.runs {
		if r.BatchGroupID == groupID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeStore) GetBatchGroupCheckIDs(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, r := range s.runs {
		if r.BatchGroupID == groupID && !seen[r.CheckID] {
			seen[r.CheckID] = true
			ids = append(ids, r.CheckID)
		}
	}
	return ids, nil
}

func (s *fakeStore) NextRunNumber(_ context.Context, checkID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunCalls++
	if s.nextRunErrOn != 0 && s.nextRunCalls == s.nextRunErrOn {
		return 0, fmt.Errorf("simulated counter failure")
	}
	s.counters[checkID]++
	return s.counters[checkID], nil
}

func (s *fakeStore) IncrementBatchCompletion(_ context.Context, groupID uuid.UUID, totalBatches int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		g = &groupCounter{total: totalBatches}
		s.groups[groupID] = g
	}
	g.completed++
	return g.completed, nil
}

func (s *fakeStore) checkStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checks[id]
	require.True(t, ok, "check %s not found", id)
	return c.Status
}

func (s *fakeStore) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// --- fixture helpers ---

const testQueue = "analysis"

func addCheck(s *fakeStore, sectionKey string) uuid.UUID {
	id := uuid.New()
	s.checks[id] = &models.Check{
		ID:             id,
		CodeSectionKey: sectionKey,
		Status:         models.CheckStatusPending,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	return id
}

func addSection(s *fakeStore, key string) {
	s.sections[key] = &models.CodeSection{
		Key:          key,
		Title:        "Section " + key,
		Text:         "Requirement text for " + key,
		Requirements: []string{"requirement A", "requirement B"},
		CreatedAt:    time.Now().UTC(),
	}
}

func enqueueJob(t *testing.T, q *fakeQueue, jobType string, payload any, maxAttempts int) uuid.UUID {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	job := &models.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     raw,
		Status:      models.JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, q.SetJobFields(context.Background(), job.ID, job.Fields()))
	require.NoError(t, q.Push(context.Background(), testQueue, job.ID))
	return job.ID
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

func newProcessor(q *fakeQueue, s *fakeStore, provider models.InferenceProvider, maxJobs int) *Processor {
	return New(Config{
		QueueName:      testQueue,
		MaxJobsPerRun:  maxJobs,
		MaxRunDuration: 30 * time.Second,
		StaleAfter:     time.Minute,
	}, q, s, provider)
}
