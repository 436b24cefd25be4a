package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/complycheck/complycheck/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Checks ---

func (s *PostgresStore) GetCheck(ctx context.Context, id uuid.UUID) (*models.Check, error) {
	var c models.Check
	err := s.pool.QueryRow(ctx,
		`SELECT id, code_section_key, status, manual_status, created_at, updated_at
		 FROM checks WHERE id = $1`, id,
	).Scan(&c.ID, &c.CodeSectionKey, &c.Status, &c.ManualStatus, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get check: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetChecks(ctx context.Context, ids []uuid.UUID) ([]*models.Check, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code_section_key, status, manual_status, created_at, updated_at
		 FROM checks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get checks: %w", err)
	}
	defer rows.Close()

	var checks []*models.Check
	for rows.Next() {
		var c models.Check
		if err := rows.Scan(&c.ID, &c.CodeSectionKey, &c.Status, &c.ManualStatus,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		checks = append(checks, &c)
	}
	return checks, rows.Err()
}

func (s *PostgresStore) UpdateCheckStatuses(ctx context.Context, ids []uuid.UUID, status string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE checks SET status = $1, updated_at = NOW() WHERE id = ANY($2)`, status, ids)
	if err != nil {
		return fmt.Errorf("update check statuses: %w", err)
	}
	return nil
}

// --- Code sections ---

func (s *PostgresStore) GetSectionsByKeys(ctx context.Context, keys []string) ([]*models.CodeSection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, title, text, requirements, created_at
		 FROM code_sections WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("get sections by keys: %w", err)
	}
	defer rows.Close()

	var sections []*models.CodeSection
	for rows.Next() {
		var sec models.CodeSection
		if err := rows.Scan(&sec.Key, &sec.Title, &sec.Text, &sec.Requirements, &sec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, &sec)
	}
	return sections, rows.Err()
}

func (s *PostgresStore) GetSectionReferences(ctx context.Context, sourceKeys []string) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_key, target_key FROM section_references WHERE source_key = ANY($1)`, sourceKeys)
	if err != nil {
		return nil, fmt.Errorf("get section references: %w", err)
	}
	defer rows.Close()

	refs := make(map[string][]string)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, fmt.Errorf("scan section reference: %w", err)
		}
		refs[source] = append(refs[source], target)
	}
	return refs, rows.Err()
}

// --- Analysis runs ---

func (s *PostgresStore) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	var groupID *uuid.UUID
	if run.BatchGroupID != uuid.Nil {
		groupID = &run.BatchGroupID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_runs
		 (id, check_id, run_number, batch_group_id, batch_number, total_batches, section_keys,
		  compliance_status, confidence, reasoning, violations, recommendations, section_verdicts,
		  raw_response, provider, model, execution_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		run.ID, run.CheckID, run.RunNumber, groupID, run.BatchNumber, run.TotalBatches,
		run.SectionKeys, run.ComplianceStatus, run.Confidence, run.Reasoning,
		run.Violations, run.Recommendations, run.SectionVerdicts,
		run.RawResponse, run.Provider, run.Model, run.ExecutionTimeMs, run.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create analysis run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRunsByBatchGroup(ctx context.Context, groupID uuid.UUID) ([]*models.AnalysisRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, check_id, run_number, COALESCE(batch_group_id, '00000000-0000-0000-0000-000000000000'),
		        batch_number, total_batches, section_keys, compliance_status, confidence, reasoning,
		        violations, recommendations, section_verdicts, raw_response, provider, model,
		        execution_time_ms, created_at
		 FROM analysis_runs WHERE batch_group_id = $1 ORDER BY batch_number`, groupID)
	if err != nil {
		return nil, fmt.Errorf("get runs by batch group: %w", err)
	}
	defer rows.Close()

	var runs []*models.AnalysisRun
	for rows.Next() {
		var r models.AnalysisRun
		if err := rows.Scan(&r.ID, &r.CheckID, &r.RunNumber, &r.BatchGroupID, &r.BatchNumber,
			&r.TotalBatches, &r.SectionKeys, &r.ComplianceStatus, &r.Confidence, &r.Reasoning,
			&r.Violations, &r.Recommendations, &r.SectionVerdicts, &r.RawResponse,
			&r.Provider, &r.Model, &r.ExecutionTimeMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) GetBatchGroupCheckIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT check_id FROM analysis_runs WHERE batch_group_id = $1`, groupID)
	if err != nil {
		return nil, fmt.Errorf("get batch group check ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan check id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Counters ---

// NextRunNumber reserves the next run number via an upserted per-check counter
// row, so two overlapping invocations can never compute the same number.
func (s *PostgresStore) NextRunNumber(ctx context.Context, checkID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO run_counters (check_id, n) VALUES ($1, 1)
		 ON CONFLICT (check_id) DO UPDATE SET n = run_counters.n + 1
		 RETURNING n`, checkID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next run number: %w", err)
	}
	return n, nil
}

// IncrementBatchCompletion bumps the group's completed-batch count. The row is
// created on first increment, so the enqueuer does not have to register the
// group up front.
func (s *PostgresStore) IncrementBatchCompletion(ctx context.Context, groupID uuid.UUID, totalBatches int) (int, error) {
	var completed int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO batch_groups (id, total_batches, completed_batches) VALUES ($1, $2, 1)
		 ON CONFLICT (id) DO UPDATE SET completed_batches = batch_groups.completed_batches + 1
		 RETURNING completed_batches`, groupID, totalBatches,
	).Scan(&completed)
	if err != nil {
		return 0, fmt.Errorf("increment batch completion: %w", err)
	}
	return completed, nil
}

// isDuplicateKeyError checks for Postgres unique_violation (23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
