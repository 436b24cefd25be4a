package store

import (
	"context"
	"errors"

	"github.com/complycheck/complycheck/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All relational operations issued by the
// job handlers go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetCheck(ctx context.Context, id uuid.UUID) (*models.Check, error)
	GetChecks(ctx context.Context, ids []uuid.UUID) ([]*models.Check, error)
	UpdateCheckStatuses(ctx context.Context, ids []uuid.UUID, status string) error

	GetSectionsByKeys(ctx context.Context, keys []string) ([]*models.CodeSection, error)
	// GetSectionReferences returns, for each source key, the keys of the
	// sections it cross-references (one hop).
	GetSectionReferences(ctx context.Context, sourceKeys []string) (map[string][]string, error)

	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	GetRunsByBatchGroup(ctx context.Context, groupID uuid.UUID) ([]*models.AnalysisRun, error)
	// GetBatchGroupCheckIDs returns the distinct check ids across every run
	// recorded for the batch group.
	GetBatchGroupCheckIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)

	// NextRunNumber atomically reserves the next 1-based run number for a
	// check. Concurrent callers never receive the same number.
	NextRunNumber(ctx context.Context, checkID uuid.UUID) (int, error)
	// IncrementBatchCompletion atomically bumps the group's completed-batch
	// counter and returns the new value. Exactly one caller observes the
	// value equal to totalBatches.
	IncrementBatchCompletion(ctx context.Context, groupID uuid.UUID, totalBatches int) (int, error)
}
