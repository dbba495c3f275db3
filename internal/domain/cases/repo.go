package cases

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/followup"
)

var (
	ErrNotFound         = errors.New("case not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrActiveCaseExists = errors.New("patient already has an active case")
	ErrDuplicateTask    = errors.New("a live task with this kind and due date already exists")
)

type CaseRepository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	Update(ctx context.Context, c *Case) error
	ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Case, error)
	ListActive(ctx context.Context) ([]*Case, error)
	CountByStatus(ctx context.Context) (map[followup.CaseStatus]int, error)
	Search(ctx context.Context, f SearchFilter) ([]*Case, int, error)
}

// TaskRepository never deletes: superseded tasks stay for history.
type TaskRepository interface {
	Create(ctx context.Context, t *followup.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*followup.Task, error)
	Update(ctx context.Context, t *followup.Task) error
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]followup.Task, error)
	// ListLiveByCases returns the non-superseded tasks of the given cases.
	ListLiveByCases(ctx context.Context, caseIDs []uuid.UUID) ([]followup.Task, error)
}
