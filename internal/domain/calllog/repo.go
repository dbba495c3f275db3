package calllog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, l *Log) error
	// ListByCase returns the case's calls, newest first.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]Log, error)
	// ListByCases groups the calls of several cases, newest first.
	ListByCases(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID][]Log, error)
}
