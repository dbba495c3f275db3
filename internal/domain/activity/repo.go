package activity

import (
	"context"

	"github.com/google/uuid"
)

// Repository is append-only.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
