package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrDuplicateUHID = errors.New("a patient with this UHID already exists")
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUHID(ctx context.Context, uhid string) (*Patient, error)
	// GetMany returns the patients found among ids, keyed by id.
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// Search matches q against UHID, phone, names and place.
	Search(ctx context.Context, q string, limit, offset int) ([]*Patient, int, error)
}
