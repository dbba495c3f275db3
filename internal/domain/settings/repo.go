package settings

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("role setting not found")

type Repository interface {
	List(ctx context.Context) ([]*RoleSetting, error)
	Get(ctx context.Context, role string) (*RoleSetting, error)
	GetMany(ctx context.Context, roles []string) ([]*RoleSetting, error)
	Upsert(ctx context.Context, rs *RoleSetting) error
	// InsertIfMissing creates rs unless the role already exists and reports
	// whether a row was written.
	InsertIfMissing(ctx context.Context, rs *RoleSetting) (bool, error)
}
