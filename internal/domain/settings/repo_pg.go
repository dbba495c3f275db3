package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func scanSetting(row pgx.Row) (*RoleSetting, error) {
	var (
		rs   RoleSetting
		caps []string
	)
	err := row.Scan(&rs.RoleName, &caps, &rs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, c := range caps {
		rs.Capabilities = append(rs.Capabilities, auth.Capability(c))
	}
	return &rs, nil
}

func capStrings(caps []auth.Capability) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, string(c))
	}
	return out
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*RoleSetting, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query role settings: %w", err)
	}
	defer rows.Close()
	var items []*RoleSetting
	for rows.Next() {
		rs, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rs)
	}
	return items, rows.Err()
}

func (r *repoPG) List(ctx context.Context) ([]*RoleSetting, error) {
	return r.list(ctx, `SELECT role_name, capabilities, updated_at FROM role_setting ORDER BY role_name`)
}

func (r *repoPG) GetMany(ctx context.Context, roles []string) ([]*RoleSetting, error) {
	return r.list(ctx, `SELECT role_name, capabilities, updated_at FROM role_setting WHERE role_name = ANY($1)`, roles)
}

func (r *repoPG) Get(ctx context.Context, role string) (*RoleSetting, error) {
	return scanSetting(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT role_name, capabilities, updated_at FROM role_setting WHERE role_name = $1`, role))
}

func (r *repoPG) Upsert(ctx context.Context, rs *RoleSetting) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO role_setting (role_name, capabilities, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (role_name) DO UPDATE SET capabilities = EXCLUDED.capabilities, updated_at = NOW()
		RETURNING updated_at`,
		rs.RoleName, capStrings(rs.Capabilities)).Scan(&rs.UpdatedAt)
}

func (r *repoPG) InsertIfMissing(ctx context.Context, rs *RoleSetting) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO role_setting (role_name, capabilities) VALUES ($1, $2)
		ON CONFLICT (role_name) DO NOTHING`,
		rs.RoleName, capStrings(rs.Capabilities))
	if err != nil {
		return false, fmt.Errorf("insert role setting %s: %w", rs.RoleName, err)
	}
	return tag.RowsAffected() == 1, nil
}
