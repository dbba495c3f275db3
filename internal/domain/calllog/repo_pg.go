package calllog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/medtrack/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const logCols = `id, case_id, task_id, outcome, notes, staff_id, created_at`

func (r *repoPG) Create(ctx context.Context, l *Log) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO call_log (id, case_id, task_id, outcome, notes, staff_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.CaseID, l.TaskID, l.Outcome, l.Notes, l.StaffID, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]Log, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query call logs: %w", err)
	}
	defer rows.Close()
	var out []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.CaseID, &l.TaskID, &l.Outcome, &l.Notes, &l.StaffID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Log, error) {
	return r.query(ctx, `SELECT `+logCols+` FROM call_log WHERE case_id = $1 ORDER BY created_at DESC, id`, caseID)
}

func (r *repoPG) ListByCases(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID][]Log, error) {
	out := make(map[uuid.UUID][]Log, len(caseIDs))
	if len(caseIDs) == 0 {
		return out, nil
	}
	logs, err := r.query(ctx, `SELECT `+logCols+` FROM call_log WHERE case_id = ANY($1)
		ORDER BY created_at DESC, id`, caseIDs)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		out[l.CaseID] = append(out[l.CaseID], l)
	}
	return out, nil
}
