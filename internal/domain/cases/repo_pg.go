package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/platform/db"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// -- Case --

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository {
	return &caseRepoPG{pool: pool}
}

const caseCols = `id, patient_id, pathway, pathway_fields, status, close_reason, diagnosis, ncd_flags,
	referred_by, high_risk, gravida, para, abortions, living, notes, awaiting_report, created_by,
	created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var (
		c          Case
		raw        []byte
		g, p, a, l *int
	)
	err := row.Scan(&c.ID, &c.PatientID, &c.Pathway, &raw, &c.Status, &c.CloseReason, &c.Diagnosis,
		&c.NCDFlags, &c.ReferredBy, &c.HighRisk, &g, &p, &a, &l, &c.Notes, &c.AwaitingReport,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Fields, err = followup.DecodeFields(c.Pathway, raw); err != nil {
		return nil, fmt.Errorf("case %s: %w", c.ID, err)
	}
	if g != nil {
		c.History = &ObstetricHistory{Gravida: *g}
		if p != nil {
			c.History.Para = *p
		}
		if a != nil {
			c.History.Abortions = *a
		}
		if l != nil {
			c.History.Living = *l
		}
	}
	return &c, nil
}

func historyArgs(h *ObstetricHistory) (g, p, a, l *int) {
	if h == nil {
		return nil, nil, nil, nil
	}
	return &h.Gravida, &h.Para, &h.Abortions, &h.Living
}

func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	raw, err := followup.EncodeFields(c.Fields)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.NCDFlags == nil {
		c.NCDFlags = []string{}
	}
	g, p, a, l := historyArgs(c.History)
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clinical_case (id, patient_id, pathway, pathway_fields, status, close_reason, diagnosis,
			ncd_flags, referred_by, high_risk, gravida, para, abortions, living, notes, awaiting_report, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.Pathway, string(raw), c.Status, c.CloseReason, c.Diagnosis,
		c.NCDFlags, c.ReferredBy, c.HighRisk, g, p, a, l, c.Notes, c.AwaitingReport, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrActiveCaseExists
	}
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *caseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+caseCols+` FROM clinical_case WHERE id = $1`, id))
}

func (r *caseRepoPG) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Case, error) {
	return scanCase(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+caseCols+` FROM clinical_case WHERE patient_id = $1 AND status = 'ACTIVE'`, patientID))
}

func (r *caseRepoPG) Update(ctx context.Context, c *Case) error {
	raw, err := followup.EncodeFields(c.Fields)
	if err != nil {
		return err
	}
	if c.NCDFlags == nil {
		c.NCDFlags = []string{}
	}
	g, p, a, l := historyArgs(c.History)
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE clinical_case SET pathway=$2, pathway_fields=$3, status=$4, close_reason=$5, diagnosis=$6,
			ncd_flags=$7, referred_by=$8, high_risk=$9, gravida=$10, para=$11, abortions=$12, living=$13,
			notes=$14, awaiting_report=$15, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Pathway, string(raw), c.Status, c.CloseReason, c.Diagnosis, c.NCDFlags, c.ReferredBy,
		c.HighRisk, g, p, a, l, c.Notes, c.AwaitingReport,
	).Scan(&c.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrActiveCaseExists
	case err != nil:
		return fmt.Errorf("update case: %w", err)
	}
	return nil
}

func (r *caseRepoPG) collect(rows pgx.Rows) ([]*Case, error) {
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *caseRepoPG) ListActive(ctx context.Context) ([]*Case, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+caseCols+` FROM clinical_case WHERE status = 'ACTIVE' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active cases: %w", err)
	}
	return r.collect(rows)
}

func (r *caseRepoPG) CountByStatus(ctx context.Context) (map[followup.CaseStatus]int, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT status, COUNT(*) FROM clinical_case GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}
	defer rows.Close()
	counts := map[followup.CaseStatus]int{}
	for rows.Next() {
		var (
			s followup.CaseStatus
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *caseRepoPG) Search(ctx context.Context, f SearchFilter) ([]*Case, int, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Query != "" {
		n := arg("%" + f.Query + "%")
		where = append(where, fmt.Sprintf(`EXISTS (SELECT 1 FROM patient p WHERE p.id = c.patient_id AND
			(p.uhid ILIKE %[1]s OR p.phone ILIKE %[1]s OR p.first_name ILIKE %[1]s OR p.last_name ILIKE %[1]s
			OR (p.first_name || ' ' || p.last_name) ILIKE %[1]s OR p.place ILIKE %[1]s))`, n))
	}
	if f.Status != "" {
		where = append(where, "c.status = "+arg(f.Status))
	}
	if f.Pathway != "" {
		where = append(where, "c.pathway = "+arg(f.Pathway))
	}
	var taskConds []string
	if f.Assignee != "" {
		taskConds = append(taskConds, "t.assignee_id = "+arg(f.Assignee))
	}
	if f.DueStart != nil {
		taskConds = append(taskConds, "t.due_date >= "+arg(followup.Day(*f.DueStart)))
	}
	if f.DueEnd != nil {
		taskConds = append(taskConds, "t.due_date <= "+arg(followup.Day(*f.DueEnd)))
	}
	if len(taskConds) > 0 {
		where = append(where, `EXISTS (SELECT 1 FROM task t WHERE t.case_id = c.id AND NOT t.superseded
			AND t.status = 'PENDING' AND `+strings.Join(taskConds, " AND ")+`)`)
	}
	clause := "TRUE"
	if len(where) > 0 {
		clause = strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM clinical_case c WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cases: %w", err)
	}
	limit, offset := arg(f.Limit), arg(f.Offset)
	rows, err := conn.Query(ctx, `SELECT `+prefixed("c", caseCols)+` FROM clinical_case c WHERE `+clause+
		` ORDER BY c.updated_at DESC, c.id LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search cases: %w", err)
	}
	items, err := r.collect(rows)
	return items, total, err
}

func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// -- Task --

type taskRepoPG struct{ pool *pgxpool.Pool }

func NewTaskRepoPG(pool *pgxpool.Pool) TaskRepository {
	return &taskRepoPG{pool: pool}
}

const taskCols = `id, case_id, kind, due_date, status, source, task_type, note, superseded,
	assignee_id, completed_at, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (followup.Task, error) {
	var t followup.Task
	err := row.Scan(&t.ID, &t.CaseID, &t.Kind, &t.DueDate, &t.Status, &t.Source, &t.Type, &t.Note,
		&t.Superseded, &t.AssigneeID, &t.CompletedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrTaskNotFound
	}
	return t, err
}

func (r *taskRepoPG) Create(ctx context.Context, t *followup.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO task (id, case_id, kind, due_date, status, source, task_type, note, superseded,
			assignee_id, completed_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		t.ID, t.CaseID, t.Kind, followup.Day(t.DueDate), t.Status, t.Source, t.Type, t.Note, t.Superseded,
		t.AssigneeID, t.CompletedAt, t.CreatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateTask
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *taskRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*followup.Task, error) {
	t, err := scanTask(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+taskCols+` FROM task WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Update writes the mutable columns. Kind and due date never change.
func (r *taskRepoPG) Update(ctx context.Context, t *followup.Task) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE task SET status=$2, note=$3, superseded=$4, assignee_id=$5, completed_at=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Status, t.Note, t.Superseded, t.AssigneeID, t.CompletedAt,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (r *taskRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]followup.Task, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var items []followup.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *taskRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID) ([]followup.Task, error) {
	return r.list(ctx, `SELECT `+taskCols+` FROM task WHERE case_id = $1 ORDER BY due_date, created_at`, caseID)
}

func (r *taskRepoPG) ListLiveByCases(ctx context.Context, caseIDs []uuid.UUID) ([]followup.Task, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+taskCols+` FROM task WHERE case_id = ANY($1) AND NOT superseded
		ORDER BY due_date, created_at`, caseIDs)
}
