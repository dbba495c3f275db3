package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/activity"
	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
)

// ActivityLog records and lists case activity. Record and RecordTask are
// called with the transaction context of the mutation they describe.
type ActivityLog interface {
	Record(ctx context.Context, caseID uuid.UUID, actorID, note string, at time.Time) error
	RecordTask(ctx context.Context, caseID, taskID uuid.UUID, actorID, note string, at time.Time) error
	List(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*activity.Entry, int, error)
}

// PatientLookup resolves the patient a case belongs to.
type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	cases    CaseRepository
	tasks    TaskRepository
	tx       db.Transactor
	activity ActivityLog
	patients PatientLookup
	policy   followup.Policy
	logger   zerolog.Logger
}

func NewService(cases CaseRepository, tasks TaskRepository, tx db.Transactor, log ActivityLog,
	patients PatientLookup, policy followup.Policy, logger zerolog.Logger) *Service {
	return &Service{
		cases:    cases,
		tasks:    tasks,
		tx:       tx,
		activity: log,
		patients: patients,
		policy:   policy,
		logger:   logger,
	}
}

// Policy returns the derivation and classification constants in use.
func (s *Service) Policy() followup.Policy { return s.policy }

var errClosed = followup.Invalid("status", "case is closed")

func normalizeDetails(d *Details) error {
	d.Diagnosis = strings.TrimSpace(d.Diagnosis)
	d.ReferredBy = strings.TrimSpace(d.ReferredBy)
	d.Notes = strings.TrimSpace(d.Notes)
	flags := make([]string, 0, len(d.NCDFlags))
	seen := map[string]bool{}
	for _, f := range d.NCDFlags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		flags = append(flags, f)
	}
	d.NCDFlags = flags
	if len(d.Diagnosis) > 255 {
		return followup.Invalid("diagnosis", "diagnosis is longer than 255 characters")
	}
	if d.History != nil {
		return d.History.Validate()
	}
	return nil
}

func (c *Case) applyDetails(d Details) {
	c.Diagnosis = d.Diagnosis
	c.NCDFlags = d.NCDFlags
	c.ReferredBy = d.ReferredBy
	c.HighRisk = d.HighRisk
	c.History = d.History
	c.Notes = d.Notes
}

// applyPlan persists a derivation plan and returns the created tasks.
func (s *Service) applyPlan(ctx context.Context, actorID string, plan followup.Plan) ([]followup.Task, error) {
	for i := range plan.Supersede {
		if err := s.tasks.Update(ctx, &plan.Supersede[i]); err != nil {
			return nil, fmt.Errorf("supersede task %s: %w", plan.Supersede[i].ID, err)
		}
	}
	created := make([]followup.Task, 0, len(plan.Create))
	for _, t := range plan.Create {
		t.CreatedBy = actorID
		if err := s.tasks.Create(ctx, &t); err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	return created, nil
}

// rederive reconciles the stored tasks of c with its current fields.
func (s *Service) rederive(ctx context.Context, actorID string, c *Case, asOf time.Time) (followup.Plan, error) {
	existing, err := s.tasks.ListByCase(ctx, c.ID)
	if err != nil {
		return followup.Plan{}, err
	}
	plan, err := followup.Derive(c.Engine(), existing, asOf, s.policy)
	if err != nil {
		return followup.Plan{}, err
	}
	created, err := s.applyPlan(ctx, actorID, plan)
	if err != nil {
		return followup.Plan{}, err
	}
	plan.Create = created
	return plan, nil
}

func (s *Service) CreateCase(ctx context.Context, actor auth.Actor, c *Case, asOf time.Time) error {
	if err := actor.Require(auth.CapCaseCreate); err != nil {
		return err
	}
	if err := followup.ValidateFields(c.Fields); err != nil {
		return err
	}
	d := Details{Diagnosis: c.Diagnosis, NCDFlags: c.NCDFlags, ReferredBy: c.ReferredBy,
		HighRisk: c.HighRisk, History: c.History, Notes: c.Notes}
	if err := normalizeDetails(&d); err != nil {
		return err
	}
	c.applyDetails(d)
	if _, err := s.patients.GetPatient(ctx, c.PatientID); err != nil {
		return err
	}

	c.ID = uuid.New()
	c.Pathway = c.Fields.Pathway()
	c.Status = followup.CaseActive
	c.CloseReason = nil
	c.CreatedBy = actor.ID

	var plan followup.Plan
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.cases.ActiveForPatient(ctx, c.PatientID); err == nil {
			return ErrActiveCaseExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.cases.Create(ctx, c); err != nil {
			return err
		}
		var err error
		if plan, err = s.rederive(ctx, actor.ID, c, asOf); err != nil {
			return err
		}
		return s.activity.Record(ctx, c.ID, actor.ID,
			fmt.Sprintf("Case created on %s pathway with %d starter task(s)", c.Pathway, len(plan.Create)), asOf)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("case_id", c.ID.String()).Str("pathway", string(c.Pathway)).
		Int("tasks", len(plan.Create)).Str("actor", actor.ID).Msg("case created")
	return nil
}

// UpdatePathway replaces the pathway fields and reconciles the schedule in
// one transaction. The pathway itself may change.
func (s *Service) UpdatePathway(ctx context.Context, actor auth.Actor, id uuid.UUID, fields followup.PathwayFields, asOf time.Time) (*Case, followup.Plan, error) {
	if err := actor.Require(auth.CapCaseEdit); err != nil {
		return nil, followup.Plan{}, err
	}
	if err := followup.ValidateFields(fields); err != nil {
		return nil, followup.Plan{}, err
	}

	var (
		c    *Case
		plan followup.Plan
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.cases.GetByID(ctx, id); err != nil {
			return err
		}
		if c.Status == followup.CaseClosed {
			return errClosed
		}
		from := c.Pathway
		c.Fields = fields
		c.Pathway = fields.Pathway()
		if err := s.cases.Update(ctx, c); err != nil {
			return err
		}
		if plan, err = s.rederive(ctx, actor.ID, c, asOf); err != nil {
			return err
		}
		note := fmt.Sprintf("Pathway fields updated: %d task(s) superseded, %d created", len(plan.Supersede), len(plan.Create))
		if from != c.Pathway {
			note = fmt.Sprintf("Pathway changed from %s to %s: %d task(s) superseded, %d created",
				from, c.Pathway, len(plan.Supersede), len(plan.Create))
		}
		return s.activity.Record(ctx, c.ID, actor.ID, note, asOf)
	})
	if err != nil {
		return nil, followup.Plan{}, err
	}
	s.logger.Info().Str("case_id", id.String()).Int("superseded", len(plan.Supersede)).
		Int("created", len(plan.Create)).Str("actor", actor.ID).Msg("case pathway updated")
	return c, plan, nil
}

func (s *Service) UpdateDetails(ctx context.Context, actor auth.Actor, id uuid.UUID, d Details, now time.Time) (*Case, error) {
	if err := actor.Require(auth.CapCaseEdit); err != nil {
		return nil, err
	}
	if err := normalizeDetails(&d); err != nil {
		return nil, err
	}
	var c *Case
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.cases.GetByID(ctx, id); err != nil {
			return err
		}
		c.applyDetails(d)
		if err := s.cases.Update(ctx, c); err != nil {
			return err
		}
		return s.activity.Record(ctx, c.ID, actor.ID, "Case details updated", now)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) CloseCase(ctx context.Context, actor auth.Actor, id uuid.UUID, reason CloseReason, now time.Time) (*Case, error) {
	if err := actor.Require(auth.CapCaseEdit); err != nil {
		return nil, err
	}
	if !validCloseReasons[reason] {
		return nil, followup.Invalid("reason", "unknown close reason %q", reason)
	}
	var c *Case
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.cases.GetByID(ctx, id); err != nil {
			return err
		}
		if c.Status == followup.CaseClosed {
			return followup.Invalid("status", "case is already closed")
		}
		c.Status = followup.CaseClosed
		c.CloseReason = &reason
		if err := s.cases.Update(ctx, c); err != nil {
			return err
		}
		return s.activity.Record(ctx, c.ID, actor.ID,
			fmt.Sprintf("Status changed from %s to %s (%s)", followup.CaseActive, followup.CaseClosed, reason), now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("case_id", id.String()).Str("reason", string(reason)).Str("actor", actor.ID).Msg("case closed")
	return c, nil
}

// ReopenCase reactivates a closed case and schedules anything it now needs.
func (s *Service) ReopenCase(ctx context.Context, actor auth.Actor, id uuid.UUID, asOf time.Time) (*Case, error) {
	if err := actor.Require(auth.CapCaseEdit); err != nil {
		return nil, err
	}
	var c *Case
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.cases.GetByID(ctx, id); err != nil {
			return err
		}
		if c.Status != followup.CaseClosed {
			return followup.Invalid("status", "only closed cases can be reopened")
		}
		if _, err := s.cases.ActiveForPatient(ctx, c.PatientID); err == nil {
			return ErrActiveCaseExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		c.Status = followup.CaseActive
		c.CloseReason = nil
		if err := s.cases.Update(ctx, c); err != nil {
			return err
		}
		plan, err := s.rederive(ctx, actor.ID, c, asOf)
		if err != nil {
			return err
		}
		return s.activity.Record(ctx, c.ID, actor.ID,
			fmt.Sprintf("Status changed from %s to %s, %d task(s) created", followup.CaseClosed, followup.CaseActive, len(plan.Create)), asOf)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetAwaiting records or clears the external report a case waits on.
func (s *Service) SetAwaiting(ctx context.Context, actor auth.Actor, id uuid.UUID, report *string, now time.Time) (*Case, error) {
	if err := actor.Require(auth.CapCaseEdit); err != nil {
		return nil, err
	}
	if report != nil {
		r := strings.TrimSpace(*report)
		report = &r
		if r == "" {
			report = nil
		}
	}
	var c *Case
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.cases.GetByID(ctx, id); err != nil {
			return err
		}
		c.AwaitingReport = report
		if err := s.cases.Update(ctx, c); err != nil {
			return err
		}
		note := "Awaiting report cleared"
		if report != nil {
			note = "Awaiting report: " + *report
		}
		return s.activity.Record(ctx, c.ID, actor.ID, note, now)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AddTask creates a manual task. Derivation never supersedes manual tasks.
func (s *Service) AddTask(ctx context.Context, actor auth.Actor, caseID uuid.UUID, t *followup.Task, now time.Time) error {
	if err := actor.Require(auth.CapTaskCreate); err != nil {
		return err
	}
	t.Kind = strings.TrimSpace(t.Kind)
	if t.Kind == "" {
		return followup.Invalid("kind", "task kind is required")
	}
	if t.DueDate.IsZero() {
		return followup.Invalid("due_date", "due date is required")
	}
	if t.Type == "" {
		t.Type = followup.TypeCustom
	}
	if !followup.ValidTaskType(t.Type) {
		return followup.Invalid("task_type", "unknown task type %q", t.Type)
	}
	t.ID = uuid.Nil
	t.CaseID = caseID
	t.DueDate = followup.Day(t.DueDate)
	t.Status = followup.TaskPending
	t.Source = followup.SourceManual
	t.Superseded = false
	t.CompletedAt = nil
	t.CreatedBy = actor.ID

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.cases.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status == followup.CaseClosed {
			return errClosed
		}
		if err := s.tasks.Create(ctx, t); err != nil {
			return err
		}
		return s.activity.RecordTask(ctx, caseID, t.ID, actor.ID,
			fmt.Sprintf("Task added: %s due %s", t.Kind, t.DueDate.Format(followup.DateLayout)), now)
	})
}

// taskTransition loads a pending task and its active case, applies mutate,
// persists it, re-derives the schedule and records note.
func (s *Service) taskTransition(ctx context.Context, actor auth.Actor, taskID uuid.UUID, now time.Time,
	check func(c *Case, t *followup.Task) error, mutate func(t *followup.Task), note func(t *followup.Task) string) (*followup.Task, error) {
	if err := actor.Require(auth.CapTaskEdit); err != nil {
		return nil, err
	}
	var t *followup.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = s.tasks.GetByID(ctx, taskID); err != nil {
			return err
		}
		if t.Superseded {
			return followup.Invalid("status", "superseded tasks cannot be changed")
		}
		c, err := s.cases.GetByID(ctx, t.CaseID)
		if err != nil {
			return err
		}
		if c.Status == followup.CaseClosed {
			return errClosed
		}
		if err := check(c, t); err != nil {
			return err
		}
		mutate(t)
		if err := s.tasks.Update(ctx, t); err != nil {
			return err
		}
		if _, err := s.rederive(ctx, actor.ID, c, now); err != nil {
			return err
		}
		return s.activity.RecordTask(ctx, c.ID, t.ID, actor.ID, note(t), now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("task_id", taskID.String()).Str("status", string(t.Status)).Str("actor", actor.ID).Msg("task updated")
	return t, nil
}

// CompleteTask marks a task done. Recurring pathways schedule their next
// occurrence in the same transaction.
func (s *Service) CompleteTask(ctx context.Context, actor auth.Actor, taskID uuid.UUID, now time.Time) (*followup.Task, error) {
	return s.taskTransition(ctx, actor, taskID, now,
		func(c *Case, t *followup.Task) error { return followup.CheckCompletion(c.Engine(), *t, now) },
		func(t *followup.Task) {
			at := now.UTC()
			t.Status = followup.TaskDone
			t.CompletedAt = &at
		},
		func(t *followup.Task) string { return "Task completed: " + t.Kind })
}

// MissTask marks a pending task missed.
func (s *Service) MissTask(ctx context.Context, actor auth.Actor, taskID uuid.UUID, note string, now time.Time) (*followup.Task, error) {
	note = strings.TrimSpace(note)
	return s.taskTransition(ctx, actor, taskID, now,
		func(_ *Case, t *followup.Task) error {
			if t.Status != followup.TaskPending {
				return followup.Invalid("status", "only pending tasks can be marked missed, task is %s", t.Status)
			}
			return nil
		},
		func(t *followup.Task) {
			t.Status = followup.TaskMissed
			if note != "" {
				if t.Note != "" {
					t.Note += " | "
				}
				t.Note += note
			}
		},
		func(t *followup.Task) string {
			if note != "" {
				return fmt.Sprintf("Task missed: %s (%s)", t.Kind, note)
			}
			return "Task missed: " + t.Kind
		})
}

// AddNote appends a free-text note to the case, optionally against one of its tasks.
func (s *Service) AddNote(ctx context.Context, actor auth.Actor, caseID uuid.UUID, taskID *uuid.UUID, note string, now time.Time) error {
	if err := actor.Require(auth.CapNoteAdd); err != nil {
		return err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return followup.Invalid("note", "note is required")
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.cases.GetByID(ctx, caseID); err != nil {
			return err
		}
		if taskID == nil {
			return s.activity.Record(ctx, caseID, actor.ID, note, now)
		}
		t, err := s.tasks.GetByID(ctx, *taskID)
		if err != nil {
			return err
		}
		if t.CaseID != caseID {
			return followup.Invalid("task_id", "task does not belong to this case")
		}
		return s.activity.RecordTask(ctx, caseID, t.ID, actor.ID, note, now)
	})
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.cases.GetByID(ctx, id)
}

// ListTasks returns the tasks of a case ordered by due date. Superseded
// tasks are included only when asked for.
func (s *Service) ListTasks(ctx context.Context, caseID uuid.UUID, includeSuperseded bool) ([]followup.Task, error) {
	if _, err := s.cases.GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	all, err := s.tasks.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if includeSuperseded {
		return all, nil
	}
	live := make([]followup.Task, 0, len(all))
	for _, t := range all {
		if !t.Superseded {
			live = append(live, t)
		}
	}
	return live, nil
}

func (s *Service) ListActivity(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*activity.Entry, int, error) {
	if _, err := s.cases.GetByID(ctx, caseID); err != nil {
		return nil, 0, err
	}
	return s.activity.List(ctx, caseID, limit, offset)
}

func (s *Service) SearchCases(ctx context.Context, f SearchFilter) ([]*Case, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	if f.Status != "" && f.Status != followup.CaseActive && f.Status != followup.CaseClosed {
		return nil, 0, followup.Invalid("status", "unknown case status %q", f.Status)
	}
	if f.DueStart != nil && f.DueEnd != nil && f.DueEnd.Before(*f.DueStart) {
		return nil, 0, followup.Invalid("due_end", "due_end is before due_start")
	}
	return s.cases.Search(ctx, f)
}

// Classify returns the case, its live tasks and its dashboard bucket as of asOf.
func (s *Service) Classify(ctx context.Context, id uuid.UUID, asOf time.Time) (*Result, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListLiveByCases(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	return &Result{
		Case:   c,
		Tasks:  tasks,
		Bucket: followup.Classify(c.Engine(), tasks, asOf, c.Awaiting(), s.policy),
	}, nil
}

// Board classifies every active case as of asOf.
func (s *Service) Board(ctx context.Context, asOf time.Time) ([]Result, error) {
	active, err := s.cases.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(active))
	for i, c := range active {
		ids[i] = c.ID
	}
	tasks, err := s.tasks.ListLiveByCases(ctx, ids)
	if err != nil {
		return nil, err
	}
	byCase := make(map[uuid.UUID][]followup.Task, len(active))
	for _, t := range tasks {
		byCase[t.CaseID] = append(byCase[t.CaseID], t)
	}
	out := make([]Result, 0, len(active))
	for _, c := range active {
		ts := byCase[c.ID]
		out = append(out, Result{
			Case:   c,
			Tasks:  ts,
			Bucket: followup.Classify(c.Engine(), ts, asOf, c.Awaiting(), s.policy),
		})
	}
	return out, nil
}

// Counts returns the number of cases per status.
func (s *Service) Counts(ctx context.Context) (map[followup.CaseStatus]int, error) {
	return s.cases.CountByStatus(ctx)
}
