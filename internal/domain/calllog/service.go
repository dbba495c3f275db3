package calllog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/cases"
	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
)

// Recorder writes the activity entry that accompanies each call.
type Recorder interface {
	Record(ctx context.Context, caseID uuid.UUID, actorID, note string, at time.Time) error
	RecordTask(ctx context.Context, caseID, taskID uuid.UUID, actorID, note string, at time.Time) error
}

// CaseReader resolves the case and task a call refers to.
type CaseReader interface {
	GetCase(ctx context.Context, id uuid.UUID) (*cases.Case, error)
	ListTasks(ctx context.Context, caseID uuid.UUID, includeSuperseded bool) ([]followup.Task, error)
}

type Service struct {
	repo   Repository
	cases  CaseReader
	log    Recorder
	tx     db.Transactor
	logger zerolog.Logger
}

func NewService(repo Repository, cases CaseReader, log Recorder, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cases: cases, log: log, tx: tx, logger: logger}
}

// LogCall stores a call attempt and its activity entry atomically.
func (s *Service) LogCall(ctx context.Context, actor auth.Actor, l *Log, now time.Time) error {
	if err := actor.Require(auth.CapNoteAdd); err != nil {
		return err
	}
	l.Outcome = Outcome(strings.ToUpper(strings.TrimSpace(string(l.Outcome))))
	if !l.Outcome.Valid() {
		return followup.Invalid("outcome", "unknown call outcome %q", l.Outcome)
	}
	l.Notes = strings.TrimSpace(l.Notes)
	l.ID = uuid.New()
	l.StaffID = actor.ID
	l.CreatedAt = now.UTC()

	if _, err := s.cases.GetCase(ctx, l.CaseID); err != nil {
		return err
	}
	if l.TaskID != nil {
		tasks, err := s.cases.ListTasks(ctx, l.CaseID, true)
		if err != nil {
			return err
		}
		found := false
		for _, t := range tasks {
			if t.ID == *l.TaskID {
				found = true
				break
			}
		}
		if !found {
			return followup.Invalid("task_id", "task does not belong to this case")
		}
	}

	note := "Call: " + l.Outcome.Label()
	if l.Notes != "" {
		note = fmt.Sprintf("%s (%s)", note, l.Notes)
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, l); err != nil {
			return err
		}
		if l.TaskID != nil {
			return s.log.RecordTask(ctx, l.CaseID, *l.TaskID, actor.ID, note, l.CreatedAt)
		}
		return s.log.Record(ctx, l.CaseID, actor.ID, note, l.CreatedAt)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("case_id", l.CaseID.String()).Str("outcome", string(l.Outcome)).
		Str("actor", actor.ID).Msg("call logged")
	return nil
}

func (s *Service) List(ctx context.Context, caseID uuid.UUID) ([]Log, error) {
	if _, err := s.cases.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListByCase(ctx, caseID)
}

func (s *Service) Summary(ctx context.Context, caseID uuid.UUID) (Summary, error) {
	logs, err := s.List(ctx, caseID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(logs), nil
}

// Summaries returns a summary for every case id, including ones with no calls.
func (s *Service) Summaries(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID]Summary, error) {
	grouped, err := s.repo.ListByCases(ctx, caseIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Summary, len(caseIDs))
	for _, id := range caseIDs {
		out[id] = Summarize(grouped[id])
	}
	return out, nil
}
