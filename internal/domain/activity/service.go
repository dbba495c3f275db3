package activity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrEmptyNote = errors.New("activity note is required")

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends a case-level entry. It must run inside the caller's
// transaction so a failed write aborts the mutation it describes.
func (s *Service) Record(ctx context.Context, caseID uuid.UUID, actorID, note string, at time.Time) error {
	return s.append(ctx, &Entry{CaseID: caseID, ActorID: actorID, Note: note, CreatedAt: at})
}

// RecordTask appends an entry that also references a task.
func (s *Service) RecordTask(ctx context.Context, caseID, taskID uuid.UUID, actorID, note string, at time.Time) error {
	return s.append(ctx, &Entry{CaseID: caseID, TaskID: &taskID, ActorID: actorID, Note: note, CreatedAt: at})
}

func (s *Service) append(ctx context.Context, e *Entry) error {
	e.Note = strings.TrimSpace(e.Note)
	if e.Note == "" {
		return ErrEmptyNote
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return err
	}
	s.logger.Debug().Str("case_id", e.CaseID.String()).Str("actor", e.ActorID).Msg("activity recorded")
	return nil
}

func (s *Service) List(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByCase(ctx, caseID, limit, offset)
}
