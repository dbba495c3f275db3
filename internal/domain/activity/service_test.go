package activity

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	entries []*Entry
	err     error
}

func (m *mockRepo) Append(_ context.Context, e *Entry) error {
	if m.err != nil {
		return m.err
	}
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) ListByCase(_ context.Context, caseID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var r []*Entry
	for _, e := range m.entries {
		if e.CaseID == caseID {
			r = append(r, e)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].CreatedAt.After(r[j].CreatedAt) })
	return r, len(r), nil
}

func TestRecord(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())
	caseID := uuid.New()
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	if err := svc.Record(context.Background(), caseID, "reception-1", "  Case created with 4 starter task(s) ", at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	e := repo.entries[0]
	if e.Note != "Case created with 4 starter task(s)" {
		t.Errorf("note not trimmed: %q", e.Note)
	}
	if e.TaskID != nil {
		t.Error("case-level entry must not reference a task")
	}
	if !e.CreatedAt.Equal(at) {
		t.Errorf("expected created_at %v, got %v", at, e.CreatedAt)
	}
}

func TestRecordTask(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())
	taskID := uuid.New()
	if err := svc.RecordTask(context.Background(), uuid.New(), taskID, "", "Task marked done", time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := repo.entries[0]
	if e.TaskID == nil || *e.TaskID != taskID {
		t.Errorf("expected task reference %s, got %v", taskID, e.TaskID)
	}
	if e.ActorID != "system" {
		t.Errorf("expected system actor, got %q", e.ActorID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("expected created_at default")
	}
}

func TestRecord_EmptyNote(t *testing.T) {
	svc := NewService(&mockRepo{}, zerolog.Nop())
	err := svc.Record(context.Background(), uuid.New(), "nurse", "   ", time.Now())
	if !errors.Is(err, ErrEmptyNote) {
		t.Errorf("expected ErrEmptyNote, got %v", err)
	}
}

func TestRecord_RepoFailurePropagates(t *testing.T) {
	want := errors.New("disk full")
	svc := NewService(&mockRepo{err: want}, zerolog.Nop())
	err := svc.Record(context.Background(), uuid.New(), "nurse", "note", time.Now())
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())
	caseID := uuid.New()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := svc.Record(context.Background(), caseID, "doc", "entry", base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	_ = svc.Record(context.Background(), uuid.New(), "doc", "other case", base)

	items, total, err := svc.List(context.Background(), caseID, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 entries, got %d", total)
	}
	if !items[0].CreatedAt.After(items[2].CreatedAt) {
		t.Error("expected newest first")
	}
}
