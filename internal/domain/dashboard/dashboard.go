// Package dashboard groups active cases into classification buckets with
// the patient details staff need to act on them.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/calllog"
	"github.com/medtrack/medtrack/internal/domain/cases"
	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/domain/patient"
)

// CaseBoard supplies classified active cases.
type CaseBoard interface {
	Board(ctx context.Context, asOf time.Time) ([]cases.Result, error)
	Counts(ctx context.Context) (map[followup.CaseStatus]int, error)
	Policy() followup.Policy
}

type PatientLookup interface {
	GetPatients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*patient.Patient, error)
}

type CallSummaries interface {
	Summaries(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID]calllog.Summary, error)
}

// Card is one case on the dashboard.
type Card struct {
	CaseID         uuid.UUID           `json:"case_id"`
	PatientID      uuid.UUID           `json:"patient_id"`
	PatientName    string              `json:"patient_name"`
	UHID           string              `json:"uhid"`
	Phone          string              `json:"phone"`
	Pathway        followup.Pathway    `json:"pathway"`
	Gestation      *followup.Gestation `json:"gestation,omitempty"`
	Diagnosis      string              `json:"diagnosis"`
	ReferredBy     string              `json:"referred_by"`
	HighRisk       bool                `json:"high_risk"`
	NCDFlags       []string            `json:"ncd_flags"`
	TaskTitles     []string            `json:"task_titles"`
	NextDue        *time.Time          `json:"next_due,omitempty"`
	AwaitingReport *string             `json:"awaiting_report,omitempty"`
	Communication  calllog.Status      `json:"communication"`
	FailedCalls    int                 `json:"failed_calls"`
}

// Section holds the cards of one bucket.
type Section struct {
	Bucket followup.Bucket `json:"bucket"`
	Cards  []Card          `json:"cards"`
}

// Board is the dashboard as of one day.
type Board struct {
	AsOf          time.Time `json:"as_of"`
	LookaheadDays int       `json:"lookahead_days"`
	Sections      []Section `json:"sections"`
	ActiveCount   int       `json:"active_count"`
	ClosedCount   int       `json:"closed_count"`
}

// Section returns the cards of bucket b.
func (b *Board) Section(bucket followup.Bucket) []Card {
	for _, s := range b.Sections {
		if s.Bucket == bucket {
			return s.Cards
		}
	}
	return nil
}

type Builder struct {
	cases    CaseBoard
	patients PatientLookup
	calls    CallSummaries
	logger   zerolog.Logger
}

func NewBuilder(cases CaseBoard, patients PatientLookup, calls CallSummaries, logger zerolog.Logger) *Builder {
	return &Builder{cases: cases, patients: patients, calls: calls, logger: logger}
}

// Build classifies every active case as of asOf. A negative lookahead uses
// the configured policy value.
func (b *Builder) Build(ctx context.Context, asOf time.Time, lookahead int) (*Board, error) {
	asOf = followup.Day(asOf)
	policy := b.cases.Policy()
	if lookahead >= 0 {
		policy.LookaheadDays = lookahead
	}

	results, err := b.cases.Board(ctx, asOf)
	if err != nil {
		return nil, err
	}
	counts, err := b.cases.Counts(ctx)
	if err != nil {
		return nil, err
	}

	caseIDs := make([]uuid.UUID, len(results))
	patientIDs := make([]uuid.UUID, len(results))
	for i, r := range results {
		caseIDs[i] = r.Case.ID
		patientIDs[i] = r.Case.PatientID
	}
	patients, err := b.patients.GetPatients(ctx, patientIDs)
	if err != nil {
		return nil, err
	}
	summaries, err := b.calls.Summaries(ctx, caseIDs)
	if err != nil {
		return nil, err
	}

	grouped := make(map[followup.Bucket][]Card, len(followup.Buckets))
	for _, r := range results {
		bucket := followup.Classify(r.Case.Engine(), r.Tasks, asOf, r.Case.Awaiting(), policy)
		card := newCard(r, bucket, asOf, policy)
		if p := patients[r.Case.PatientID]; p != nil {
			card.PatientName, card.UHID, card.Phone = p.FullName(), p.UHID, p.Phone
		} else {
			b.logger.Warn().Str("case_id", r.Case.ID.String()).Msg("dashboard: patient missing for case")
		}
		sum := summaries[r.Case.ID]
		card.Communication, card.FailedCalls = sum.Status, sum.FailedAttempts
		grouped[bucket] = append(grouped[bucket], card)
	}

	board := &Board{
		AsOf:          asOf,
		LookaheadDays: policy.LookaheadDays,
		ActiveCount:   counts[followup.CaseActive],
		ClosedCount:   counts[followup.CaseClosed],
	}
	for _, bucket := range followup.Buckets {
		cards := grouped[bucket]
		sortCards(cards)
		if cards == nil {
			cards = []Card{}
		}
		board.Sections = append(board.Sections, Section{Bucket: bucket, Cards: cards})
	}
	return board, nil
}

// newCard lists the pending task titles that put the case in bucket.
func newCard(r cases.Result, bucket followup.Bucket, asOf time.Time, p followup.Policy) Card {
	c := r.Case
	card := Card{
		CaseID:         c.ID,
		PatientID:      c.PatientID,
		Pathway:        c.Pathway,
		Gestation:      followup.GestationOf(c.Fields, asOf),
		Diagnosis:      c.Diagnosis,
		ReferredBy:     c.ReferredBy,
		HighRisk:       c.HighRisk,
		NCDFlags:       c.NCDFlags,
		AwaitingReport: c.AwaitingReport,
		TaskTitles:     []string{},
	}
	if card.NCDFlags == nil {
		card.NCDFlags = []string{}
	}
	horizon := followup.AddDays(asOf, p.LookaheadDays)
	seen := map[string]bool{}
	for _, t := range r.Tasks {
		if t.Status != followup.TaskPending || t.Superseded {
			continue
		}
		due := followup.Day(t.DueDate)
		if card.NextDue == nil || due.Before(*card.NextDue) {
			d := due
			card.NextDue = &d
		}
		var relevant bool
		switch bucket {
		case followup.BucketRed, followup.BucketOverdue:
			relevant = due.Before(asOf)
		case followup.BucketToday:
			relevant = due.Equal(asOf)
		case followup.BucketUpcoming:
			relevant = due.After(asOf) && !due.After(horizon)
		}
		if relevant && !seen[t.Kind] {
			seen[t.Kind] = true
			card.TaskTitles = append(card.TaskTitles, t.Kind)
		}
	}
	return card
}

func sortCards(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		switch {
		case a.HighRisk != b.HighRisk:
			return a.HighRisk
		case a.NextDue != nil && b.NextDue != nil && !a.NextDue.Equal(*b.NextDue):
			return a.NextDue.Before(*b.NextDue)
		case (a.NextDue == nil) != (b.NextDue == nil):
			return a.NextDue != nil
		}
		return a.PatientName < b.PatientName
	})
}
