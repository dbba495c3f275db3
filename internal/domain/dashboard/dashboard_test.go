package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/medtrack/internal/domain/calllog"
	"github.com/medtrack/medtrack/internal/domain/cases"
	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/domain/patient"
)

type fakeBoard struct {
	cases []*cases.Case
	tasks []followup.Task
}

func (f *fakeBoard) Policy() followup.Policy { return followup.DefaultPolicy() }

func (f *fakeBoard) Board(_ context.Context, asOf time.Time) ([]cases.Result, error) {
	var out []cases.Result
	for _, c := range f.cases {
		if c.Status != followup.CaseActive {
			continue
		}
		var ts []followup.Task
		for _, t := range f.tasks {
			if t.CaseID == c.ID {
				ts = append(ts, t)
			}
		}
		out = append(out, cases.Result{Case: c, Tasks: ts,
			Bucket: followup.Classify(c.Engine(), ts, asOf, c.Awaiting(), f.Policy())})
	}
	return out, nil
}

func (f *fakeBoard) Counts(context.Context) (map[followup.CaseStatus]int, error) {
	counts := map[followup.CaseStatus]int{}
	for _, c := range f.cases {
		counts[c.Status]++
	}
	return counts, nil
}

type fakePatients map[uuid.UUID]*patient.Patient

func (f fakePatients) GetPatients(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*patient.Patient, error) {
	out := map[uuid.UUID]*patient.Patient{}
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeCalls map[uuid.UUID]calllog.Summary

func (f fakeCalls) Summaries(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]calllog.Summary, error) {
	out := map[uuid.UUID]calllog.Summary{}
	for _, id := range ids {
		s, ok := f[id]
		if !ok {
			s = calllog.Summary{Status: calllog.StatusNone}
		}
		out[id] = s
	}
	return out, nil
}

var asOf = followup.Date(2024, time.March, 20)

type fixture struct {
	builder  *Builder
	board    *fakeBoard
	patients fakePatients
	calls    fakeCalls
}

func newFixture() *fixture {
	f := &fixture{board: &fakeBoard{}, patients: fakePatients{}, calls: fakeCalls{}}
	f.builder = NewBuilder(f.board, f.patients, f.calls, zerolog.Nop())
	return f
}

func (f *fixture) addCase(name string, highRisk bool, dues ...time.Time) *cases.Case {
	pid := uuid.New()
	f.patients[pid] = &patient.Patient{ID: pid, UHID: "UH-" + name, FirstName: name, Phone: "9000000000"}
	c := &cases.Case{
		ID: uuid.New(), PatientID: pid, Pathway: followup.PathwayNonSurgical, Status: followup.CaseActive,
		Fields:   followup.NonSurgicalFields{ReviewFrequencyDays: 30, FirstReviewDate: asOf},
		HighRisk: highRisk, Diagnosis: "HTN",
	}
	f.board.cases = append(f.board.cases, c)
	for i, d := range dues {
		f.board.tasks = append(f.board.tasks, followup.Task{
			ID: uuid.New(), CaseID: c.ID, Kind: "Review " + string(rune('A'+i)), DueDate: d, Status: followup.TaskPending,
		})
	}
	return c
}

func TestBuild_Sections(t *testing.T) {
	f := newFixture()
	red := f.addCase("Ravi", false, followup.Date(2024, time.March, 1))
	today := f.addCase("Tara", false, asOf, followup.Date(2024, time.March, 25))
	upcoming := f.addCase("Uma", false, followup.Date(2024, time.March, 25))
	grey := f.addCase("Gita", false, followup.Date(2024, time.June, 1))
	closed := f.addCase("Chandra", false, asOf)
	closed.Status = followup.CaseClosed
	f.calls[red.ID] = calllog.Summary{Status: calllog.StatusNotReachable, FailedAttempts: 3}

	b, err := f.builder.Build(context.Background(), asOf, -1)
	require.NoError(t, err)
	require.Len(t, b.Sections, len(followup.Buckets))
	assert.Equal(t, 4, b.ActiveCount)
	assert.Equal(t, 1, b.ClosedCount)
	assert.Equal(t, 7, b.LookaheadDays)

	require.Len(t, b.Section(followup.BucketRed), 1)
	r := b.Section(followup.BucketRed)[0]
	assert.Equal(t, red.ID, r.CaseID)
	assert.Equal(t, "Ravi", r.PatientName)
	assert.Equal(t, calllog.StatusNotReachable, r.Communication)
	assert.Equal(t, 3, r.FailedCalls)
	assert.Equal(t, []string{"Review A"}, r.TaskTitles)

	require.Len(t, b.Section(followup.BucketToday), 1)
	td := b.Section(followup.BucketToday)[0]
	assert.Equal(t, today.ID, td.CaseID)
	assert.Equal(t, []string{"Review A"}, td.TaskTitles, "only tasks due today are listed")

	require.Len(t, b.Section(followup.BucketUpcoming), 1)
	assert.Equal(t, upcoming.ID, b.Section(followup.BucketUpcoming)[0].CaseID)
	require.Len(t, b.Section(followup.BucketGrey), 1)
	assert.Equal(t, grey.ID, b.Section(followup.BucketGrey)[0].CaseID)
	assert.Empty(t, b.Section(followup.BucketGrey)[0].TaskTitles)
	assert.NotNil(t, b.Section(followup.BucketOverdue))
}

func TestBuild_LookaheadOverride(t *testing.T) {
	f := newFixture()
	f.addCase("Gita", false, followup.Date(2024, time.April, 15))

	b, err := f.builder.Build(context.Background(), asOf, -1)
	require.NoError(t, err)
	assert.Len(t, b.Section(followup.BucketGrey), 1)

	b, err = f.builder.Build(context.Background(), asOf, 30)
	require.NoError(t, err)
	assert.Len(t, b.Section(followup.BucketUpcoming), 1)
	assert.Equal(t, 30, b.LookaheadDays)
}

func TestBuild_HighRiskFirst(t *testing.T) {
	f := newFixture()
	f.addCase("Anu", false, followup.Date(2024, time.March, 18))
	f.addCase("Bina", true, followup.Date(2024, time.March, 19))
	f.addCase("Chitra", false, followup.Date(2024, time.March, 17))

	b, err := f.builder.Build(context.Background(), asOf, -1)
	require.NoError(t, err)
	cards := b.Section(followup.BucketOverdue)
	require.Len(t, cards, 3)
	assert.Equal(t, "Bina", cards[0].PatientName)
	assert.Equal(t, "Chitra", cards[1].PatientName)
	assert.Equal(t, "Anu", cards[2].PatientName)
}

func TestBuild_AwaitingCard(t *testing.T) {
	f := newFixture()
	c := f.addCase("Asha", false)
	report := "Biopsy"
	c.AwaitingReport = &report

	b, err := f.builder.Build(context.Background(), asOf, -1)
	require.NoError(t, err)
	cards := b.Section(followup.BucketAwaiting)
	require.Len(t, cards, 1)
	require.NotNil(t, cards[0].AwaitingReport)
	assert.Nil(t, cards[0].NextDue)
}

func TestBuild_ANCCardCarriesGestation(t *testing.T) {
	f := newFixture()
	c := f.addCase("Meena", false, followup.Date(2024, time.March, 25))
	c.Pathway = followup.PathwayANC
	c.Fields = followup.ANCFields{LMP: followup.Date(2024, time.January, 1)}
	other := f.addCase("Ravi", false, followup.Date(2024, time.March, 25))

	b, err := f.builder.Build(context.Background(), asOf, -1)
	require.NoError(t, err)
	cards := b.Section(followup.BucketUpcoming)
	require.Len(t, cards, 2)
	for _, card := range cards {
		if card.CaseID == other.ID {
			assert.Nil(t, card.Gestation)
			continue
		}
		require.NotNil(t, card.Gestation)
		assert.Equal(t, followup.Gestation{Weeks: 11, Trimester: 1, EDD: "2024-10-07"}, *card.Gestation)
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, b))
	assert.Contains(t, buf.String(), "ANC wk 11 T1")
}

func TestRender(t *testing.T) {
	f := newFixture()
	f.addCase("Ravi", true, followup.Date(2024, time.March, 1))
	b, err := f.builder.Build(context.Background(), asOf, -1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, b))
	out := buf.String()
	assert.Contains(t, out, "2024-03-20")
	assert.Contains(t, out, "RED (1)")
	assert.Contains(t, out, "Ravi !")
	assert.NotContains(t, out, "TODAY (")

	buf.Reset()
	empty, err := newFixture().builder.Build(context.Background(), asOf, -1)
	require.NoError(t, err)
	require.NoError(t, Render(&buf, empty))
	assert.Contains(t, buf.String(), "No active cases.")
}

func TestHandler_Get(t *testing.T) {
	f := newFixture()
	f.addCase("Ravi", false, followup.Date(2024, time.March, 25))
	e := echo.New()
	NewHandler(f.builder, func() time.Time { return asOf }).RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var b Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Len(t, b.Section(followup.BucketUpcoming), 1)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard?as_of=2024-03-25", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"bucket":"TODAY","cards":[{`))

	for _, q := range []string{"?lookahead=-2", "?lookahead=x", "?as_of=yesterday"} {
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}
