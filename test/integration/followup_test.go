//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medtrack/medtrack/internal/domain/calllog"
	"github.com/medtrack/medtrack/internal/domain/cases"
	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/domain/settings"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

var admin = auth.SystemActor("integration")

func createTestPatient(t *testing.T, ctx context.Context, s *stack, name string) *patient.Patient {
	t.Helper()
	p := &patient.Patient{UHID: uniqueUHID("UH"), FirstName: name, Phone: "9876543210", Gender: patient.GenderFemale}
	if err := s.patients.CreatePatient(ctx, admin, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func pendingTasks(tasks []followup.Task) []followup.Task {
	var out []followup.Task
	for _, t := range tasks {
		if t.Status == followup.TaskPending && !t.Superseded {
			out = append(out, t)
		}
	}
	return out
}

func TestNonSurgicalLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	p := createTestPatient(t, ctx, s, "Lakshmi")
	asOf := followup.Date(2024, time.March, 1)

	c := &cases.Case{
		PatientID: p.ID,
		Fields:    followup.NonSurgicalFields{ReviewFrequencyDays: 30, FirstReviewDate: followup.Date(2024, time.March, 20)},
		Diagnosis: "Hypertension",
		NCDFlags:  []string{"htn"},
	}
	if err := s.cases.CreateCase(ctx, admin, c, asOf); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	t.Run("StarterTask", func(t *testing.T) {
		tasks, err := s.cases.ListTasks(ctx, c.ID, false)
		if err != nil {
			t.Fatal(err)
		}
		if len(tasks) != 1 || !tasks[0].DueDate.Equal(followup.Date(2024, time.March, 20)) {
			t.Fatalf("expected one review on 2024-03-20, got %+v", tasks)
		}
	})

	t.Run("SecondActiveCaseRejected", func(t *testing.T) {
		dup := &cases.Case{
			PatientID: p.ID,
			Fields:    followup.SurgeryFields{Mode: followup.SurgerySurveillance},
		}
		err := s.cases.CreateCase(ctx, admin, dup, asOf)
		if !errors.Is(err, cases.ErrActiveCaseExists) {
			t.Fatalf("expected ErrActiveCaseExists, got %v", err)
		}
	})

	t.Run("ClassifiedToday", func(t *testing.T) {
		res, err := s.cases.Classify(ctx, c.ID, followup.Date(2024, time.March, 20))
		if err != nil {
			t.Fatal(err)
		}
		if res.Bucket != followup.BucketToday {
			t.Errorf("expected TODAY, got %s", res.Bucket)
		}
	})

	t.Run("CompleteSchedulesNext", func(t *testing.T) {
		tasks, _ := s.cases.ListTasks(ctx, c.ID, false)
		if _, err := s.cases.CompleteTask(ctx, admin, tasks[0].ID, followup.Date(2024, time.March, 20)); err != nil {
			t.Fatalf("CompleteTask: %v", err)
		}
		tasks, err := s.cases.ListTasks(ctx, c.ID, false)
		if err != nil {
			t.Fatal(err)
		}
		pending := pendingTasks(tasks)
		if len(pending) != 1 || !pending[0].DueDate.Equal(followup.Date(2024, time.April, 19)) {
			t.Fatalf("expected next review on 2024-04-19, got %+v", pending)
		}
	})

	t.Run("PathwayChangeSupersedes", func(t *testing.T) {
		planned := followup.Date(2024, time.April, 10)
		_, plan, err := s.cases.UpdatePathway(ctx, admin, c.ID,
			followup.SurgeryFields{Mode: followup.SurgeryPlanned, PlannedDate: &planned}, followup.Date(2024, time.March, 21))
		if err != nil {
			t.Fatalf("UpdatePathway: %v", err)
		}
		if len(plan.Supersede) != 1 || len(plan.Create) != 1 {
			t.Fatalf("expected 1 superseded and 1 created, got %+v", plan)
		}

		all, err := s.cases.ListTasks(ctx, c.ID, true)
		if err != nil {
			t.Fatal(err)
		}
		var superseded int
		for _, task := range all {
			if task.Superseded {
				superseded++
				if task.Status != followup.TaskMissed {
					t.Errorf("superseded task should be MISSED, got %s", task.Status)
				}
			}
		}
		if superseded != 1 {
			t.Errorf("expected superseded task kept in history, got %d", superseded)
		}
	})

	t.Run("CallLogSummary", func(t *testing.T) {
		now := time.Date(2024, 3, 22, 10, 0, 0, 0, time.UTC)
		for _, o := range []calllog.Outcome{calllog.OutcomeNoAnswer, calllog.OutcomeSwitchedOff} {
			if err := s.calls.LogCall(ctx, admin, &calllog.Log{CaseID: c.ID, Outcome: o}, now); err != nil {
				t.Fatalf("LogCall: %v", err)
			}
			now = now.Add(time.Hour)
		}
		sum, err := s.calls.Summary(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if sum.FailedAttempts != 2 {
			t.Errorf("expected 2 failed attempts, got %d", sum.FailedAttempts)
		}
	})

	t.Run("ActivityTrail", func(t *testing.T) {
		entries, total, err := s.cases.ListActivity(ctx, c.ID, 50, 0)
		if err != nil {
			t.Fatal(err)
		}
		// created, completed, pathway changed, two calls
		if total != 5 || len(entries) != 5 {
			t.Errorf("expected 5 activity entries, got %d (total %d)", len(entries), total)
		}
	})

	t.Run("CloseAndReopen", func(t *testing.T) {
		closed, err := s.cases.CloseCase(ctx, admin, c.ID, cases.CloseCompleted, followup.Date(2024, time.March, 25))
		if err != nil {
			t.Fatalf("CloseCase: %v", err)
		}
		if closed.Status != followup.CaseClosed {
			t.Fatalf("expected CLOSED, got %s", closed.Status)
		}
		res, err := s.cases.Classify(ctx, c.ID, followup.Date(2024, time.April, 30))
		if err != nil {
			t.Fatal(err)
		}
		if res.Bucket != followup.BucketGrey {
			t.Errorf("closed case should be GREY, got %s", res.Bucket)
		}

		if _, err := s.cases.ReopenCase(ctx, admin, c.ID, followup.Date(2024, time.March, 26)); err != nil {
			t.Fatalf("ReopenCase: %v", err)
		}
	})
}

func TestANCRegistration(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	p := createTestPatient(t, ctx, s, "Meena")

	c := &cases.Case{
		PatientID: p.ID,
		Fields:    followup.ANCFields{LMP: followup.Date(2024, time.January, 1)},
		History:   &cases.ObstetricHistory{Gravida: 2, Para: 1, Living: 1},
	}
	asOf := followup.Date(2024, time.May, 1)
	if err := s.cases.CreateCase(ctx, admin, c, asOf); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	tasks, err := s.cases.ListTasks(ctx, c.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 milestone tasks, got %d", len(tasks))
	}
	// week 12 (2024-03-25) is past the grace window, week 20 (2024-05-20) is not.
	for _, task := range tasks {
		switch task.Kind {
		case "ANC checklist week 12":
			if task.Status != followup.TaskMissed {
				t.Errorf("week 12 should be MISSED, got %s", task.Status)
			}
		case "ANC checklist week 20":
			if task.Status != followup.TaskPending {
				t.Errorf("week 20 should be PENDING, got %s", task.Status)
			}
			if _, err := s.cases.CompleteTask(ctx, admin, task.ID, asOf); !followup.IsValidation(err) {
				t.Errorf("completing an ANC task early should fail validation, got %v", err)
			}
		}
	}

	fetched, err := s.cases.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.History == nil || fetched.History.Gravida != 2 {
		t.Errorf("obstetric history not persisted: %+v", fetched.History)
	}
	if _, ok := fetched.Fields.(followup.ANCFields); !ok {
		t.Errorf("expected ANC fields after reload, got %T", fetched.Fields)
	}
}

func TestDashboardIncludesCase(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	p := createTestPatient(t, ctx, s, "Radha")

	c := &cases.Case{
		PatientID: p.ID,
		Fields:    followup.NonSurgicalFields{ReviewFrequencyDays: 90, FirstReviewDate: followup.Date(2024, time.June, 3)},
		HighRisk:  true,
	}
	if err := s.cases.CreateCase(ctx, admin, c, followup.Date(2024, time.June, 1)); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	board, err := s.board.Build(ctx, followup.Date(2024, time.June, 1), -1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var found bool
	for _, card := range board.Section(followup.BucketUpcoming) {
		if card.CaseID == c.ID {
			found = true
			if card.PatientName != "Radha" || !card.HighRisk {
				t.Errorf("unexpected card %+v", card)
			}
		}
	}
	if !found {
		t.Error("case missing from the UPCOMING section")
	}
}

func TestRoleSettings(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	if err := s.settings.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	// idempotent
	if err := s.settings.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults twice: %v", err)
	}

	caps, err := s.settings.CapabilitiesFor(ctx, []string{"Caller", "Nurse"})
	if err != nil {
		t.Fatal(err)
	}
	if !caps.Has(auth.CapNoteAdd) || !caps.Has(auth.CapTaskEdit) || caps.Has(auth.CapCaseCreate) {
		t.Errorf("unexpected capabilities %v", caps.List())
	}

	err = s.settings.Update(ctx, admin, &settings.RoleSetting{RoleName: settings.AdminRole, Capabilities: []auth.Capability{auth.CapNoteAdd}})
	if !followup.IsValidation(err) {
		t.Errorf("Admin must keep manage_settings, got %v", err)
	}
}
