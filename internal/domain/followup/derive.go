package followup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GestationalWeeks returns the completed weeks between lmp and asOf, floored at zero.
func GestationalWeeks(lmp, asOf time.Time) int {
	days := DaysBetween(lmp, asOf)
	if days < 0 {
		return 0
	}
	return days / 7
}

// Trimester maps gestational age to 1 (weeks up to 13), 2 (14-27) or 3 (28+).
func Trimester(lmp, asOf time.Time) int {
	switch w := GestationalWeeks(lmp, asOf); {
	case w <= 13:
		return 1
	case w <= 27:
		return 2
	default:
		return 3
	}
}

// EstimatedDueDate is LMP + 280 days.
func EstimatedDueDate(lmp time.Time) time.Time {
	return AddDays(lmp, 280)
}

// Derive computes the tasks a case requires as of asOf given the tasks that
// already exist for it. Tasks whose (case, kind, due date) triple already
// exists are never recreated, so calling Derive again on an unchanged case
// returns an empty plan. Pending pathway tasks the current fields no longer
// call for are returned in Supersede, already marked Missed. A one-off
// pathway task (an ANC milestone, a pre-op item or the surgery itself) that
// is already Done satisfies its kind and is not scheduled again.
func Derive(c Case, existing []Task, asOf time.Time, p Policy) (Plan, error) {
	if err := ValidateFields(c.Fields); err != nil {
		return Plan{}, err
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	if c.Status == CaseClosed {
		return Plan{}, nil
	}
	asOf = Day(asOf)

	live := make([]Task, 0, len(existing))
	for _, t := range existing {
		if t.CaseID == c.ID && !t.Superseded {
			live = append(live, t)
		}
	}

	var (
		desired []Task
		oneOff  bool
	)
	switch f := c.Fields.(type) {
	case ANCFields:
		desired, oneOff = deriveANC(c.ID, f, asOf, p), true
	case SurgeryFields:
		if f.Mode == SurgeryPlanned {
			desired, oneOff = derivePlannedSurgery(c.ID, f, p), true
		} else {
			first := AddDays(asOf, p.SurveillanceIntervalDays)
			if f.ReviewDate != nil {
				first = Day(*f.ReviewDate)
			} else if due, ok := pendingDue(live, KindSurveillanceReview); ok {
				// Without a review date the default start moves with asOf.
				first = due
			}
			desired = []Task{nextInSeries(c.ID, KindSurveillanceReview, TypeVisit, live, first, p.SurveillanceIntervalDays)}
		}
	case NonSurgicalFields:
		desired = []Task{nextInSeries(c.ID, KindConsultantReview, TypeCustom, live, Day(f.FirstReviewDate), f.ReviewFrequencyDays)}
	default:
		return Plan{}, fmt.Errorf("derive: unsupported pathway fields %T", c.Fields)
	}

	return reconcile(desired, live, asOf, oneOff), nil
}

func deriveANC(caseID uuid.UUID, f ANCFields, asOf time.Time, p Policy) []Task {
	graceStart := AddDays(asOf, -p.ANCGraceDays)
	var out []Task
	for _, m := range p.sortedMilestones() {
		due := AddDays(f.LMP, m.Week*7)
		t := Task{
			CaseID:  caseID,
			Kind:    m.Kind(),
			DueDate: due,
			Status:  TaskPending,
			Source:  SourcePathway,
			Type:    TypeVisit,
			Note:    strings.Join(m.Items, "; "),
		}
		if due.Before(graceStart) {
			t.Status = TaskMissed
			t.Note = joinNote(t.Note, "milestone date had already passed when it was scheduled")
		}
		out = append(out, t)
	}
	return out
}

func derivePlannedSurgery(caseID uuid.UUID, f SurgeryFields, p Policy) []Task {
	planned := Day(*f.PlannedDate)
	out := make([]Task, 0, len(p.PreOpTasks)+1)
	for _, pre := range p.PreOpTasks {
		typ := pre.Type
		if typ == "" {
			typ = TypeCustom
		}
		out = append(out, Task{
			CaseID:  caseID,
			Kind:    pre.Kind,
			DueDate: AddDays(planned, -pre.DaysBefore),
			Status:  TaskPending,
			Source:  SourcePathway,
			Type:    typ,
			Note:    "Pre-op",
		})
	}
	return append(out, Task{
		CaseID:  caseID,
		Kind:    KindPlannedSurgery,
		DueDate: planned,
		Status:  TaskPending,
		Source:  SourcePathway,
		Type:    TypeProcedure,
	})
}

// nextInSeries returns the single pending task of a recurring series. The
// series starts at first; once its latest task is resolved (Done or Missed)
// the next one is due interval days after that task's due date.
func nextInSeries(caseID uuid.UUID, kind string, typ TaskType, live []Task, first time.Time, interval int) Task {
	due := first
	var latest *Task
	for i := range live {
		t := &live[i]
		if t.Kind != kind || t.Source != SourcePathway || t.Status == TaskPending {
			continue
		}
		if latest == nil || t.DueDate.After(latest.DueDate) {
			latest = t
		}
	}
	if latest != nil {
		due = AddDays(latest.DueDate, interval)
	}
	return Task{
		CaseID:  caseID,
		Kind:    kind,
		DueDate: due,
		Status:  TaskPending,
		Source:  SourcePathway,
		Type:    typ,
		Note:    fmt.Sprintf("Every %d days", interval),
	}
}

func pendingDue(live []Task, kind string) (time.Time, bool) {
	for _, t := range live {
		if t.Kind == kind && t.Source == SourcePathway && t.Status == TaskPending {
			return Day(t.DueDate), true
		}
	}
	return time.Time{}, false
}

func reconcile(desired, live []Task, asOf time.Time, oneOff bool) Plan {
	have := make(map[TaskKey]bool, len(live))
	done := make(map[string]bool)
	for _, t := range live {
		have[t.Key()] = true
		if oneOff && t.Source == SourcePathway && t.Status == TaskDone {
			done[t.Kind] = true
		}
	}
	want := make(map[TaskKey]bool, len(desired))

	var plan Plan
	for _, d := range desired {
		d.DueDate = Day(d.DueDate)
		k := d.Key()
		if want[k] || (done[d.Kind] && !have[k]) {
			continue
		}
		want[k] = true
		if !have[k] {
			plan.Create = append(plan.Create, d)
		}
	}

	for _, t := range live {
		if t.Source != SourcePathway || t.Status != TaskPending || want[t.Key()] {
			continue
		}
		t.Status = TaskMissed
		t.Superseded = true
		t.Note = joinNote(t.Note, fmt.Sprintf("superseded on %s after pathway fields changed", asOf.Format(DateLayout)))
		plan.Supersede = append(plan.Supersede, t)
	}

	sort.SliceStable(plan.Create, func(i, j int) bool {
		return plan.Create[i].DueDate.Before(plan.Create[j].DueDate)
	})
	return plan
}

// CheckCompletion rejects completing an ANC task before its due date.
func CheckCompletion(c Case, t Task, asOf time.Time) error {
	if t.Status != TaskPending {
		return Invalid("status", "only pending tasks can be completed, task is %s", t.Status)
	}
	if c.Pathway() == PathwayANC && Day(t.DueDate).After(Day(asOf)) {
		return Invalid("status", "ANC tasks cannot be completed before their scheduled due date")
	}
	return nil
}

func joinNote(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " | " + b
}
