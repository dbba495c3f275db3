package followup

import (
	"time"

	"github.com/google/uuid"
)

// Pathway is the clinical workflow a case follows.
type Pathway string

const (
	PathwayANC         Pathway = "ANC"
	PathwaySurgery     Pathway = "SURGERY"
	PathwayNonSurgical Pathway = "NON_SURGICAL"
)

var validPathways = map[Pathway]bool{
	PathwayANC:         true,
	PathwaySurgery:     true,
	PathwayNonSurgical: true,
}

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	CaseActive CaseStatus = "ACTIVE"
	CaseClosed CaseStatus = "CLOSED"
)

// TaskStatus is the state of a follow-up task.
type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskDone    TaskStatus = "DONE"
	TaskMissed  TaskStatus = "MISSED"
)

var validTaskStatuses = map[TaskStatus]bool{
	TaskPending: true,
	TaskDone:    true,
	TaskMissed:  true,
}

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool { return validTaskStatuses[s] }

// TaskSource records whether a task was generated from the pathway or added by a user.
type TaskSource string

const (
	SourcePathway TaskSource = "pathway"
	SourceManual  TaskSource = "manual"
)

// TaskType classifies the kind of work a task represents.
type TaskType string

const (
	TypeVisit     TaskType = "visit"
	TypeLab       TaskType = "lab"
	TypeProcedure TaskType = "procedure"
	TypeCall      TaskType = "call"
	TypeCustom    TaskType = "custom"
)

var validTaskTypes = map[TaskType]bool{
	TypeVisit:     true,
	TypeLab:       true,
	TypeProcedure: true,
	TypeCall:      true,
	TypeCustom:    true,
}

// ValidTaskType reports whether t is a known task type.
func ValidTaskType(t TaskType) bool { return validTaskTypes[t] }

// Task kinds generated by the engine.
const (
	KindPlannedSurgery     = "Planned surgery"
	KindSurveillanceReview = "Surveillance review"
	KindConsultantReview   = "Consultant review"
)

// Case is the engine's view of a case: identity, lifecycle and pathway fields.
type Case struct {
	ID     uuid.UUID
	Status CaseStatus
	Fields PathwayFields
}

// Pathway returns the pathway tag of the case's fields.
func (c Case) Pathway() Pathway {
	if c.Fields == nil {
		return ""
	}
	return c.Fields.Pathway()
}

// Task maps to the task table.
type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	CaseID      uuid.UUID  `db:"case_id" json:"case_id"`
	Kind        string     `db:"kind" json:"kind"`
	DueDate     time.Time  `db:"due_date" json:"due_date"`
	Status      TaskStatus `db:"status" json:"status"`
	Source      TaskSource `db:"source" json:"source"`
	Type        TaskType   `db:"task_type" json:"task_type"`
	Note        string     `db:"note" json:"note,omitempty"`
	Superseded  bool       `db:"superseded" json:"superseded"`
	AssigneeID  *string    `db:"assignee_id" json:"assignee_id,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Key identifies a task for idempotent derivation.
func (t Task) Key() TaskKey {
	return TaskKey{CaseID: t.CaseID, Kind: t.Kind, DueDate: Day(t.DueDate)}
}

// TaskKey is the (case, kind, due date) triple two derivations must agree on.
type TaskKey struct {
	CaseID  uuid.UUID
	Kind    string
	DueDate time.Time
}

// Plan is the outcome of a derivation: tasks to insert and pending tasks to supersede.
type Plan struct {
	Create    []Task
	Supersede []Task
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool { return len(p.Create) == 0 && len(p.Supersede) == 0 }

// Bucket is a dashboard classification label.
type Bucket string

const (
	BucketRed      Bucket = "RED"
	BucketOverdue  Bucket = "OVERDUE"
	BucketToday    Bucket = "TODAY"
	BucketAwaiting Bucket = "AWAITING"
	BucketUpcoming Bucket = "UPCOMING"
	BucketGrey     Bucket = "GREY"
)

// Buckets lists every bucket in classification priority order.
var Buckets = []Bucket{BucketRed, BucketOverdue, BucketToday, BucketAwaiting, BucketUpcoming, BucketGrey}
