package cases

import (
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/followup"
)

// CloseReason explains why a case left the active list.
type CloseReason string

const (
	CloseCompleted      CloseReason = "completed"
	CloseCancelled      CloseReason = "cancelled"
	CloseLossToFollowUp CloseReason = "loss_to_follow_up"
)

var validCloseReasons = map[CloseReason]bool{
	CloseCompleted:      true,
	CloseCancelled:      true,
	CloseLossToFollowUp: true,
}

// ObstetricHistory is the gravida/para/abortions/living record of an ANC case.
type ObstetricHistory struct {
	Gravida   int `json:"gravida"`
	Para      int `json:"para"`
	Abortions int `json:"abortions"`
	Living    int `json:"living"`
}

// Validate checks the counts are consistent with each other.
func (h ObstetricHistory) Validate() error {
	switch {
	case h.Gravida < 0 || h.Para < 0 || h.Abortions < 0 || h.Living < 0:
		return followup.Invalid("obstetric_history", "counts cannot be negative")
	case h.Para > h.Gravida:
		return followup.Invalid("para", "para cannot exceed gravida")
	case h.Abortions > h.Gravida:
		return followup.Invalid("abortions", "abortions cannot exceed gravida")
	case h.Para+h.Abortions > h.Gravida:
		return followup.Invalid("gravida", "para plus abortions cannot exceed gravida")
	}
	return nil
}

// Case maps to the clinical_case table. Fields holds the pathway-specific
// data and is serialised through followup.Envelope.
type Case struct {
	ID             uuid.UUID              `db:"id" json:"id"`
	PatientID      uuid.UUID              `db:"patient_id" json:"patient_id"`
	Pathway        followup.Pathway       `db:"pathway" json:"pathway"`
	Fields         followup.PathwayFields `db:"pathway_fields" json:"-"`
	Status         followup.CaseStatus    `db:"status" json:"status"`
	CloseReason    *CloseReason           `db:"close_reason" json:"close_reason,omitempty"`
	Diagnosis      string                 `db:"diagnosis" json:"diagnosis"`
	NCDFlags       []string               `db:"ncd_flags" json:"ncd_flags"`
	ReferredBy     string                 `db:"referred_by" json:"referred_by"`
	HighRisk       bool                   `db:"high_risk" json:"high_risk"`
	History        *ObstetricHistory      `json:"obstetric_history,omitempty"`
	Notes          string                 `db:"notes" json:"notes"`
	AwaitingReport *string                `db:"awaiting_report" json:"awaiting_report,omitempty"`
	CreatedBy      string                 `db:"created_by" json:"created_by"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at" json:"updated_at"`
}

// Engine returns the view of the case the derivation engine works on.
func (c *Case) Engine() followup.Case {
	return followup.Case{ID: c.ID, Status: c.Status, Fields: c.Fields}
}

// Awaiting reports whether the case waits on an external report.
func (c *Case) Awaiting() bool {
	return c.AwaitingReport != nil && *c.AwaitingReport != ""
}

// Details are the descriptive attributes editable without touching the schedule.
type Details struct {
	Diagnosis  string            `json:"diagnosis"`
	NCDFlags   []string          `json:"ncd_flags"`
	ReferredBy string            `json:"referred_by"`
	HighRisk   bool              `json:"high_risk"`
	History    *ObstetricHistory `json:"obstetric_history,omitempty"`
	Notes      string            `json:"notes"`
}

// SearchFilter narrows SearchCases. Zero values match everything.
type SearchFilter struct {
	Query    string
	Status   followup.CaseStatus
	Pathway  followup.Pathway
	Assignee string
	DueStart *time.Time
	DueEnd   *time.Time
	Limit    int
	Offset   int
}

// Result is a case together with its live tasks and bucket as of a date.
type Result struct {
	Case   *Case           `json:"case"`
	Tasks  []followup.Task `json:"tasks"`
	Bucket followup.Bucket `json:"bucket"`
}
