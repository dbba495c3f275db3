package calllog

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of one call attempt.
type Outcome string

const (
	OutcomeConfirmedVisit Outcome = "ANSWERED_CONFIRMED_VISIT"
	OutcomeUncertain      Outcome = "ANSWERED_UNCERTAIN"
	OutcomeNoAnswer       Outcome = "NO_ANSWER"
	OutcomeSwitchedOff    Outcome = "SWITCHED_OFF"
	OutcomeRejected       Outcome = "CALL_REJECTED"
	OutcomeInvalidNumber  Outcome = "INVALID_NUMBER"
	OutcomeShifted        Outcome = "PATIENT_SHIFTED"
	OutcomeDeclined       Outcome = "DECLINED_FOLLOW_UP"
	OutcomeRude           Outcome = "RUDE_BEHAVIOR"
	OutcomeCallBackLater  Outcome = "CALL_BACK_LATER"
)

var outcomeLabels = map[Outcome]string{
	OutcomeConfirmedVisit: "Answered - confirmed visit",
	OutcomeUncertain:      "Answered - uncertain",
	OutcomeNoAnswer:       "No answer",
	OutcomeSwitchedOff:    "Switched off",
	OutcomeRejected:       "Call rejected",
	OutcomeInvalidNumber:  "Invalid number",
	OutcomeShifted:        "Patient shifted",
	OutcomeDeclined:       "Declined follow-up",
	OutcomeRude:           "Rude behavior",
	OutcomeCallBackLater:  "Call back later",
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	_, ok := outcomeLabels[o]
	return ok
}

// Label is the human readable outcome.
func (o Outcome) Label() string {
	if l, ok := outcomeLabels[o]; ok {
		return l
	}
	return string(o)
}

// Failed reports whether the attempt did not reach the patient.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeNoAnswer, OutcomeSwitchedOff, OutcomeRejected, OutcomeRude:
		return true
	}
	return false
}

// Log maps to the call_log table.
type Log struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	CaseID    uuid.UUID  `db:"case_id" json:"case_id"`
	TaskID    *uuid.UUID `db:"task_id" json:"task_id,omitempty"`
	Outcome   Outcome    `db:"outcome" json:"outcome"`
	Notes     string     `db:"notes" json:"notes"`
	StaffID   string     `db:"staff_id" json:"staff_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Status is the communication state derived from a case's call history.
type Status string

const (
	StatusNone           Status = "NONE"
	StatusConfirmed      Status = "CONFIRMED"
	StatusNotReachable   Status = "NOT_REACHABLE"
	StatusInvalidContact Status = "INVALID_CONTACT"
	StatusLost           Status = "LOST"
	StatusCallBackLater  Status = "CALL_BACK_LATER"
)

// Summary condenses the call history of one case.
type Summary struct {
	Status         Status     `json:"status"`
	FailedAttempts int        `json:"failed_attempts"`
	LastOutcome    *Outcome   `json:"last_outcome,omitempty"`
	LastCallAt     *time.Time `json:"last_call_at,omitempty"`
}
