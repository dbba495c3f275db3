package activity

import (
	"time"

	"github.com/google/uuid"
)

// Entry maps to the activity_log table. Entries are never updated or deleted.
type Entry struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	CaseID    uuid.UUID  `db:"case_id" json:"case_id"`
	TaskID    *uuid.UUID `db:"task_id" json:"task_id,omitempty"`
	ActorID   string     `db:"actor_id" json:"actor_id"`
	Note      string     `db:"note" json:"note"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
