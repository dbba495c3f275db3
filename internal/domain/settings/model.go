package settings

import (
	"time"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

// RoleSetting maps to the role_setting table.
type RoleSetting struct {
	RoleName     string            `db:"role_name" json:"role_name" yaml:"role"`
	Capabilities []auth.Capability `db:"capabilities" json:"capabilities" yaml:"capabilities"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at" yaml:"-"`
}

// AdminRole always keeps manage_settings so settings stay editable.
const AdminRole = "Admin"

// DefaultRoleSettings are created on first start when missing.
func DefaultRoleSettings() []RoleSetting {
	return []RoleSetting{
		{RoleName: AdminRole, Capabilities: append([]auth.Capability(nil), auth.AllCapabilities...)},
		{RoleName: "Doctor", Capabilities: []auth.Capability{
			auth.CapCaseCreate, auth.CapCaseEdit, auth.CapTaskCreate, auth.CapTaskEdit, auth.CapNoteAdd,
		}},
		{RoleName: "Reception", Capabilities: []auth.Capability{
			auth.CapCaseCreate, auth.CapCaseEdit, auth.CapTaskCreate, auth.CapNoteAdd,
		}},
		{RoleName: "Nurse", Capabilities: []auth.Capability{auth.CapTaskEdit, auth.CapNoteAdd}},
		{RoleName: "Caller", Capabilities: []auth.Capability{auth.CapNoteAdd}},
	}
}
