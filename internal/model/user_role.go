package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Role is a {user, tenant}-scoped permission grant.
type Role string

const (
	RoleSuperAdmin       Role = "SUPER_ADMIN"
	RoleCountyAdmin      Role = "COUNTY_ADMIN"
	RoleCountyOfficer    Role = "COUNTY_OFFICER"
	RoleCooperativeAdmin Role = "COOPERATIVE_ADMIN"
	RoleAuditor          Role = "AUDITOR"
	RoleTrainer          Role = "TRAINER"
	RoleCitizen          Role = "CITIZEN"
)

// Roles lists every role in descending order of privilege.
var Roles = []Role{
	RoleSuperAdmin,
	RoleCountyAdmin,
	RoleCountyOfficer,
	RoleAuditor,
	RoleCooperativeAdmin,
	RoleTrainer,
	RoleCitizen,
}

// ParseRole returns the Role named s.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// TenantScoped reports whether a caller holding r only sees its own tenant.
func (r Role) TenantScoped() bool {
	return r != RoleSuperAdmin && r != RoleAuditor
}

// Rank orders roles by privilege; lower is more privileged.
func (r Role) Rank() int {
	for i, candidate := range Roles {
		if candidate == r {
			return i
		}
	}
	return len(Roles)
}

// RoleState is the lifecycle of a role assignment. Assignments are never
// deleted, only moved to RoleInactive. Stored in the boolean is_active column.
type RoleState string

const (
	RoleActive   RoleState = "ACTIVE"
	RoleInactive RoleState = "INACTIVE"
)

func (s RoleState) Value() (driver.Value, error) {
	return s == RoleActive, nil
}

func (s *RoleState) Scan(src interface{}) error {
	switch v := src.(type) {
	case bool:
		if v {
			*s = RoleActive
		} else {
			*s = RoleInactive
		}
	case nil:
		*s = RoleInactive
	default:
		return fmt.Errorf("role state: unsupported column type %T", src)
	}
	return nil
}

func (RoleState) GormDataType() string {
	return "boolean"
}

// UserRole assigns a role within a tenant. {UserID, TenantID, Role} is unique:
// re-assigning reactivates the existing row.
type UserRole struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_assignment"`
	TenantID   uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_user_roles_assignment"`
	Role       Role      `json:"role" gorm:"type:varchar(30);not null;uniqueIndex:idx_user_roles_assignment"`
	State      RoleState `json:"state" gorm:"column:is_active;not null"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy *string   `json:"assigned_by,omitempty" gorm:"type:uuid"`

	// Relations
	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// Active reports whether the assignment is in force.
func (r UserRole) Active() bool {
	return r.State == RoleActive
}
