package model

import "time"

// User is a person known to the console. ID equals the identity provider's
// subject id. Users are never deleted; a user without active roles is
// deactivated.
type User struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	FullName  string    `json:"full_name" gorm:"type:varchar(150);not null"`
	Phone     string    `json:"phone" gorm:"type:varchar(30)"`
	IDNumber  string    `json:"id_number" gorm:"type:varchar(30)"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Tenant *Tenant    `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	Roles  []UserRole `json:"roles,omitempty" gorm:"foreignKey:UserID"`
}

// HasActiveRole reports whether any role assignment is still active.
func (u User) HasActiveRole() bool {
	for _, r := range u.Roles {
		if r.State == RoleActive {
			return true
		}
	}
	return false
}

// UserPatch carries the editable user fields; nil fields are left untouched.
type UserPatch struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	IDNumber *string `json:"id_number,omitempty"`
	TenantID *uint   `json:"tenant_id,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.FullName == nil && p.Phone == nil && p.IDNumber == nil && p.TenantID == nil
}
