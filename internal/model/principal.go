package model

// Principal is the authenticated caller acting through one role assignment.
type Principal struct {
	UserID   string
	Email    string
	Role     Role
	TenantID uint
}
