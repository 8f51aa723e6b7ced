package model

import "time"

// TenantType distinguishes county administrations from national HQ.
type TenantType string

const (
	TenantTypeCounty   TenantType = "COUNTY"
	TenantTypeNational TenantType = "NATIONAL"
)

// Tenant is an administrative scope. Only Active may change once users or
// applications reference it.
type Tenant struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Name      string     `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Type      TenantType `json:"type" gorm:"type:varchar(20);not null;default:'COUNTY'"`
	Active    bool       `json:"active" gorm:"default:true"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
