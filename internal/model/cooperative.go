package model

import "time"

const CooperativeStatusRegistered = "REGISTERED"

// CooperativeType is a lookup entry (SACCO, dairy, housing...).
type CooperativeType struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
}

// Cooperative is the registered entity created when an application is
// approved. At most one exists per application.
type Cooperative struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	RegistrationNumber string    `json:"registration_number" gorm:"type:varchar(30);not null;uniqueIndex:idx_cooperatives_tenant_regno"`
	Name               string    `json:"name" gorm:"type:varchar(200);not null"`
	CooperativeTypeID  uint      `json:"cooperative_type_id" gorm:"index"`
	TenantID           uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_cooperatives_tenant_regno"`
	Status             string    `json:"status" gorm:"type:varchar(20);not null"`
	RegistrationDate   time.Time `json:"registration_date"`
	Email              string    `json:"email" gorm:"type:varchar(100)"`
	Phone              string    `json:"phone" gorm:"type:varchar(30)"`
	PhysicalAddress    string    `json:"physical_address" gorm:"type:text"`
	TotalMembers       int       `json:"total_members"`
	ShareCapital       float64   `json:"share_capital"`
	IsActive           bool      `json:"is_active"`
	ApplicationID      uint      `json:"application_id" gorm:"uniqueIndex"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
