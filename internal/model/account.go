package model

import "time"

// Account is the identity-provider record behind a User.
type Account struct {
	ID                 string    `json:"id" gorm:"type:uuid;primaryKey"`
	Email              string    `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	PasswordHash       string    `json:"-" gorm:"type:varchar(255);not null"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
