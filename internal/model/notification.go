package model

import "time"

// NotificationKind drives the icon and colour in the console.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationWarning NotificationKind = "warning"
	NotificationInfo    NotificationKind = "info"
	NotificationError   NotificationKind = "error"
)

type Notification struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	UserID    string           `json:"user_id" gorm:"type:uuid;index;not null"`
	Title     string           `json:"title" gorm:"type:varchar(200);not null"`
	Message   string           `json:"message" gorm:"type:text;not null"`
	Kind      NotificationKind `json:"kind" gorm:"type:varchar(20);not null"`
	Link      *string          `json:"link,omitempty" gorm:"type:varchar(255)"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
