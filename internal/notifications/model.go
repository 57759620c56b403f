package notifications

import "time"

// Notification is a persisted per-user message. Rows are immutable once
// created except for the read flag.
type Notification struct {
	NotificationID string    `gorm:"column:notification_id;primaryKey;size:190;not null"`
	UserID         string    `gorm:"column:user_id;size:190;not null;index:idx_notifications_user_created,priority:1"`
	Title          string    `gorm:"column:title;size:190;not null"`
	Message        string    `gorm:"column:message;type:text"`
	IsRead         bool      `gorm:"column:is_read;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index:idx_notifications_user_created,priority:2"`
}

// TableName exposes the table backing notifications.
func (Notification) TableName() string {
	return "notifications"
}
