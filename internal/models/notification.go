package models

import (
	"database/sql"
	"time"
)

// Notification tells a user about a reaction to their content
type Notification struct {
	ID            int64            `gorm:"primaryKey;autoIncrement;column:notification_id"`
	SphereID      int64            `gorm:"not null;column:sphere_id"`
	SatelliteID   sql.NullInt64    `gorm:"column:satellite_id"`
	PostID        int64            `gorm:"not null;column:post_id"`
	CommentID     sql.NullInt64    `gorm:"column:comment_id"`
	UserID        int64            `gorm:"not null;index:notifications_user_idx;column:user_id"`
	TriggerUserID int64            `gorm:"not null;column:trigger_user_id"`
	Type          NotificationType `gorm:"type:smallint;not null;column:notification_type"`
	IsRead        bool             `gorm:"not null;default:false;column:is_read"`
	CreatedAt     time.Time        `gorm:"not null;column:create_timestamp"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}
