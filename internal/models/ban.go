package models

import (
	"database/sql"
	"time"
)

// Ban suspends a user in one sphere, or site-wide when SphereID is null.
// A null ExpiresAt means the ban is permanent.
type Ban struct {
	ID          int64         `gorm:"primaryKey;autoIncrement;column:ban_id"`
	UserID      int64         `gorm:"not null;index;column:user_id"`
	SphereID    sql.NullInt64 `gorm:"column:sphere_id"`
	PostID      int64         `gorm:"not null;column:post_id"`
	CommentID   sql.NullInt64 `gorm:"column:comment_id"`
	RuleID      int64         `gorm:"not null;column:infringed_rule_id"`
	ModeratorID int64         `gorm:"not null;column:moderator_id"`
	ExpiresAt   sql.NullTime  `gorm:"column:until_timestamp"`
	CreatedAt   time.Time     `gorm:"not null;column:create_timestamp"`
	RevokedAt   sql.NullTime  `gorm:"column:delete_timestamp"`
}

// TableName specifies the table name for Ban
func (Ban) TableName() string {
	return "user_bans"
}

// ActiveAt reports whether the ban suspends its user at now.
// Expiry is exclusive: a ban expiring exactly at now no longer applies.
func (b *Ban) ActiveAt(now time.Time) bool {
	if b.RevokedAt.Valid {
		return false
	}
	return !b.ExpiresAt.Valid || b.ExpiresAt.Time.After(now)
}
