package models

import (
	"database/sql"
	"time"
)

// User represents a platform account. Deletion is a timestamp mark that frees
// the username and email for reuse.
type User struct {
	ID                 int64        `gorm:"primaryKey;autoIncrement;column:user_id" json:"user_id"`
	Subject            string       `gorm:"type:varchar(255);not null;column:subject" json:"-"`
	Username           string       `gorm:"type:varchar(30);not null;column:username" json:"username"`
	NormalizedUsername string       `gorm:"type:varchar(30);not null;column:normalized_username" json:"-"`
	Email              string       `gorm:"type:varchar(320);not null;column:email" json:"-"`
	AdminRole          AdminRole    `gorm:"type:smallint;not null;default:0;column:admin_role" json:"admin_role"`
	ShowNSFW           bool         `gorm:"not null;default:false;column:show_nsfw" json:"show_nsfw"`
	CreatedAt          time.Time    `gorm:"not null;column:create_timestamp" json:"created_at"`
	DeletedAt          sql.NullTime `gorm:"column:delete_timestamp" json:"-"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// IsDeleted reports whether the account has been soft-deleted
func (u *User) IsDeleted() bool {
	return u.DeletedAt.Valid
}
