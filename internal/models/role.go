package models

import (
	"database/sql"
	"time"
)

// RoleGrant is a user's permission level in a sphere. A grant is active while RevokedAt is null;
// at most one grant is active per (user, sphere) and at most one active Lead per sphere.
type RoleGrant struct {
	ID        int64           `gorm:"primaryKey;autoIncrement;column:role_id" json:"role_id"`
	UserID    int64           `gorm:"not null;index;column:user_id" json:"user_id"`
	SphereID  int64           `gorm:"not null;index;column:sphere_id" json:"sphere_id"`
	Level     PermissionLevel `gorm:"type:smallint;not null;column:permission_level" json:"permission_level"`
	GrantorID int64           `gorm:"not null;column:grantor_id" json:"grantor_id"`
	CreatedAt time.Time       `gorm:"not null;column:create_timestamp" json:"created_at"`
	RevokedAt sql.NullTime    `gorm:"column:delete_timestamp" json:"-"`
}

// TableName specifies the table name for RoleGrant
func (RoleGrant) TableName() string {
	return "user_sphere_roles"
}

// IsActive reports whether the grant has not been revoked
func (r *RoleGrant) IsActive() bool {
	return !r.RevokedAt.Valid
}
