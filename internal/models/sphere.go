package models

import (
	"database/sql"
	"time"
)

// Sphere represents a top-level community
type Sphere struct {
	ID             int64     `gorm:"primaryKey;autoIncrement;column:sphere_id" json:"sphere_id"`
	Name           string    `gorm:"type:varchar(50);not null;column:sphere_name" json:"sphere_name"`
	NormalizedName string    `gorm:"type:varchar(50);not null;uniqueIndex:spheres_normalized_name_ux;column:normalized_sphere_name" json:"-"`
	SearchName     string    `gorm:"type:varchar(50);not null;column:search_name" json:"-"`
	Description    string    `gorm:"type:varchar(1000);not null;default:'';column:description" json:"description"`
	IsNSFW         bool      `gorm:"not null;default:false;column:is_nsfw" json:"is_nsfw"`
	IsBanned       bool      `gorm:"not null;default:false;column:is_banned" json:"is_banned"`
	MemberCount    int32     `gorm:"not null;default:0;column:num_members" json:"num_members"`
	CreatorID      int64     `gorm:"not null;column:creator_id" json:"creator_id"`
	CreatedAt      time.Time `gorm:"not null;column:create_timestamp" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;column:update_timestamp" json:"updated_at"`
}

// TableName specifies the table name for Sphere
func (Sphere) TableName() string {
	return "spheres"
}

// Satellite represents a sub-board of a sphere. Its name is unique per sphere only while active.
type Satellite struct {
	ID         int64        `gorm:"primaryKey;autoIncrement;column:satellite_id" json:"satellite_id"`
	SphereID   int64        `gorm:"not null;index;column:sphere_id" json:"sphere_id"`
	Name       string       `gorm:"type:varchar(50);not null;column:satellite_name" json:"satellite_name"`
	Body       string       `gorm:"type:text;not null;default:'';column:body" json:"body"`
	IsRichText bool         `gorm:"not null;default:false;column:is_rich_text" json:"is_rich_text"`
	IsNSFW     bool         `gorm:"not null;default:false;column:is_nsfw" json:"is_nsfw"`
	IsSpoiler  bool         `gorm:"not null;default:false;column:is_spoiler" json:"is_spoiler"`
	PostCount  int32        `gorm:"not null;default:0;column:num_posts" json:"num_posts"`
	CreatorID  int64        `gorm:"not null;column:creator_id" json:"creator_id"`
	CreatedAt  time.Time    `gorm:"not null;column:create_timestamp" json:"created_at"`
	DisabledAt sql.NullTime `gorm:"column:disable_timestamp" json:"-"`
}

// TableName specifies the table name for Satellite
func (Satellite) TableName() string {
	return "satellites"
}

// IsActive reports whether the satellite still accepts posts
func (s *Satellite) IsActive() bool {
	return !s.DisabledAt.Valid
}

// Category is a sphere-defined post label
type Category struct {
	ID          int64        `gorm:"primaryKey;autoIncrement;column:category_id" json:"category_id"`
	SphereID    int64        `gorm:"not null;index;column:sphere_id" json:"sphere_id"`
	Name        string       `gorm:"type:varchar(50);not null;column:category_name" json:"category_name"`
	Description string       `gorm:"type:varchar(500);not null;default:'';column:description" json:"description"`
	Color       int16        `gorm:"type:smallint;not null;default:0;column:category_color" json:"category_color"`
	CreatorID   int64        `gorm:"not null;column:creator_id" json:"creator_id"`
	CreatedAt   time.Time    `gorm:"not null;column:create_timestamp" json:"created_at"`
	DeletedAt   sql.NullTime `gorm:"column:delete_timestamp" json:"-"`
}

// TableName specifies the table name for Category
func (Category) TableName() string {
	return "sphere_categories"
}

// IsActive reports whether the category can be attached to new posts
func (c *Category) IsActive() bool {
	return !c.DeletedAt.Valid
}

// Subscription represents a user's membership of a sphere
type Subscription struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:subscription_id" json:"-"`
	UserID    int64     `gorm:"not null;uniqueIndex:sphere_subscriptions_ux,priority:1;column:user_id" json:"user_id"`
	SphereID  int64     `gorm:"not null;uniqueIndex:sphere_subscriptions_ux,priority:2;column:sphere_id" json:"sphere_id"`
	CreatedAt time.Time `gorm:"not null;column:create_timestamp" json:"created_at"`
}

// TableName specifies the table name for Subscription
func (Subscription) TableName() string {
	return "sphere_subscriptions"
}
