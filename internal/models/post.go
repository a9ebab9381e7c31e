package models

import (
	"database/sql"
	"time"
)

// Moderation holds the fields set when a moderator acts on a post or comment
type Moderation struct {
	InfringedRuleID  sql.NullInt64  `gorm:"column:infringed_rule_id"`
	ModeratorID      sql.NullInt64  `gorm:"column:moderator_id"`
	ModeratorMessage sql.NullString `gorm:"type:varchar(500);column:moderator_message"`
	ModeratedAt      sql.NullTime   `gorm:"column:moderation_timestamp"`
}

// IsModerated reports whether a moderator has acted on the content
func (m *Moderation) IsModerated() bool {
	return m.ModeratorID.Valid
}

// VoteAggregate is the denormalized vote state of a content item with its derived scores.
// Scores are a cache of scoring.ComputeScores(Score, ScoredAt-ScoringAnchor).
type VoteAggregate struct {
	Score            int32     `gorm:"not null;default:0;column:score"`
	ScoreMinus       int32     `gorm:"not null;default:0;column:score_minus"`
	RecommendedScore float32   `gorm:"type:real;not null;default:0;column:recommended_score"`
	TrendingScore    float32   `gorm:"type:real;not null;default:0;column:trending_score"`
	ScoringAnchor    time.Time `gorm:"not null;column:scoring_timestamp"`
	ScoredAt         time.Time `gorm:"not null;column:scored_timestamp"`
}

// Post represents a thread root in a sphere
type Post struct {
	ID           int64          `gorm:"primaryKey;autoIncrement;column:post_id"`
	Title        string         `gorm:"type:varchar(250);not null;column:title"`
	Body         string         `gorm:"type:text;not null;default:'';column:body"`
	IsRichText   bool           `gorm:"not null;default:false;column:is_rich_text"`
	Link         sql.NullString `gorm:"type:varchar(500);column:link_url"`
	LinkType     LinkType       `gorm:"type:smallint;not null;default:0;column:link_type"`
	IsNSFW       bool           `gorm:"not null;default:false;column:is_nsfw"`
	IsSpoiler    bool           `gorm:"not null;default:false;column:is_spoiler"`
	IsPinned     bool           `gorm:"not null;default:false;column:is_pinned"`
	SphereID     int64          `gorm:"not null;index;column:sphere_id"`
	SatelliteID  sql.NullInt64  `gorm:"index;column:satellite_id"`
	CategoryID   sql.NullInt64  `gorm:"column:category_id"`
	CreatorID    int64          `gorm:"not null;index;column:creator_id"`
	CommentCount int32          `gorm:"not null;default:0;column:num_comments"`

	Moderation    `gorm:"embedded"`
	VoteAggregate `gorm:"embedded"`

	CreatedAt time.Time    `gorm:"not null;column:create_timestamp"`
	EditedAt  sql.NullTime `gorm:"column:edit_timestamp"`
	DeletedAt sql.NullTime `gorm:"column:delete_timestamp"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// IsDeleted reports whether the post was removed by its author
func (p *Post) IsDeleted() bool {
	return p.DeletedAt.Valid
}

// Comment represents a reply in a post's thread
type Comment struct {
	ID         int64         `gorm:"primaryKey;autoIncrement;column:comment_id"`
	PostID     int64         `gorm:"not null;index;column:post_id"`
	ParentID   sql.NullInt64 `gorm:"index;column:parent_id"`
	Body       string        `gorm:"type:text;not null;column:body"`
	IsRichText bool          `gorm:"not null;default:false;column:is_rich_text"`
	IsPinned   bool          `gorm:"not null;default:false;column:is_pinned"`
	CreatorID  int64         `gorm:"not null;index;column:creator_id"`

	Moderation    `gorm:"embedded"`
	VoteAggregate `gorm:"embedded"`

	CreatedAt time.Time    `gorm:"not null;column:create_timestamp"`
	EditedAt  sql.NullTime `gorm:"column:edit_timestamp"`
	DeletedAt sql.NullTime `gorm:"column:delete_timestamp"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}

// IsDeleted reports whether the comment was removed by its author
func (c *Comment) IsDeleted() bool {
	return c.DeletedAt.Valid
}
