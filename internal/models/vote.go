package models

import (
	"database/sql"
	"time"
)

// Vote values
const (
	VoteDown int16 = -1
	VoteUp   int16 = 1
)

// Vote is the single vote of a user on a post, or on a comment of that post.
// CommentID is part of the uniqueness key, so a post vote and a comment vote never collide.
type Vote struct {
	ID        int64         `gorm:"primaryKey;autoIncrement;column:vote_id"`
	PostID    int64         `gorm:"not null;index;column:post_id"`
	CommentID sql.NullInt64 `gorm:"column:comment_id"`
	UserID    int64         `gorm:"not null;index;column:user_id"`
	Value     int16         `gorm:"type:smallint;not null;column:value"`
	CreatedAt time.Time     `gorm:"not null;column:create_timestamp"`
	UpdatedAt time.Time     `gorm:"not null;column:update_timestamp"`
}

// TableName specifies the table name for Vote
func (Vote) TableName() string {
	return "votes"
}

// ValidVoteValue reports whether v is an accepted vote value
func ValidVoteValue(v int16) bool {
	return v == VoteUp || v == VoteDown
}

// VoteDelta is the aggregate change caused by replacing a vote value. A zero value means no vote.
func VoteDelta(oldValue, newValue int16) (score int32, minus int32) {
	score = int32(newValue) - int32(oldValue)
	if oldValue != VoteDown && newValue == VoteDown {
		minus = 1
	} else if oldValue == VoteDown && newValue != VoteDown {
		minus = -1
	}
	return score, minus
}
