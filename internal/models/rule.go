package models

import (
	"database/sql"
	"time"
)

// Rule is one version of a moderation rule. Versions of the same rule share RuleKey;
// an edit retires the active version and inserts a new one.
type Rule struct {
	ID          int64         `gorm:"primaryKey;autoIncrement;column:rule_id" json:"rule_id"`
	RuleKey     string        `gorm:"type:uuid;not null;index;column:rule_key" json:"rule_key"`
	SphereID    sql.NullInt64 `gorm:"column:sphere_id" json:"-"`
	Priority    int16         `gorm:"type:smallint;not null;column:priority" json:"priority"`
	Title       string        `gorm:"type:varchar(250);not null;column:title" json:"title"`
	Description string        `gorm:"type:text;not null;default:'';column:description" json:"description"`
	AuthorID    int64         `gorm:"not null;column:user_id" json:"user_id"`
	CreatedAt   time.Time     `gorm:"not null;column:create_timestamp" json:"created_at"`
	RetiredAt   sql.NullTime  `gorm:"column:delete_timestamp" json:"-"`
}

// TableName specifies the table name for Rule
func (Rule) TableName() string {
	return "rules"
}

// IsActive reports whether this is the current version of its rule
func (r *Rule) IsActive() bool {
	return !r.RetiredAt.Valid
}

// IsSiteWide reports whether the rule applies to every sphere
func (r *Rule) IsSiteWide() bool {
	return !r.SphereID.Valid
}

// AppliesTo reports whether the rule can be cited for content of sphereID
func (r *Rule) AppliesTo(sphereID int64) bool {
	return r.IsSiteWide() || r.SphereID.Int64 == sphereID
}

// Site-wide rule titles. Site-wide rules are restricted to this closed set.
const (
	BaseRuleBeRespectful       = "BeRespectful"
	BaseRuleRespectSphereRules = "RespectSphereRules"
	BaseRuleNoIllegalContent   = "NoIllegalContent"
	BaseRuleNoSpam             = "NoSpam"
)

// IsBaseRuleTitle reports whether title names one of the site-wide rules
func IsBaseRuleTitle(title string) bool {
	switch title {
	case BaseRuleBeRespectful, BaseRuleRespectSphereRules, BaseRuleNoIllegalContent, BaseRuleNoSpam:
		return true
	}
	return false
}
