package objects

import (
	"github.com/sharesphere/spherecore/internal/models"
)

// Role builds a role grant object
func Role(r *models.RoleGrant) map[string]interface{} {
	return map[string]interface{}{
		"role_id":    r.ID,
		"user_id":    r.UserID,
		"sphere_id":  r.SphereID,
		"level":      r.Level.String(),
		"grantor_id": r.GrantorID,
		"created":    formatTime(r.CreatedAt),
	}
}

// Rule builds a rule object. Site-wide rules have a null sphere_id.
func Rule(r *models.Rule) map[string]interface{} {
	return map[string]interface{}{
		"rule_id":     r.ID,
		"rule_key":    r.RuleKey,
		"sphere_id":   nullInt(r.SphereID),
		"priority":    r.Priority,
		"title":       r.Title,
		"description": r.Description,
		"author_id":   r.AuthorID,
		"created":     formatTime(r.CreatedAt),
	}
}

// Ban builds a ban object. A null until marks a permanent ban.
func Ban(b *models.Ban) map[string]interface{} {
	return map[string]interface{}{
		"ban_id":            b.ID,
		"user_id":           b.UserID,
		"sphere_id":         nullInt(b.SphereID),
		"post_id":           b.PostID,
		"comment_id":        nullInt(b.CommentID),
		"infringed_rule_id": b.RuleID,
		"moderator_id":      b.ModeratorID,
		"until":             nullTime(b.ExpiresAt),
		"created":           formatTime(b.CreatedAt),
		"revoked":           nullTime(b.RevokedAt),
	}
}

// Notification builds a notification object
func Notification(n *models.Notification) map[string]interface{} {
	return map[string]interface{}{
		"notification_id": n.ID,
		"type":            n.Type.String(),
		"sphere_id":       n.SphereID,
		"satellite_id":    nullInt(n.SatelliteID),
		"post_id":         n.PostID,
		"comment_id":      nullInt(n.CommentID),
		"trigger_user_id": n.TriggerUserID,
		"is_read":         n.IsRead,
		"created":         formatTime(n.CreatedAt),
	}
}
