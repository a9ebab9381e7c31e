// Package objects builds the JSON objects returned by the API methods.
// Timestamps are RFC 3339 strings; absent optional fields are null.
package objects

import (
	"database/sql"
	"time"

	"github.com/sharesphere/spherecore/internal/models"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTime(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return formatTime(t.Time)
}

func nullInt(v sql.NullInt64) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func nullString(s sql.NullString) interface{} {
	if !s.Valid {
		return nil
	}
	return s.String
}

// User builds a public user object
func User(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"user_id":    u.ID,
		"username":   u.Username,
		"admin_role": u.AdminRole.String(),
		"show_nsfw":  u.ShowNSFW,
		"created":    formatTime(u.CreatedAt),
	}
}

// Sphere builds a sphere object
func Sphere(s *models.Sphere) map[string]interface{} {
	return map[string]interface{}{
		"sphere_id":   s.ID,
		"name":        s.Name,
		"description": s.Description,
		"is_nsfw":     s.IsNSFW,
		"is_banned":   s.IsBanned,
		"num_members": s.MemberCount,
		"creator_id":  s.CreatorID,
		"created":     formatTime(s.CreatedAt),
		"updated":     formatTime(s.UpdatedAt),
	}
}

// Satellite builds a satellite object
func Satellite(s *models.Satellite) map[string]interface{} {
	return map[string]interface{}{
		"satellite_id": s.ID,
		"sphere_id":    s.SphereID,
		"name":         s.Name,
		"body":         s.Body,
		"is_rich_text": s.IsRichText,
		"is_nsfw":      s.IsNSFW,
		"is_spoiler":   s.IsSpoiler,
		"num_posts":    s.PostCount,
		"creator_id":   s.CreatorID,
		"created":      formatTime(s.CreatedAt),
		"disabled":     nullTime(s.DisabledAt),
	}
}

// Category builds a category object
func Category(c *models.Category) map[string]interface{} {
	return map[string]interface{}{
		"category_id": c.ID,
		"sphere_id":   c.SphereID,
		"name":        c.Name,
		"description": c.Description,
		"color":       c.Color,
		"creator_id":  c.CreatorID,
		"created":     formatTime(c.CreatedAt),
	}
}

// SphereContext builds the sphere page object with its active satellites and categories
func SphereContext(s *models.Sphere, satellites []*models.Satellite, categories []*models.Category) map[string]interface{} {
	sats := make([]map[string]interface{}, 0, len(satellites))
	for _, sat := range satellites {
		sats = append(sats, Satellite(sat))
	}
	cats := make([]map[string]interface{}, 0, len(categories))
	for _, c := range categories {
		cats = append(cats, Category(c))
	}
	obj := Sphere(s)
	obj["satellites"] = sats
	obj["categories"] = cats
	return obj
}
