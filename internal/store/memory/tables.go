package memory

import (
	"fmt"
	"strings"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
)

// initTables declares every table with its active-partition indexes and reference checks
func (s *Store) initTables() {
	s.users = newTable("user",
		func(r *models.User) int64 { return r.ID },
		func(r *models.User, id int64) { r.ID = id }).
		unique("username", func(r *models.User) (string, bool) {
			return r.NormalizedUsername, !r.DeletedAt.Valid
		}).
		unique("email", func(r *models.User) (string, bool) {
			return strings.ToLower(r.Email), !r.DeletedAt.Valid
		})

	s.spheres = newTable("sphere",
		func(r *models.Sphere) int64 { return r.ID },
		func(r *models.Sphere, id int64) { r.ID = id }).
		unique("name", func(r *models.Sphere) (string, bool) {
			return r.NormalizedName, true
		})

	s.satellites = newTable("satellite",
		func(r *models.Satellite) int64 { return r.ID },
		func(r *models.Satellite, id int64) { r.ID = id }).
		unique("name", func(r *models.Satellite) (string, bool) {
			return fmt.Sprintf("%d:%s", r.SphereID, strings.ToLower(r.Name)), r.IsActive()
		})
	s.satellites.check = func(tx *memTx, r *models.Satellite) error {
		return requireSphere(tx, r.SphereID)
	}

	s.categories = newTable("category",
		func(r *models.Category) int64 { return r.ID },
		func(r *models.Category, id int64) { r.ID = id }).
		unique("name", func(r *models.Category) (string, bool) {
			return fmt.Sprintf("%d:%s", r.SphereID, strings.ToLower(r.Name)), r.IsActive()
		})
	s.categories.check = func(tx *memTx, r *models.Category) error {
		return requireSphere(tx, r.SphereID)
	}

	s.subscriptions = newTable("subscription",
		func(r *models.Subscription) int64 { return r.ID },
		func(r *models.Subscription, id int64) { r.ID = id }).
		unique("membership", func(r *models.Subscription) (string, bool) {
			return fmt.Sprintf("%d:%d", r.UserID, r.SphereID), true
		})

	s.roles = newTable("role grant",
		func(r *models.RoleGrant) int64 { return r.ID },
		func(r *models.RoleGrant, id int64) { r.ID = id }).
		unique("active grant", func(r *models.RoleGrant) (string, bool) {
			return fmt.Sprintf("%d:%d", r.UserID, r.SphereID), r.IsActive()
		}).
		unique("lead", func(r *models.RoleGrant) (string, bool) {
			return fmt.Sprintf("%d", r.SphereID), r.IsActive() && r.Level == models.PermissionLead
		})
	s.roles.check = func(tx *memTx, r *models.RoleGrant) error {
		if !r.Level.Valid() {
			return apperr.Validationf("invalid permission level %d", r.Level)
		}
		if _, ok := tx.users.get(r.UserID); !ok {
			return apperr.Validationf("role grant references unknown user %d", r.UserID)
		}
		return requireSphere(tx, r.SphereID)
	}

	s.rules = newTable("rule",
		func(r *models.Rule) int64 { return r.ID },
		func(r *models.Rule, id int64) { r.ID = id }).
		unique("rule key", func(r *models.Rule) (string, bool) {
			return r.RuleKey, r.IsActive()
		}).
		unique("priority slot", func(r *models.Rule) (string, bool) {
			return fmt.Sprintf("%d:%d", r.SphereID.Int64, r.Priority), r.IsActive()
		})
	s.rules.check = func(tx *memTx, r *models.Rule) error {
		if r.SphereID.Valid {
			return requireSphere(tx, r.SphereID.Int64)
		}
		return nil
	}

	s.posts = newTable("post",
		func(r *models.Post) int64 { return r.ID },
		func(r *models.Post, id int64) { r.ID = id })
	s.posts.check = checkPost

	s.comments = newTable("comment",
		func(r *models.Comment) int64 { return r.ID },
		func(r *models.Comment, id int64) { r.ID = id })
	s.comments.check = checkComment

	s.votes = newTable("vote",
		func(r *models.Vote) int64 { return r.ID },
		func(r *models.Vote, id int64) { r.ID = id }).
		unique("vote", func(r *models.Vote) (string, bool) {
			return fmt.Sprintf("%d:%d:%d", r.PostID, r.CommentID.Int64, r.UserID), true
		})
	s.votes.check = checkVote

	s.bans = newTable("ban",
		func(r *models.Ban) int64 { return r.ID },
		func(r *models.Ban, id int64) { r.ID = id })
	s.bans.check = func(tx *memTx, r *models.Ban) error {
		if _, ok := tx.posts.get(r.PostID); !ok {
			return apperr.Validationf("ban references unknown post %d", r.PostID)
		}
		if _, ok := tx.rules.get(r.RuleID); !ok {
			return apperr.Validationf("ban references unknown rule %d", r.RuleID)
		}
		return nil
	}

	s.notifications = newTable("notification",
		func(r *models.Notification) int64 { return r.ID },
		func(r *models.Notification, id int64) { r.ID = id })
}

func requireSphere(tx *memTx, sphereID int64) error {
	if _, ok := tx.spheres.get(sphereID); !ok {
		return apperr.Validationf("unknown sphere %d", sphereID)
	}
	return nil
}

// checkPost enforces that satellite and category belong to the post's sphere
func checkPost(tx *memTx, p *models.Post) error {
	if err := requireSphere(tx, p.SphereID); err != nil {
		return err
	}
	if p.SatelliteID.Valid {
		sat, ok := tx.satellites.get(p.SatelliteID.Int64)
		if !ok || sat.SphereID != p.SphereID {
			return apperr.Validationf("satellite %d does not belong to sphere %d", p.SatelliteID.Int64, p.SphereID)
		}
	}
	if p.CategoryID.Valid {
		cat, ok := tx.categories.get(p.CategoryID.Int64)
		if !ok || cat.SphereID != p.SphereID {
			return apperr.Validationf("category %d does not belong to sphere %d", p.CategoryID.Int64, p.SphereID)
		}
	}
	return nil
}

func checkComment(tx *memTx, c *models.Comment) error {
	if _, ok := tx.posts.get(c.PostID); !ok {
		return apperr.Validationf("comment references unknown post %d", c.PostID)
	}
	if c.ParentID.Valid {
		parent, ok := tx.comments.get(c.ParentID.Int64)
		if !ok || parent.PostID != c.PostID {
			return apperr.Validationf("parent comment %d does not belong to post %d", c.ParentID.Int64, c.PostID)
		}
	}
	return nil
}

func checkVote(tx *memTx, v *models.Vote) error {
	if !models.ValidVoteValue(v.Value) {
		return apperr.Validationf("invalid vote value %d", v.Value)
	}
	if _, ok := tx.posts.get(v.PostID); !ok {
		return apperr.Validationf("vote references unknown post %d", v.PostID)
	}
	if v.CommentID.Valid {
		c, ok := tx.comments.get(v.CommentID.Int64)
		if !ok || c.PostID != v.PostID {
			return apperr.Validationf("comment %d does not belong to post %d", v.CommentID.Int64, v.PostID)
		}
	}
	return nil
}
