package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
)

type userRepo struct{ t *txTable[models.User] }

func (r userRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	return found(r.t.get(id)), nil
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return found(r.t.lookup(0, strings.ToLower(username))), nil
}

func (r userRepo) Create(_ context.Context, u *models.User) error { return r.t.insert(u) }
func (r userRepo) Update(_ context.Context, u *models.User) error { return r.t.update(u) }

type sphereRepo struct{ t *txTable[models.Sphere] }

func (r sphereRepo) GetByID(_ context.Context, id int64) (*models.Sphere, error) {
	return found(r.t.get(id)), nil
}

func (r sphereRepo) GetByName(_ context.Context, name string) (*models.Sphere, error) {
	return found(r.t.lookup(0, strings.ToLower(name))), nil
}

func (r sphereRepo) Create(_ context.Context, s *models.Sphere) error { return r.t.insert(s) }
func (r sphereRepo) Update(_ context.Context, s *models.Sphere) error { return r.t.update(s) }

type satelliteRepo struct{ t *txTable[models.Satellite] }

func (r satelliteRepo) GetByID(_ context.Context, id int64) (*models.Satellite, error) {
	return found(r.t.get(id)), nil
}

func (r satelliteRepo) ListBySphere(_ context.Context, sphereID int64) ([]*models.Satellite, error) {
	rows := r.t.scan(func(s *models.Satellite) bool { return s.SphereID == sphereID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return ptrs(rows), nil
}

func (r satelliteRepo) Create(_ context.Context, s *models.Satellite) error { return r.t.insert(s) }
func (r satelliteRepo) Update(_ context.Context, s *models.Satellite) error { return r.t.update(s) }

type categoryRepo struct{ t *txTable[models.Category] }

func (r categoryRepo) GetByID(_ context.Context, id int64) (*models.Category, error) {
	return found(r.t.get(id)), nil
}

func (r categoryRepo) ListBySphere(_ context.Context, sphereID int64) ([]*models.Category, error) {
	rows := r.t.scan(func(c *models.Category) bool { return c.SphereID == sphereID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return ptrs(rows), nil
}

func (r categoryRepo) Create(_ context.Context, c *models.Category) error { return r.t.insert(c) }
func (r categoryRepo) Update(_ context.Context, c *models.Category) error { return r.t.update(c) }

type subscriptionRepo struct{ t *txTable[models.Subscription] }

func (r subscriptionRepo) Get(_ context.Context, userID, sphereID int64) (*models.Subscription, error) {
	k, _ := r.t.t.uniques[0].key(&models.Subscription{UserID: userID, SphereID: sphereID})
	return found(r.t.lookup(0, k)), nil
}

func (r subscriptionRepo) ListSphereIDs(_ context.Context, userID int64) ([]int64, error) {
	rows := r.t.scan(func(s *models.Subscription) bool { return s.UserID == userID })
	ids := make([]int64, 0, len(rows))
	for _, s := range rows {
		ids = append(ids, s.SphereID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r subscriptionRepo) Create(_ context.Context, s *models.Subscription) error { return r.t.insert(s) }
func (r subscriptionRepo) Delete(_ context.Context, s *models.Subscription) error { return r.t.remove(s.ID) }

type roleRepo struct{ t *txTable[models.RoleGrant] }

func (r roleRepo) GetActive(_ context.Context, userID, sphereID int64) (*models.RoleGrant, error) {
	k, _ := r.t.t.uniques[0].key(&models.RoleGrant{UserID: userID, SphereID: sphereID})
	return found(r.t.lookup(0, k)), nil
}

func (r roleRepo) GetActiveLead(_ context.Context, sphereID int64) (*models.RoleGrant, error) {
	k, _ := r.t.t.uniques[1].key(&models.RoleGrant{SphereID: sphereID, Level: models.PermissionLead})
	return found(r.t.lookup(1, k)), nil
}

func (r roleRepo) ListActive(_ context.Context, sphereID int64) ([]*models.RoleGrant, error) {
	rows := r.t.scan(func(g *models.RoleGrant) bool { return g.SphereID == sphereID && g.IsActive() })
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Level != rows[j].Level {
			return rows[i].Level > rows[j].Level
		}
		return rows[i].ID < rows[j].ID
	})
	return ptrs(rows), nil
}

func (r roleRepo) Create(_ context.Context, g *models.RoleGrant) error { return r.t.insert(g) }
func (r roleRepo) Update(_ context.Context, g *models.RoleGrant) error { return r.t.update(g) }

type ruleRepo struct{ t *txTable[models.Rule] }

func (r ruleRepo) GetByID(_ context.Context, id int64) (*models.Rule, error) {
	return found(r.t.get(id)), nil
}

func (r ruleRepo) GetActiveByKey(_ context.Context, ruleKey string) (*models.Rule, error) {
	return found(r.t.lookup(0, ruleKey)), nil
}

func (r ruleRepo) GetActiveBySlot(_ context.Context, sphereID sql.NullInt64, priority int16) (*models.Rule, error) {
	k, _ := r.t.t.uniques[1].key(&models.Rule{SphereID: sphereID, Priority: priority})
	return found(r.t.lookup(1, k)), nil
}

func (r ruleRepo) ListActive(_ context.Context, sphereID sql.NullInt64) ([]*models.Rule, error) {
	rows := r.t.scan(func(rule *models.Rule) bool {
		return rule.IsActive() && rule.SphereID == sphereID
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].Priority < rows[j].Priority })
	return ptrs(rows), nil
}

func (r ruleRepo) Create(_ context.Context, rule *models.Rule) error { return r.t.insert(rule) }
func (r ruleRepo) Update(_ context.Context, rule *models.Rule) error { return r.t.update(rule) }

type postRepo struct{ t *txTable[models.Post] }

func (r postRepo) GetByID(_ context.Context, id int64) (*models.Post, error) {
	return found(r.t.get(id)), nil
}

func (r postRepo) ListRanked(_ context.Context, q store.RankQuery) ([]*models.Post, error) {
	spheres := make(map[int64]struct{})
	for _, id := range q.Spheres() {
		spheres[id] = struct{}{}
	}
	rows := r.t.scan(func(p *models.Post) bool { return listed(p, q, spheres) })
	sort.Slice(rows, func(i, j int) bool {
		if q.PinnedFirst && rows[i].IsPinned != rows[j].IsPinned {
			return rows[i].IsPinned
		}
		return rankedBefore(q.Order, rows[i].ID, rows[j].ID, &rows[i].VoteAggregate, &rows[j].VoteAggregate,
			rows[i].CreatedAt.UnixNano(), rows[j].CreatedAt.UnixNano())
	})
	return ptrs(page(rows, q.Limit, q.Offset)), nil
}

// listed reports whether a post passes the filters of a ranked listing
func listed(p *models.Post, q store.RankQuery, spheres map[int64]struct{}) bool {
	if _, ok := spheres[p.SphereID]; !ok || p.IsDeleted() {
		return false
	}
	if q.SatelliteID.Valid {
		if !p.SatelliteID.Valid || p.SatelliteID.Int64 != q.SatelliteID.Int64 {
			return false
		}
	} else if p.SatelliteID.Valid {
		return false
	}
	if q.CategoryID.Valid && (!p.CategoryID.Valid || p.CategoryID.Int64 != q.CategoryID.Int64) {
		return false
	}
	if q.ExcludeModerated && p.IsModerated() {
		return false
	}
	return q.ShowNSFW || !p.IsNSFW
}

func (r postRepo) ListAfter(_ context.Context, afterID int64, limit int) ([]*models.Post, error) {
	rows := r.t.scan(func(p *models.Post) bool { return p.ID > afterID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return ptrs(page(rows, limit, 0)), nil
}

func (r postRepo) ListRescorable(_ context.Context, now time.Time, window time.Duration, afterID int64, limit int) ([]*models.Post, error) {
	since := now.Add(-window)
	rows := r.t.scan(func(p *models.Post) bool {
		if p.ID <= afterID || p.IsDeleted() {
			return false
		}
		return !p.ScoringAnchor.Before(since) || p.ScoredAt.Before(p.ScoringAnchor.Add(window))
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return ptrs(page(rows, limit, 0)), nil
}

func (r postRepo) Create(_ context.Context, p *models.Post) error { return r.t.insert(p) }
func (r postRepo) Update(_ context.Context, p *models.Post) error { return r.t.update(p) }

type commentRepo struct{ t *txTable[models.Comment] }

func (r commentRepo) GetByID(_ context.Context, id int64) (*models.Comment, error) {
	return found(r.t.get(id)), nil
}

func (r commentRepo) ListByPost(_ context.Context, postID int64, order models.SortOrder, limit, offset int) ([]*models.Comment, error) {
	rows := r.t.scan(func(c *models.Comment) bool { return c.PostID == postID })
	sort.Slice(rows, func(i, j int) bool {
		return rankedBefore(order, rows[i].ID, rows[j].ID, &rows[i].VoteAggregate, &rows[j].VoteAggregate,
			rows[i].CreatedAt.UnixNano(), rows[j].CreatedAt.UnixNano())
	})
	return ptrs(page(rows, limit, offset)), nil
}

func (r commentRepo) Create(_ context.Context, c *models.Comment) error { return r.t.insert(c) }
func (r commentRepo) Update(_ context.Context, c *models.Comment) error { return r.t.update(c) }

type voteRepo struct{ t *txTable[models.Vote] }

func (r voteRepo) Get(_ context.Context, postID int64, commentID sql.NullInt64, userID int64) (*models.Vote, error) {
	k, _ := r.t.t.uniques[0].key(&models.Vote{PostID: postID, CommentID: commentID, UserID: userID})
	return found(r.t.lookup(0, k)), nil
}

func (r voteRepo) ListByPost(_ context.Context, postID int64) ([]*models.Vote, error) {
	rows := r.t.scan(func(v *models.Vote) bool { return v.PostID == postID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return ptrs(rows), nil
}

func (r voteRepo) Create(_ context.Context, v *models.Vote) error { return r.t.insert(v) }
func (r voteRepo) Update(_ context.Context, v *models.Vote) error { return r.t.update(v) }
func (r voteRepo) Delete(_ context.Context, v *models.Vote) error { return r.t.remove(v.ID) }

type banRepo struct{ t *txTable[models.Ban] }

func (r banRepo) GetByID(_ context.Context, id int64) (*models.Ban, error) {
	return found(r.t.get(id)), nil
}

func (r banRepo) LatestUnrevoked(_ context.Context, userID int64, sphereID sql.NullInt64) (*models.Ban, error) {
	rows := r.t.scan(func(b *models.Ban) bool {
		return b.UserID == userID && b.SphereID == sphereID && !b.RevokedAt.Valid
	})
	if len(rows) == 0 {
		return nil, nil
	}
	latest := rows[0]
	for _, b := range rows[1:] {
		if b.CreatedAt.After(latest.CreatedAt) || (b.CreatedAt.Equal(latest.CreatedAt) && b.ID > latest.ID) {
			latest = b
		}
	}
	return &latest, nil
}

func (r banRepo) ListByUser(_ context.Context, userID int64) ([]*models.Ban, error) {
	rows := r.t.scan(func(b *models.Ban) bool { return b.UserID == userID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	return ptrs(rows), nil
}

func (r banRepo) Create(_ context.Context, b *models.Ban) error { return r.t.insert(b) }
func (r banRepo) Update(_ context.Context, b *models.Ban) error { return r.t.update(b) }

type notificationRepo struct{ t *txTable[models.Notification] }

func (r notificationRepo) GetByID(_ context.Context, id int64) (*models.Notification, error) {
	return found(r.t.get(id)), nil
}

func (r notificationRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]*models.Notification, error) {
	rows := r.t.scan(func(n *models.Notification) bool { return n.UserID == userID })
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	return ptrs(page(rows, limit, offset)), nil
}

func (r notificationRepo) CountUnread(_ context.Context, userID int64) (int64, error) {
	rows := r.t.scan(func(n *models.Notification) bool { return n.UserID == userID && !n.IsRead })
	return int64(len(rows)), nil
}

func (r notificationRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	rows := r.t.scan(func(n *models.Notification) bool { return n.UserID == userID && !n.IsRead })
	for i := range rows {
		rows[i].IsRead = true
		if err := r.t.update(&rows[i]); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

func (r notificationRepo) Create(_ context.Context, n *models.Notification) error { return r.t.insert(n) }
func (r notificationRepo) Update(_ context.Context, n *models.Notification) error { return r.t.update(n) }

// rankedBefore orders two content items for a listing: primary key descending, then id descending
func rankedBefore(order models.SortOrder, idA, idB int64, a, b *models.VoteAggregate, createdA, createdB int64) bool {
	switch order {
	case models.SortHot:
		if a.RecommendedScore != b.RecommendedScore {
			return a.RecommendedScore > b.RecommendedScore
		}
	case models.SortTrending:
		if a.TrendingScore != b.TrendingScore {
			return a.TrendingScore > b.TrendingScore
		}
	case models.SortBest:
		if a.Score != b.Score {
			return a.Score > b.Score
		}
	default:
		if createdA != createdB {
			return createdA > createdB
		}
	}
	return idA > idB
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
