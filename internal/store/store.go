// Package store defines the transactional persistence boundary of the engine.
//
// Every mutating operation runs inside Store.RunInTx with the lock keys of the
// aggregate rows and uniqueness partitions it touches. Implementations serialize
// transactions that share a key, apply all writes of a transaction atomically,
// and reject writes that would break a uniqueness or cross-reference invariant
// (apperr.ErrConflict / apperr.ErrValidation) regardless of the caller's checks.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/sharesphere/spherecore/internal/models"
)

// Store runs units of work against the persisted state
type Store interface {
	// RunInTx runs fn in a read-write transaction holding keys exclusively.
	// Nothing fn writes is visible to others unless fn returns nil and the commit succeeds.
	RunInTx(ctx context.Context, keys []LockKey, fn func(tx Tx) error) error
	// View runs fn against a consistent snapshot. Writes inside fn are not allowed.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction
type Tx interface {
	Users() UserRepository
	Spheres() SphereRepository
	Satellites() SatelliteRepository
	Categories() CategoryRepository
	Subscriptions() SubscriptionRepository
	Roles() RoleRepository
	Rules() RuleRepository
	Posts() PostRepository
	Comments() CommentRepository
	Votes() VoteRepository
	Bans() BanRepository
	Notifications() NotificationRepository
}

// Get methods return (nil, nil) when the row does not exist.

// UserRepository provides user operations
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// GetByUsername finds the non-deleted user holding the name, case-insensitively
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// SphereRepository provides sphere operations
type SphereRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Sphere, error)
	GetByName(ctx context.Context, name string) (*models.Sphere, error)
	Create(ctx context.Context, sphere *models.Sphere) error
	Update(ctx context.Context, sphere *models.Sphere) error
}

// SatelliteRepository provides satellite operations
type SatelliteRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Satellite, error)
	ListBySphere(ctx context.Context, sphereID int64) ([]*models.Satellite, error)
	Create(ctx context.Context, satellite *models.Satellite) error
	Update(ctx context.Context, satellite *models.Satellite) error
}

// CategoryRepository provides category operations
type CategoryRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Category, error)
	ListBySphere(ctx context.Context, sphereID int64) ([]*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Update(ctx context.Context, category *models.Category) error
}

// SubscriptionRepository provides sphere membership operations
type SubscriptionRepository interface {
	Get(ctx context.Context, userID, sphereID int64) (*models.Subscription, error)
	// ListSphereIDs returns the spheres a user subscribes to
	ListSphereIDs(ctx context.Context, userID int64) ([]int64, error)
	Create(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, sub *models.Subscription) error
}

// RoleRepository provides role grant operations
type RoleRepository interface {
	GetActive(ctx context.Context, userID, sphereID int64) (*models.RoleGrant, error)
	GetActiveLead(ctx context.Context, sphereID int64) (*models.RoleGrant, error)
	ListActive(ctx context.Context, sphereID int64) ([]*models.RoleGrant, error)
	Create(ctx context.Context, grant *models.RoleGrant) error
	Update(ctx context.Context, grant *models.RoleGrant) error
}

// RuleRepository provides rule version operations. A null sphere addresses site-wide rules.
type RuleRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Rule, error)
	GetActiveByKey(ctx context.Context, ruleKey string) (*models.Rule, error)
	GetActiveBySlot(ctx context.Context, sphereID sql.NullInt64, priority int16) (*models.Rule, error)
	// ListActive returns the active rules of the scope ordered by priority
	ListActive(ctx context.Context, sphereID sql.NullInt64) ([]*models.Rule, error)
	Create(ctx context.Context, rule *models.Rule) error
	Update(ctx context.Context, rule *models.Rule) error
}

// RankQuery selects a page of ranked posts
//
// SphereIDs, when non-empty, replaces SphereID. Without a satellite only posts
// outside every satellite are listed. PinnedFirst lists pinned posts ahead of
// the order.
type RankQuery struct {
	SphereID    int64
	SphereIDs   []int64
	SatelliteID sql.NullInt64
	CategoryID  sql.NullInt64
	Order       models.SortOrder

	ExcludeModerated bool
	ShowNSFW         bool
	PinnedFirst      bool

	Limit  int
	Offset int
}

// Spheres returns the spheres the query covers
func (q RankQuery) Spheres() []int64 {
	if len(q.SphereIDs) > 0 {
		return q.SphereIDs
	}
	return []int64{q.SphereID}
}

// PostRepository provides post operations
type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	// ListRanked returns non-deleted posts ordered by the query's order, then id descending
	ListRanked(ctx context.Context, q RankQuery) ([]*models.Post, error)
	// ListAfter pages through every post by ascending id
	ListAfter(ctx context.Context, afterID int64, limit int) ([]*models.Post, error)
	// ListRescorable pages by ascending id through the non-deleted posts whose
	// stored scores are stale: anchored within window of now, or last scored
	// before their anchor's window closed
	ListRescorable(ctx context.Context, now time.Time, window time.Duration, afterID int64, limit int) ([]*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
}

// CommentRepository provides comment operations
type CommentRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Comment, error)
	// ListByPost returns the post's comments, deleted ones included, by order then id descending
	ListByPost(ctx context.Context, postID int64, order models.SortOrder, limit, offset int) ([]*models.Comment, error)
	Create(ctx context.Context, comment *models.Comment) error
	Update(ctx context.Context, comment *models.Comment) error
}

// VoteRepository provides vote operations. A null comment addresses the post itself.
type VoteRepository interface {
	Get(ctx context.Context, postID int64, commentID sql.NullInt64, userID int64) (*models.Vote, error)
	// ListByPost returns the votes on the post and on all of its comments
	ListByPost(ctx context.Context, postID int64) ([]*models.Vote, error)
	Create(ctx context.Context, vote *models.Vote) error
	Update(ctx context.Context, vote *models.Vote) error
	Delete(ctx context.Context, vote *models.Vote) error
}

// BanRepository provides ban operations. A null sphere addresses site-wide bans.
type BanRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Ban, error)
	// LatestUnrevoked returns the most recently created non-revoked ban of the user in the scope
	LatestUnrevoked(ctx context.Context, userID int64, sphereID sql.NullInt64) (*models.Ban, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Ban, error)
	Create(ctx context.Context, ban *models.Ban) error
	Update(ctx context.Context, ban *models.Ban) error
}

// NotificationRepository provides notification operations
type NotificationRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Notification, error)
	// ListByUser returns the user's notifications newest first
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Create(ctx context.Context, n *models.Notification) error
	Update(ctx context.Context, n *models.Notification) error
}
