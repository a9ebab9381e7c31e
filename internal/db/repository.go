package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// take runs q for a single row and returns (nil, nil) when there is none
func take[T any](q *gorm.DB) (*T, error) {
	var row T
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// save overwrites every column of an existing row
func save(ctx context.Context, db *gorm.DB, row interface{}, what string, id int64) error {
	res := db.WithContext(ctx).Model(row).Select("*").Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("%s %d", what, id)
	}
	return nil
}

// nullableEq matches column against v, with an invalid v meaning IS NULL
func nullableEq(column string, v sql.NullInt64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !v.Valid {
			return db.Where(column + " IS NULL")
		}
		return db.Where(column+" = ?", v.Int64)
	}
}

// UserRepository provides user-related database operations
type UserRepository struct {
	*Repository
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return take[models.User](r.db.WithContext(ctx).Where("user_id = ?", id))
}

// GetByUsername retrieves the non-deleted user holding username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return take[models.User](r.db.WithContext(ctx).
		Where("normalized_username = lower(?) AND delete_timestamp IS NULL", username))
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	return save(ctx, r.db, user, "user", user.ID)
}

// SphereRepository provides sphere-related database operations
type SphereRepository struct {
	*Repository
}

// GetByID retrieves a sphere by ID
func (r *SphereRepository) GetByID(ctx context.Context, id int64) (*models.Sphere, error) {
	return take[models.Sphere](r.db.WithContext(ctx).Where("sphere_id = ?", id))
}

// GetByName retrieves a sphere by name, case-insensitively
func (r *SphereRepository) GetByName(ctx context.Context, name string) (*models.Sphere, error) {
	return take[models.Sphere](r.db.WithContext(ctx).Where("normalized_sphere_name = lower(?)", name))
}

// Create creates a new sphere
func (r *SphereRepository) Create(ctx context.Context, sphere *models.Sphere) error {
	return r.db.WithContext(ctx).Create(sphere).Error
}

// Update updates a sphere
func (r *SphereRepository) Update(ctx context.Context, sphere *models.Sphere) error {
	return save(ctx, r.db, sphere, "sphere", sphere.ID)
}

// SatelliteRepository provides satellite-related database operations
type SatelliteRepository struct {
	*Repository
}

// GetByID retrieves a satellite by ID
func (r *SatelliteRepository) GetByID(ctx context.Context, id int64) (*models.Satellite, error) {
	return take[models.Satellite](r.db.WithContext(ctx).Where("satellite_id = ?", id))
}

// ListBySphere retrieves all satellites of a sphere, disabled ones included
func (r *SatelliteRepository) ListBySphere(ctx context.Context, sphereID int64) ([]*models.Satellite, error) {
	var satellites []*models.Satellite
	if err := r.db.WithContext(ctx).
		Where("sphere_id = ?", sphereID).
		Order("satellite_id").
		Find(&satellites).Error; err != nil {
		return nil, err
	}
	return satellites, nil
}

// Create creates a new satellite
func (r *SatelliteRepository) Create(ctx context.Context, satellite *models.Satellite) error {
	return r.db.WithContext(ctx).Create(satellite).Error
}

// Update updates a satellite
func (r *SatelliteRepository) Update(ctx context.Context, satellite *models.Satellite) error {
	return save(ctx, r.db, satellite, "satellite", satellite.ID)
}

// CategoryRepository provides category-related database operations
type CategoryRepository struct {
	*Repository
}

// GetByID retrieves a category by ID
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	return take[models.Category](r.db.WithContext(ctx).Where("category_id = ?", id))
}

// ListBySphere retrieves all categories of a sphere, deleted ones included
func (r *CategoryRepository) ListBySphere(ctx context.Context, sphereID int64) ([]*models.Category, error) {
	var categories []*models.Category
	if err := r.db.WithContext(ctx).
		Where("sphere_id = ?", sphereID).
		Order("category_id").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// Create creates a new category
func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

// Update updates a category
func (r *CategoryRepository) Update(ctx context.Context, category *models.Category) error {
	return save(ctx, r.db, category, "category", category.ID)
}

// SubscriptionRepository provides membership-related database operations
type SubscriptionRepository struct {
	*Repository
}

// Get retrieves the membership of a user in a sphere
func (r *SubscriptionRepository) Get(ctx context.Context, userID, sphereID int64) (*models.Subscription, error) {
	return take[models.Subscription](r.db.WithContext(ctx).
		Where("user_id = ? AND sphere_id = ?", userID, sphereID))
}

// ListSphereIDs retrieves the spheres a user is a member of
func (r *SubscriptionRepository) ListSphereIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Order("sphere_id").
		Pluck("sphere_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Create creates a new membership
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// Delete removes a membership
func (r *SubscriptionRepository) Delete(ctx context.Context, sub *models.Subscription) error {
	res := r.db.WithContext(ctx).Delete(&models.Subscription{}, sub.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("subscription %d", sub.ID)
	}
	return nil
}

// RoleRepository provides role grant database operations
type RoleRepository struct {
	*Repository
}

// GetActive retrieves the active grant of a user in a sphere
func (r *RoleRepository) GetActive(ctx context.Context, userID, sphereID int64) (*models.RoleGrant, error) {
	return take[models.RoleGrant](r.db.WithContext(ctx).
		Where("user_id = ? AND sphere_id = ? AND delete_timestamp IS NULL", userID, sphereID))
}

// GetActiveLead retrieves the active Lead grant of a sphere
func (r *RoleRepository) GetActiveLead(ctx context.Context, sphereID int64) (*models.RoleGrant, error) {
	return take[models.RoleGrant](r.db.WithContext(ctx).
		Where("sphere_id = ? AND permission_level = ? AND delete_timestamp IS NULL", sphereID, models.PermissionLead))
}

// ListActive retrieves the active grants of a sphere, highest level first
func (r *RoleRepository) ListActive(ctx context.Context, sphereID int64) ([]*models.RoleGrant, error) {
	var grants []*models.RoleGrant
	if err := r.db.WithContext(ctx).
		Where("sphere_id = ? AND delete_timestamp IS NULL", sphereID).
		Order("permission_level DESC, role_id").
		Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

// Create creates a new grant
func (r *RoleRepository) Create(ctx context.Context, grant *models.RoleGrant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

// Update updates a grant
func (r *RoleRepository) Update(ctx context.Context, grant *models.RoleGrant) error {
	return save(ctx, r.db, grant, "role grant", grant.ID)
}

// RuleRepository provides rule version database operations
type RuleRepository struct {
	*Repository
}

// GetByID retrieves any version of a rule
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*models.Rule, error) {
	return take[models.Rule](r.db.WithContext(ctx).Where("rule_id = ?", id))
}

// GetActiveByKey retrieves the active version of a rule
func (r *RuleRepository) GetActiveByKey(ctx context.Context, ruleKey string) (*models.Rule, error) {
	return take[models.Rule](r.db.WithContext(ctx).
		Where("rule_key = ? AND delete_timestamp IS NULL", ruleKey))
}

// GetActiveBySlot retrieves the active rule holding a priority in a scope
func (r *RuleRepository) GetActiveBySlot(ctx context.Context, sphereID sql.NullInt64, priority int16) (*models.Rule, error) {
	return take[models.Rule](r.db.WithContext(ctx).
		Scopes(nullableEq("sphere_id", sphereID)).
		Where("priority = ? AND delete_timestamp IS NULL", priority))
}

// ListActive retrieves the active rules of a scope by priority
func (r *RuleRepository) ListActive(ctx context.Context, sphereID sql.NullInt64) ([]*models.Rule, error) {
	var rules []*models.Rule
	if err := r.db.WithContext(ctx).
		Scopes(nullableEq("sphere_id", sphereID)).
		Where("delete_timestamp IS NULL").
		Order("priority").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// Create creates a new rule version
func (r *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

// Update updates a rule version
func (r *RuleRepository) Update(ctx context.Context, rule *models.Rule) error {
	return save(ctx, r.db, rule, "rule", rule.ID)
}

// rankColumns maps a listing order to its ORDER BY clause
var rankColumns = map[models.SortOrder]string{
	models.SortHot:      "recommended_score DESC",
	models.SortTrending: "trending_score DESC",
	models.SortBest:     "score DESC",
	models.SortRecent:   "create_timestamp DESC",
}

// paginate applies limit and offset; a limit of 0 returns every row
func paginate(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	}
}

func orderClause(order models.SortOrder, idColumn string) (string, error) {
	col, ok := rankColumns[order]
	if !ok {
		return "", apperr.Validationf("unknown sort order %q", order)
	}
	return fmt.Sprintf("%s, %s DESC", col, idColumn), nil
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return take[models.Post](r.db.WithContext(ctx).Where("post_id = ?", id))
}

// ListRanked retrieves a page of non-deleted posts passing the query's filters
func (r *PostRepository) ListRanked(ctx context.Context, q store.RankQuery) ([]*models.Post, error) {
	order, err := orderClause(q.Order, "post_id")
	if err != nil {
		return nil, err
	}
	if q.PinnedFirst {
		order = "is_pinned DESC, " + order
	}
	query := r.db.WithContext(ctx).
		Where("sphere_id IN ? AND delete_timestamp IS NULL", q.Spheres())
	if q.SatelliteID.Valid {
		query = query.Where("satellite_id = ?", q.SatelliteID.Int64)
	} else {
		query = query.Where("satellite_id IS NULL")
	}
	if q.CategoryID.Valid {
		query = query.Where("category_id = ?", q.CategoryID.Int64)
	}
	if q.ExcludeModerated {
		query = query.Where("moderator_id IS NULL")
	}
	if !q.ShowNSFW {
		query = query.Where("is_nsfw = ?", false)
	}

	var posts []*models.Post
	if err := query.Order(order).Scopes(paginate(q.Limit, q.Offset)).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ListAfter retrieves the next page of posts by ascending ID
func (r *PostRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	if err := r.db.WithContext(ctx).
		Where("post_id > ?", afterID).
		Order("post_id").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ListRescorable retrieves the next page of posts whose scores are stale
func (r *PostRepository) ListRescorable(ctx context.Context, now time.Time, window time.Duration, afterID int64, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	if err := r.db.WithContext(ctx).
		Where("post_id > ? AND delete_timestamp IS NULL", afterID).
		Where("(scoring_timestamp >= ? OR scored_timestamp < scoring_timestamp + ? * interval '1 second')",
			now.Add(-window), window.Seconds()).
		Order("post_id").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// Create creates a new post
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// Update updates a post
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	return save(ctx, r.db, post, "post", post.ID)
}

// CommentRepository provides comment-related database operations
type CommentRepository struct {
	*Repository
}

// GetByID retrieves a comment by ID
func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*models.Comment, error) {
	return take[models.Comment](r.db.WithContext(ctx).Where("comment_id = ?", id))
}

// ListByPost retrieves a page of the comments of a post
func (r *CommentRepository) ListByPost(ctx context.Context, postID int64, order models.SortOrder, limit, offset int) ([]*models.Comment, error) {
	clause, err := orderClause(order, "comment_id")
	if err != nil {
		return nil, err
	}
	var comments []*models.Comment
	if err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order(clause).
		Scopes(paginate(limit, offset)).
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// Create creates a new comment
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// Update updates a comment
func (r *CommentRepository) Update(ctx context.Context, comment *models.Comment) error {
	return save(ctx, r.db, comment, "comment", comment.ID)
}

// VoteRepository provides vote-related database operations
type VoteRepository struct {
	*Repository
}

// Get retrieves the vote of a user on a post or comment
func (r *VoteRepository) Get(ctx context.Context, postID int64, commentID sql.NullInt64, userID int64) (*models.Vote, error) {
	return take[models.Vote](r.db.WithContext(ctx).
		Scopes(nullableEq("comment_id", commentID)).
		Where("post_id = ? AND user_id = ?", postID, userID))
}

// ListByPost retrieves the votes on a post and its comments
func (r *VoteRepository) ListByPost(ctx context.Context, postID int64) ([]*models.Vote, error) {
	var votes []*models.Vote
	if err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("vote_id").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

// Create creates a new vote
func (r *VoteRepository) Create(ctx context.Context, vote *models.Vote) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

// Update updates a vote
func (r *VoteRepository) Update(ctx context.Context, vote *models.Vote) error {
	return save(ctx, r.db, vote, "vote", vote.ID)
}

// Delete removes a vote
func (r *VoteRepository) Delete(ctx context.Context, vote *models.Vote) error {
	res := r.db.WithContext(ctx).Delete(&models.Vote{}, vote.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("vote %d", vote.ID)
	}
	return nil
}

// BanRepository provides ban-related database operations
type BanRepository struct {
	*Repository
}

// GetByID retrieves a ban by ID
func (r *BanRepository) GetByID(ctx context.Context, id int64) (*models.Ban, error) {
	return take[models.Ban](r.db.WithContext(ctx).Where("ban_id = ?", id))
}

// LatestUnrevoked retrieves the most recent non-revoked ban of a user in a scope
func (r *BanRepository) LatestUnrevoked(ctx context.Context, userID int64, sphereID sql.NullInt64) (*models.Ban, error) {
	return take[models.Ban](r.db.WithContext(ctx).
		Scopes(nullableEq("sphere_id", sphereID)).
		Where("user_id = ? AND delete_timestamp IS NULL", userID).
		Order("create_timestamp DESC, ban_id DESC"))
}

// ListByUser retrieves every ban of a user, newest first
func (r *BanRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Ban, error) {
	var bans []*models.Ban
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("ban_id DESC").
		Find(&bans).Error; err != nil {
		return nil, err
	}
	return bans, nil
}

// Create creates a new ban
func (r *BanRepository) Create(ctx context.Context, ban *models.Ban) error {
	return r.db.WithContext(ctx).Create(ban).Error
}

// Update updates a ban
func (r *BanRepository) Update(ctx context.Context, ban *models.Ban) error {
	return save(ctx, r.db, ban, "ban", ban.ID)
}

// NotificationRepository provides notification-related database operations
type NotificationRepository struct {
	*Repository
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	return take[models.Notification](r.db.WithContext(ctx).Where("notification_id = ?", id))
}

// ListByUser retrieves a page of a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Notification, error) {
	var notifications []*models.Notification
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("create_timestamp DESC, notification_id DESC").
		Scopes(paginate(limit, offset)).
		Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountUnread counts a user's unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = false", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkAllRead flags every unread notification of a user as read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = false", userID).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// Update updates a notification
func (r *NotificationRepository) Update(ctx context.Context, n *models.Notification) error {
	return save(ctx, r.db, n, "notification", n.ID)
}
