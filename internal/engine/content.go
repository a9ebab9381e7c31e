package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// ContentLedger manages the lifecycle of posts and comments.
// Nothing is ever physically removed: deletion sets a timestamp.
type ContentLedger struct {
	e *Engine
}

// PostContent holds the author-controlled fields of a post
type PostContent struct {
	Title      string
	Body       string
	IsRichText bool
	Link       string
	LinkType   models.LinkType
	IsNSFW     bool
	IsSpoiler  bool
}

func (in *PostContent) validate() error {
	if in.Title == "" || len(in.Title) > models.MaxTitleLength {
		return apperr.Validationf("title must be 1 to %d characters", models.MaxTitleLength)
	}
	if len(in.Body) > models.MaxBodyLength {
		return apperr.Validationf("body exceeds %d characters", models.MaxBodyLength)
	}
	if !in.LinkType.Valid() {
		return apperr.Validationf("invalid link type %d", in.LinkType)
	}
	if len(in.Link) > models.MaxLinkLength {
		return apperr.Validationf("link exceeds %d characters", models.MaxLinkLength)
	}
	if (in.Link == "") != (in.LinkType == models.LinkNone) {
		return apperr.Validationf("a link needs a link type and a link type needs a link")
	}
	return nil
}

func (in *PostContent) link() sql.NullString {
	return sql.NullString{String: in.Link, Valid: in.Link != ""}
}

// NewPost describes a post to create
type NewPost struct {
	SphereID    int64
	SatelliteID sql.NullInt64
	CategoryID  sql.NullInt64
	PostContent
}

// NewComment describes a comment to create. A null ParentID makes it a top-level comment.
type NewComment struct {
	PostID     int64
	ParentID   sql.NullInt64
	Body       string
	IsRichText bool
}

func validateCommentBody(body string) error {
	if body == "" || len(body) > models.MaxBodyLength {
		return apperr.Validationf("comment must be 1 to %d characters", models.MaxBodyLength)
	}
	return nil
}

// newAggregate starts the vote state of content created at now
func newAggregate(now time.Time) models.VoteAggregate {
	return models.VoteAggregate{ScoringAnchor: now, ScoredAt: now}
}

// postLocation resolves the satellite of a post and checks that it and the category
// belong to the sphere. It returns the satellite, nil when there is none.
func postLocation(ctx context.Context, tx store.Tx, sphereID int64, satelliteID, categoryID sql.NullInt64) (*models.Satellite, error) {
	var satellite *models.Satellite
	if satelliteID.Valid {
		s, err := tx.Satellites().GetByID(ctx, satelliteID.Int64)
		if err != nil {
			return nil, err
		}
		if s == nil || s.SphereID != sphereID {
			return nil, apperr.Validationf("satellite %d does not belong to sphere %d", satelliteID.Int64, sphereID)
		}
		if !s.IsActive() {
			return nil, apperr.Validationf("satellite %d is disabled", s.ID)
		}
		satellite = s
	}
	if categoryID.Valid {
		c, err := tx.Categories().GetByID(ctx, categoryID.Int64)
		if err != nil {
			return nil, err
		}
		if c == nil || c.SphereID != sphereID {
			return nil, apperr.Validationf("category %d does not belong to sphere %d", categoryID.Int64, sphereID)
		}
		if !c.IsActive() {
			return nil, apperr.Validationf("category %d is deleted", c.ID)
		}
	}
	return satellite, nil
}

// CreatePost publishes a post in a sphere, optionally inside a satellite and with a category.
// NSFW and spoiler flags are inherited from the sphere and satellite.
func (c *ContentLedger) CreatePost(ctx context.Context, creatorID int64, in NewPost) (*models.Post, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var keys []store.LockKey
	if in.SatelliteID.Valid {
		keys = append(keys, store.SatelliteKey(in.SatelliteID.Int64))
	}

	var post *models.Post
	err := c.e.write(ctx, "create_post", keys, func(tx store.Tx, fx *effects) error {
		if _, err := activeUser(ctx, tx, creatorID); err != nil {
			return err
		}
		sphere, err := getSphere(ctx, tx, in.SphereID)
		if err != nil {
			return err
		}
		if sphere.IsBanned {
			return apperr.Validationf("sphere %d is banned", sphere.ID)
		}
		satellite, err := postLocation(ctx, tx, sphere.ID, in.SatelliteID, in.CategoryID)
		if err != nil {
			return err
		}
		now := c.e.now()
		if err := requireNotBanned(ctx, tx, creatorID, sphere.ID, now); err != nil {
			return err
		}

		post = &models.Post{
			Title:         in.Title,
			Body:          in.Body,
			IsRichText:    in.IsRichText,
			Link:          in.link(),
			LinkType:      in.LinkType,
			IsNSFW:        in.IsNSFW || sphere.IsNSFW,
			IsSpoiler:     in.IsSpoiler,
			SphereID:      sphere.ID,
			SatelliteID:   in.SatelliteID,
			CategoryID:    in.CategoryID,
			CreatorID:     creatorID,
			VoteAggregate: newAggregate(now),
			CreatedAt:     now,
		}
		if satellite != nil {
			post.IsNSFW = post.IsNSFW || satellite.IsNSFW
			post.IsSpoiler = post.IsSpoiler || satellite.IsSpoiler
		}
		if err := tx.Posts().Create(ctx, post); err != nil {
			return err
		}
		if satellite != nil {
			satellite.PostCount++
			if err := tx.Satellites().Update(ctx, satellite); err != nil {
				return err
			}
		}
		fx.touch(sphere.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.e.logger.Debug("Created post", logging.Actor(creatorID), logging.Sphere(post.SphereID), zap.Int64("post_id", post.ID))
	return post, nil
}

// CreateComment replies to a post or to one of its comments and notifies the
// author of what was replied to
func (c *ContentLedger) CreateComment(ctx context.Context, creatorID int64, in NewComment) (*models.Comment, error) {
	if err := validateCommentBody(in.Body); err != nil {
		return nil, err
	}

	var comment *models.Comment
	err := c.e.write(ctx, "create_comment", []store.LockKey{store.PostKey(in.PostID)}, func(tx store.Tx, fx *effects) error {
		if _, err := activeUser(ctx, tx, creatorID); err != nil {
			return err
		}
		post, err := livePost(ctx, tx, in.PostID)
		if err != nil {
			return err
		}
		recipient := post.CreatorID
		if in.ParentID.Valid {
			parent, err := liveComment(ctx, tx, post.ID, in.ParentID.Int64)
			if err != nil {
				return err
			}
			recipient = parent.CreatorID
		}
		now := c.e.now()
		if err := requireNotBanned(ctx, tx, creatorID, post.SphereID, now); err != nil {
			return err
		}

		comment = &models.Comment{
			PostID:        post.ID,
			ParentID:      in.ParentID,
			Body:          in.Body,
			IsRichText:    in.IsRichText,
			CreatorID:     creatorID,
			VoteAggregate: newAggregate(now),
			CreatedAt:     now,
		}
		if err := tx.Comments().Create(ctx, comment); err != nil {
			return err
		}
		post.CommentCount++
		if err := tx.Posts().Update(ctx, post); err != nil {
			return err
		}
		if recipient != creatorID {
			fx.notify(newNotification(post, sql.NullInt64{Int64: comment.ID, Valid: true}, recipient, creatorID, models.NotifyReply, now))
		}
		fx.touch(post.SphereID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// ownPost loads a live post and checks that actor created it
func ownPost(ctx context.Context, tx store.Tx, actorID, postID int64) (*models.Post, error) {
	post, err := livePost(ctx, tx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != actorID {
		return nil, apperr.Unauthorizedf("user %d did not author post %d", actorID, postID)
	}
	return post, nil
}

// ownComment loads a live comment and checks that actor created it
func ownComment(ctx context.Context, tx store.Tx, actorID, postID, commentID int64) (*models.Comment, error) {
	comment, err := liveComment(ctx, tx, postID, commentID)
	if err != nil {
		return nil, err
	}
	if comment.CreatorID != actorID {
		return nil, apperr.Unauthorizedf("user %d did not author comment %d", actorID, commentID)
	}
	return comment, nil
}

// EditPost replaces the content of a post. Only its creator may edit it; the
// scoring anchor is left unchanged.
func (c *ContentLedger) EditPost(ctx context.Context, actorID, postID int64, in PostContent) (*models.Post, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var post *models.Post
	err := c.e.write(ctx, "edit_post", []store.LockKey{store.PostKey(postID)}, func(tx store.Tx, fx *effects) error {
		var err error
		if post, err = ownPost(ctx, tx, actorID, postID); err != nil {
			return err
		}
		sphere, err := getSphere(ctx, tx, post.SphereID)
		if err != nil {
			return err
		}
		post.Title = in.Title
		post.Body = in.Body
		post.IsRichText = in.IsRichText
		post.Link = in.link()
		post.LinkType = in.LinkType
		post.IsNSFW = in.IsNSFW || sphere.IsNSFW
		post.IsSpoiler = in.IsSpoiler
		if post.SatelliteID.Valid {
			satellite, err := tx.Satellites().GetByID(ctx, post.SatelliteID.Int64)
			if err != nil {
				return err
			}
			if satellite != nil {
				post.IsNSFW = post.IsNSFW || satellite.IsNSFW
				post.IsSpoiler = post.IsSpoiler || satellite.IsSpoiler
			}
		}
		post.EditedAt = sql.NullTime{Time: c.e.now(), Valid: true}
		fx.touch(post.SphereID)
		return tx.Posts().Update(ctx, post)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// EditComment replaces the body of a comment. Only its creator may edit it.
func (c *ContentLedger) EditComment(ctx context.Context, actorID, postID, commentID int64, body string, isRichText bool) (*models.Comment, error) {
	if err := validateCommentBody(body); err != nil {
		return nil, err
	}
	var comment *models.Comment
	err := c.e.write(ctx, "edit_comment", []store.LockKey{store.CommentKey(commentID)}, func(tx store.Tx, fx *effects) error {
		var err error
		if comment, err = ownComment(ctx, tx, actorID, postID, commentID); err != nil {
			return err
		}
		comment.Body = body
		comment.IsRichText = isRichText
		comment.EditedAt = sql.NullTime{Time: c.e.now(), Valid: true}
		return tx.Comments().Update(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// DeletePost marks a post deleted. Its comments and votes are kept.
func (c *ContentLedger) DeletePost(ctx context.Context, actorID, postID int64) error {
	return c.e.write(ctx, "delete_post", []store.LockKey{store.PostKey(postID)}, func(tx store.Tx, fx *effects) error {
		post, err := ownPost(ctx, tx, actorID, postID)
		if err != nil {
			return err
		}
		post.DeletedAt = sql.NullTime{Time: c.e.now(), Valid: true}
		fx.touch(post.SphereID)
		return tx.Posts().Update(ctx, post)
	})
}

// DeleteComment marks a comment deleted. Replies to it stay in the thread.
func (c *ContentLedger) DeleteComment(ctx context.Context, actorID, postID, commentID int64) error {
	return c.e.write(ctx, "delete_comment", []store.LockKey{store.CommentKey(commentID)}, func(tx store.Tx, fx *effects) error {
		comment, err := ownComment(ctx, tx, actorID, postID, commentID)
		if err != nil {
			return err
		}
		comment.DeletedAt = sql.NullTime{Time: c.e.now(), Valid: true}
		return tx.Comments().Update(ctx, comment)
	})
}

// PinPost pins or unpins a post. Requires Moderate. Pinning re-launches the post:
// its scoring anchor moves to now and its scores are recomputed.
func (c *ContentLedger) PinPost(ctx context.Context, actorID, postID int64, pinned bool) (*models.Post, error) {
	var post *models.Post
	err := c.e.write(ctx, "pin_post", []store.LockKey{store.PostKey(postID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if post, err = livePost(ctx, tx, postID); err != nil {
			return err
		}
		if err := requirePermission(ctx, tx, actor, post.SphereID, models.PermissionModerate); err != nil {
			return err
		}
		if post.IsPinned == pinned {
			return nil
		}
		post.IsPinned = pinned
		if pinned {
			now := c.e.now()
			post.ScoringAnchor = now
			rescore(&post.VoteAggregate, now)
		}
		fx.touch(post.SphereID)
		return tx.Posts().Update(ctx, post)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// PinComment pins or unpins a comment. Requires Moderate.
func (c *ContentLedger) PinComment(ctx context.Context, actorID, postID, commentID int64, pinned bool) (*models.Comment, error) {
	var comment *models.Comment
	err := c.e.write(ctx, "pin_comment", []store.LockKey{store.CommentKey(commentID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		post, err := livePost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if comment, err = liveComment(ctx, tx, postID, commentID); err != nil {
			return err
		}
		if err := requirePermission(ctx, tx, actor, post.SphereID, models.PermissionModerate); err != nil {
			return err
		}
		if comment.IsPinned == pinned {
			return nil
		}
		comment.IsPinned = pinned
		return tx.Comments().Update(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// GetPost returns a post that is not deleted
func (c *ContentLedger) GetPost(ctx context.Context, postID int64) (*models.Post, error) {
	var post *models.Post
	err := c.e.read(ctx, "get_post", func(tx store.Tx) error {
		var err error
		post, err = livePost(ctx, tx, postID)
		return err
	})
	return post, err
}
