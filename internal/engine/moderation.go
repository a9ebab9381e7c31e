package engine

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// Moderation records rule infractions on content and optionally bans their author
type Moderation struct {
	e *Engine
}

// BanOrder asks a moderation action to ban the content's author as well
type BanOrder struct {
	SiteWide  bool
	ExpiresAt sql.NullTime
}

// ModerationAction cites a rule against a post or one of its comments
type ModerationAction struct {
	PostID    int64
	CommentID sql.NullInt64
	RuleID    int64
	Message   string
	Ban       *BanOrder
}

// ModerationResult is what a moderation action changed
type ModerationResult struct {
	Post    *models.Post
	Comment *models.Comment
	Ban     *models.Ban
}

// contentAuthor finds the author and sphere of the moderated content so the author's
// ban and role partitions can be locked
func (m *Moderation) contentAuthor(ctx context.Context, in ModerationAction) (author, sphereID int64, err error) {
	err = m.e.store.View(ctx, func(tx store.Tx) error {
		content, err := loadVoteContent(ctx, tx, VoteTarget{PostID: in.PostID, CommentID: in.CommentID})
		if err != nil {
			return err
		}
		author, sphereID = content.authorID(), content.post.SphereID
		return nil
	})
	return author, sphereID, err
}

// ModerateContent marks content as infringing a rule. Requires Moderate in the
// content's sphere. The rule must be active and apply to that sphere. When in.Ban is
// set the author is banned in the same transaction.
func (m *Moderation) ModerateContent(ctx context.Context, moderatorID int64, in ModerationAction) (*ModerationResult, error) {
	if len(in.Message) > models.MaxModeratorMessageLength {
		return nil, apperr.Validationf("moderator message exceeds %d characters", models.MaxModeratorMessageLength)
	}

	keys := []store.LockKey{store.ContentKey(in.PostID, in.CommentID)}
	if in.Ban != nil {
		author, sphereID, err := m.contentAuthor(ctx, in)
		if err != nil {
			return nil, err
		}
		keys = append(keys, store.BanKey(author), store.RoleKey(author, sphereID))
	}

	result := &ModerationResult{}
	err := m.e.write(ctx, "moderate_content", keys, func(tx store.Tx, fx *effects) error {
		moderator, err := activeUser(ctx, tx, moderatorID)
		if err != nil {
			return err
		}
		content, err := loadVoteContent(ctx, tx, VoteTarget{PostID: in.PostID, CommentID: in.CommentID})
		if err != nil {
			return err
		}
		sphereID := content.post.SphereID
		if err := requirePermission(ctx, tx, moderator, sphereID, models.PermissionModerate); err != nil {
			return err
		}
		rule, err := tx.Rules().GetByID(ctx, in.RuleID)
		if err != nil {
			return err
		}
		if rule == nil {
			return apperr.NotFoundf("rule %d", in.RuleID)
		}
		if !rule.IsActive() || !rule.AppliesTo(sphereID) {
			return apperr.Validationf("rule %d cannot be cited in sphere %d", rule.ID, sphereID)
		}

		now := m.e.now()
		mod := models.Moderation{
			InfringedRuleID:  sql.NullInt64{Int64: rule.ID, Valid: true},
			ModeratorID:      sql.NullInt64{Int64: moderatorID, Valid: true},
			ModeratorMessage: sql.NullString{String: in.Message, Valid: true},
			ModeratedAt:      sql.NullTime{Time: now, Valid: true},
		}
		if content.comment != nil {
			content.comment.Moderation = mod
			result.Comment = content.comment
		} else {
			content.post.Moderation = mod
		}
		if err := content.save(ctx, tx); err != nil {
			return err
		}
		result.Post = content.post

		author := content.authorID()
		if author != moderatorID {
			fx.notify(newNotification(content.post, in.CommentID, author, moderatorID, models.NotifyModeration, now))
		}

		if in.Ban != nil {
			order := NewBan{
				UserID:    author,
				PostID:    in.PostID,
				CommentID: in.CommentID,
				RuleID:    rule.ID,
				ExpiresAt: in.Ban.ExpiresAt,
			}
			if !in.Ban.SiteWide {
				order.SphereID = sql.NullInt64{Int64: sphereID, Valid: true}
			}
			if result.Ban, err = issueTx(ctx, tx, moderator, order, now); err != nil {
				return err
			}
		}
		fx.touch(sphereID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.e.logger.Info("Moderated content",
		logging.Actor(moderatorID),
		zap.Int64("post_id", in.PostID),
		zap.Int64("rule_id", in.RuleID),
		zap.Bool("banned", result.Ban != nil))
	return result, nil
}
