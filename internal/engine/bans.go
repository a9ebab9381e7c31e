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

// BanLedger issues, revokes and evaluates bans
type BanLedger struct {
	e *Engine
}

// NewBan describes a ban to issue. A null SphereID bans site-wide; a null ExpiresAt bans permanently.
type NewBan struct {
	UserID    int64
	SphereID  sql.NullInt64
	PostID    int64
	CommentID sql.NullInt64
	RuleID    int64
	ExpiresAt sql.NullTime
}

// BanStatus is the ban state of a user in a sphere at a given time
type BanStatus struct {
	Banned    bool         `json:"banned"`
	Permanent bool         `json:"permanent"`
	Until     sql.NullTime `json:"-"`
}

// banStatus merges the latest sphere and site-wide bans of user at now
func banStatus(ctx context.Context, tx store.Tx, userID, sphereID int64, now time.Time) (BanStatus, error) {
	var status BanStatus
	scopes := []sql.NullInt64{{Int64: sphereID, Valid: true}, {}}
	for _, scope := range scopes {
		ban, err := tx.Bans().LatestUnrevoked(ctx, userID, scope)
		if err != nil {
			return status, err
		}
		if ban == nil || !ban.ActiveAt(now) {
			continue
		}
		status.Banned = true
		if !ban.ExpiresAt.Valid {
			status.Permanent = true
			status.Until = sql.NullTime{}
			continue
		}
		if !status.Permanent && (!status.Until.Valid || ban.ExpiresAt.Time.After(status.Until.Time)) {
			status.Until = ban.ExpiresAt
		}
	}
	return status, nil
}

// requireNotBanned fails with an AuthorizationError while user is banned from the sphere
func requireNotBanned(ctx context.Context, tx store.Tx, userID, sphereID int64, now time.Time) error {
	status, err := banStatus(ctx, tx, userID, sphereID, now)
	if err != nil {
		return err
	}
	if status.Banned {
		return apperr.Unauthorizedf("user %d is banned from sphere %d", userID, sphereID)
	}
	return nil
}

// issueTx creates a ban inside an open transaction holding BanKey(in.UserID)
func issueTx(ctx context.Context, tx store.Tx, moderator *models.User, in NewBan, now time.Time) (*models.Ban, error) {
	if in.UserID == moderator.ID {
		return nil, apperr.Unauthorizedf("user %d cannot ban itself", moderator.ID)
	}
	if in.ExpiresAt.Valid && !in.ExpiresAt.Time.After(now) {
		return nil, apperr.Validationf("ban expiry must be in the future")
	}
	target, err := activeUser(ctx, tx, in.UserID)
	if err != nil {
		return nil, err
	}

	post, err := tx.Posts().GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, apperr.NotFoundf("post %d", in.PostID)
	}
	if in.CommentID.Valid {
		c, err := tx.Comments().GetByID(ctx, in.CommentID.Int64)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, apperr.NotFoundf("comment %d", in.CommentID.Int64)
		}
		if c.PostID != post.ID {
			return nil, apperr.Validationf("comment %d does not belong to post %d", c.ID, post.ID)
		}
	}

	if in.SphereID.Valid {
		if post.SphereID != in.SphereID.Int64 {
			return nil, apperr.Validationf("post %d does not belong to sphere %d", post.ID, in.SphereID.Int64)
		}
		if err := requirePermission(ctx, tx, moderator, in.SphereID.Int64, models.PermissionBan); err != nil {
			return nil, err
		}
		standing, err := permission(ctx, tx, target, in.SphereID.Int64)
		if err != nil {
			return nil, err
		}
		if standing.AtLeast(models.PermissionModerate) {
			return nil, apperr.Unauthorizedf("user %d moderates sphere %d and cannot be banned from it", target.ID, in.SphereID.Int64)
		}
	} else {
		if err := requireAdmin(moderator); err != nil {
			return nil, err
		}
		if target.AdminRole != models.AdminRoleNone {
			return nil, apperr.Unauthorizedf("user %d is platform staff and cannot be banned", target.ID)
		}
	}

	rule, err := tx.Rules().GetByID(ctx, in.RuleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperr.NotFoundf("rule %d", in.RuleID)
	}
	if !rule.IsActive() || !rule.AppliesTo(post.SphereID) {
		return nil, apperr.Validationf("rule %d cannot be cited in sphere %d", rule.ID, post.SphereID)
	}

	ban := &models.Ban{
		UserID:      in.UserID,
		SphereID:    in.SphereID,
		PostID:      in.PostID,
		CommentID:   in.CommentID,
		RuleID:      in.RuleID,
		ModeratorID: moderator.ID,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now,
	}
	if err := tx.Bans().Create(ctx, ban); err != nil {
		return nil, err
	}
	return ban, nil
}

func banKeys(userID int64, sphereID sql.NullInt64) []store.LockKey {
	keys := []store.LockKey{store.BanKey(userID)}
	if sphereID.Valid {
		keys = append(keys, store.RoleKey(userID, sphereID.Int64))
	}
	return keys
}

// IssueBan bans a user from a sphere, or site-wide. Requires Ban in the sphere, or
// platform Admin for a site-wide ban. Moderators of the sphere cannot be banned from it.
func (b *BanLedger) IssueBan(ctx context.Context, moderatorID int64, in NewBan) (*models.Ban, error) {
	var ban *models.Ban
	err := b.e.write(ctx, "issue_ban", banKeys(in.UserID, in.SphereID), func(tx store.Tx, fx *effects) error {
		moderator, err := activeUser(ctx, tx, moderatorID)
		if err != nil {
			return err
		}
		ban, err = issueTx(ctx, tx, moderator, in, b.e.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	b.e.logger.Info("Issued ban",
		logging.Actor(moderatorID),
		zap.Int64("user_id", ban.UserID),
		zap.Int64("ban_id", ban.ID),
		zap.Bool("site_wide", !ban.SphereID.Valid))
	return ban, nil
}

// RevokeBan lifts a ban. Revoking an already revoked ban is a no-op.
func (b *BanLedger) RevokeBan(ctx context.Context, actorID, banID int64) error {
	var userID int64
	err := b.e.store.View(ctx, func(tx store.Tx) error {
		ban, err := tx.Bans().GetByID(ctx, banID)
		if err != nil {
			return err
		}
		if ban == nil {
			return apperr.NotFoundf("ban %d", banID)
		}
		userID = ban.UserID
		return nil
	})
	if err != nil {
		return err
	}

	return b.e.write(ctx, "revoke_ban", []store.LockKey{store.BanKey(userID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		ban, err := tx.Bans().GetByID(ctx, banID)
		if err != nil {
			return err
		}
		if ban == nil {
			return apperr.NotFoundf("ban %d", banID)
		}
		if ban.SphereID.Valid {
			err = requirePermission(ctx, tx, actor, ban.SphereID.Int64, models.PermissionBan)
		} else {
			err = requireAdmin(actor)
		}
		if err != nil {
			return err
		}
		if ban.RevokedAt.Valid {
			return nil
		}
		ban.RevokedAt = sql.NullTime{Time: b.e.now(), Valid: true}
		return tx.Bans().Update(ctx, ban)
	})
}

// BanStatus evaluates the bans of user in a sphere at now. A zero now means the engine clock.
func (b *BanLedger) BanStatus(ctx context.Context, userID, sphereID int64, now time.Time) (BanStatus, error) {
	if now.IsZero() {
		now = b.e.now()
	}
	var status BanStatus
	err := b.e.read(ctx, "ban_status", func(tx store.Tx) error {
		var err error
		status, err = banStatus(ctx, tx, userID, sphereID, now)
		return err
	})
	return status, err
}

// ListBans returns every ban issued against user, revoked ones included
func (b *BanLedger) ListBans(ctx context.Context, userID int64) ([]*models.Ban, error) {
	var bans []*models.Ban
	err := b.e.read(ctx, "list_bans", func(tx store.Tx) error {
		var err error
		bans, err = tx.Bans().ListByUser(ctx, userID)
		return err
	})
	return bans, err
}
