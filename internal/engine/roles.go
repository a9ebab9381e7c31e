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

// RoleLedger manages per-sphere permission grants.
//
// A (user, sphere) pair has at most one active grant and a sphere at most one active
// Lead. Both are store invariants; the ledger checks them first to report a clear
// ConflictError and to keep the transaction free of failed writes.
type RoleLedger struct {
	e *Engine
}

// GrantRole gives user a level in a sphere. The grantor must be a platform admin, or
// hold at least Manage and grant a level strictly below its own.
func (r *RoleLedger) GrantRole(ctx context.Context, grantorID, userID, sphereID int64, level models.PermissionLevel) (*models.RoleGrant, error) {
	if !level.Valid() || level == models.PermissionNone {
		return nil, apperr.Validationf("cannot grant permission level %s", level)
	}

	keys := []store.LockKey{store.RoleKey(userID, sphereID), store.RoleKey(grantorID, sphereID)}
	if level == models.PermissionLead {
		keys = append(keys, store.LeadKey(sphereID))
	}

	var grant *models.RoleGrant
	err := r.e.write(ctx, "grant_role", keys, func(tx store.Tx, fx *effects) error {
		grantor, err := activeUser(ctx, tx, grantorID)
		if err != nil {
			return err
		}
		if _, err := activeUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := getSphere(ctx, tx, sphereID); err != nil {
			return err
		}
		standing, err := permission(ctx, tx, grantor, sphereID)
		if err != nil {
			return err
		}
		if !hasStandingOver(grantor, standing, level) {
			return apperr.Unauthorizedf("user %d with %s cannot grant %s", grantorID, standing, level)
		}

		existing, err := tx.Roles().GetActive(ctx, userID, sphereID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("user %d already holds %s in sphere %d", userID, existing.Level, sphereID)
		}
		if level == models.PermissionLead {
			lead, err := tx.Roles().GetActiveLead(ctx, sphereID)
			if err != nil {
				return err
			}
			if lead != nil {
				return apperr.Conflictf("sphere %d already has a leader", sphereID)
			}
		}

		grant = &models.RoleGrant{
			UserID:    userID,
			SphereID:  sphereID,
			Level:     level,
			GrantorID: grantorID,
			CreatedAt: r.e.now(),
		}
		return tx.Roles().Create(ctx, grant)
	})
	if err != nil {
		return nil, err
	}
	r.e.logger.Info("Granted role",
		logging.Actor(grantorID),
		logging.Sphere(sphereID),
		zap.Int64("user_id", userID),
		zap.Stringer("level", level))
	return grant, nil
}

// RevokeRole retires the active grant of user in a sphere. Users may drop their own
// non-Lead grant; otherwise the actor needs standing over the grant's level.
func (r *RoleLedger) RevokeRole(ctx context.Context, actorID, userID, sphereID int64) error {
	keys := []store.LockKey{store.RoleKey(userID, sphereID), store.RoleKey(actorID, sphereID), store.LeadKey(sphereID)}
	err := r.e.write(ctx, "revoke_role", keys, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		grant, err := tx.Roles().GetActive(ctx, userID, sphereID)
		if err != nil {
			return err
		}
		if grant == nil {
			return apperr.NotFoundf("user %d has no role in sphere %d", userID, sphereID)
		}

		selfRevoke := actorID == userID && grant.Level != models.PermissionLead
		if !selfRevoke {
			standing, err := permission(ctx, tx, actor, sphereID)
			if err != nil {
				return err
			}
			if !hasStandingOver(actor, standing, grant.Level) {
				return apperr.Unauthorizedf("user %d with %s cannot revoke %s", actorID, standing, grant.Level)
			}
		}

		grant.RevokedAt = sql.NullTime{Time: r.e.now(), Valid: true}
		return tx.Roles().Update(ctx, grant)
	})
	if err == nil {
		r.e.logger.Info("Revoked role", logging.Actor(actorID), logging.Sphere(sphereID), zap.Int64("user_id", userID))
	}
	return err
}

// TransferLead hands the leadership of a sphere to another user. The previous
// leader keeps Manage; the new leader's previous grant is retired.
// Only the current leader or a platform admin may transfer.
func (r *RoleLedger) TransferLead(ctx context.Context, actorID, userID, sphereID int64) (*models.RoleGrant, error) {
	if actorID == userID {
		return nil, apperr.Validationf("cannot transfer leadership to yourself")
	}
	keys := []store.LockKey{store.LeadKey(sphereID), store.RoleKey(actorID, sphereID), store.RoleKey(userID, sphereID)}

	var grant *models.RoleGrant
	err := r.e.write(ctx, "transfer_lead", keys, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if _, err := activeUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := getSphere(ctx, tx, sphereID); err != nil {
			return err
		}
		lead, err := tx.Roles().GetActiveLead(ctx, sphereID)
		if err != nil {
			return err
		}
		isLeader := lead != nil && lead.UserID == actorID
		if !isLeader && actor.AdminRole != models.AdminRoleAdmin {
			return apperr.Unauthorizedf("user %d does not lead sphere %d", actorID, sphereID)
		}
		if lead != nil && lead.UserID == userID {
			return apperr.Conflictf("user %d already leads sphere %d", userID, sphereID)
		}

		now := r.e.now()
		retired := sql.NullTime{Time: now, Valid: true}

		if target, err := tx.Roles().GetActive(ctx, userID, sphereID); err != nil {
			return err
		} else if target != nil {
			target.RevokedAt = retired
			if err := tx.Roles().Update(ctx, target); err != nil {
				return err
			}
		}

		if lead != nil {
			lead.RevokedAt = retired
			if err := tx.Roles().Update(ctx, lead); err != nil {
				return err
			}
			if err := tx.Roles().Create(ctx, &models.RoleGrant{
				UserID:    lead.UserID,
				SphereID:  sphereID,
				Level:     models.PermissionManage,
				GrantorID: actorID,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		grant = &models.RoleGrant{
			UserID:    userID,
			SphereID:  sphereID,
			Level:     models.PermissionLead,
			GrantorID: actorID,
			CreatedAt: now,
		}
		return tx.Roles().Create(ctx, grant)
	})
	if err != nil {
		return nil, err
	}
	r.e.logger.Info("Transferred sphere leadership", logging.Actor(actorID), logging.Sphere(sphereID), zap.Int64("user_id", userID))
	return grant, nil
}

// ListRoles returns the active grants of a sphere, highest level first
func (r *RoleLedger) ListRoles(ctx context.Context, sphereID int64) ([]*models.RoleGrant, error) {
	var grants []*models.RoleGrant
	err := r.e.read(ctx, "list_roles", func(tx store.Tx) error {
		if _, err := getSphere(ctx, tx, sphereID); err != nil {
			return err
		}
		var err error
		grants, err = tx.Roles().ListActive(ctx, sphereID)
		return err
	})
	return grants, err
}

// Permission returns the effective permission of user in a sphere
func (r *RoleLedger) Permission(ctx context.Context, userID, sphereID int64) (models.PermissionLevel, error) {
	level := models.PermissionNone
	err := r.e.read(ctx, "permission", func(tx store.Tx) error {
		user, err := activeUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		level, err = permission(ctx, tx, user, sphereID)
		return err
	})
	return level, err
}
