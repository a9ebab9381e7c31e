package engine

import (
	"context"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
)

// permission is the effective level of user in a sphere: the higher of the active
// grant and the level implied by the platform admin role
func permission(ctx context.Context, tx store.Tx, user *models.User, sphereID int64) (models.PermissionLevel, error) {
	level := user.AdminRole.Permission()
	grant, err := tx.Roles().GetActive(ctx, user.ID, sphereID)
	if err != nil {
		return models.PermissionNone, err
	}
	if grant != nil && grant.Level > level {
		level = grant.Level
	}
	return level, nil
}

// requirePermission fails with an AuthorizationError unless user holds at least level in the sphere
func requirePermission(ctx context.Context, tx store.Tx, user *models.User, sphereID int64, level models.PermissionLevel) error {
	have, err := permission(ctx, tx, user, sphereID)
	if err != nil {
		return err
	}
	if !have.AtLeast(level) {
		return apperr.Unauthorizedf("user %d needs %s in sphere %d, has %s", user.ID, level, sphereID, have)
	}
	return nil
}

func requireAdmin(user *models.User) error {
	if user.AdminRole != models.AdminRoleAdmin {
		return apperr.Unauthorizedf("user %d is not a platform admin", user.ID)
	}
	return nil
}

// hasStandingOver reports whether an actor at actorLevel may grant or revoke level.
// Admins may touch any level; otherwise Manage is required and only strictly lower levels.
func hasStandingOver(actor *models.User, actorLevel, level models.PermissionLevel) bool {
	if actor.AdminRole == models.AdminRoleAdmin {
		return true
	}
	return actorLevel.AtLeast(models.PermissionManage) && level < actorLevel
}
