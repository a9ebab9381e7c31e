package engine

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/logging"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Identity manages users
type Identity struct {
	e *Engine
}

// NewUser describes a user to register
type NewUser struct {
	Subject  string
	Username string
	Email    string
	ShowNSFW bool
}

func (in *NewUser) validate() error {
	if in.Subject == "" {
		return apperr.Validationf("subject is required")
	}
	if in.Username == "" || len(in.Username) > models.MaxUsernameLength {
		return apperr.Validationf("username must be 1 to %d characters", models.MaxUsernameLength)
	}
	if !namePattern.MatchString(in.Username) {
		return apperr.Validationf("username may only contain letters, digits, '_' and '-'")
	}
	if !strings.Contains(in.Email, "@") {
		return apperr.Validationf("invalid email %q", in.Email)
	}
	return nil
}

// CreateUser registers a user. Usernames and emails are unique among non-deleted users.
func (id *Identity) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var user *models.User
	keys := []store.LockKey{store.NameKey("user", in.Username), store.NameKey("email", in.Email)}
	err := id.e.write(ctx, "create_user", keys, func(tx store.Tx, fx *effects) error {
		existing, err := tx.Users().GetByUsername(ctx, in.Username)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("username %q is taken", in.Username)
		}
		user = &models.User{
			Subject:            in.Subject,
			Username:           in.Username,
			NormalizedUsername: strings.ToLower(in.Username),
			Email:              in.Email,
			ShowNSFW:           in.ShowNSFW,
			CreatedAt:          id.e.now(),
		}
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	id.e.logger.Info("Created user", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// GetUser returns a non-deleted user
func (id *Identity) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user *models.User
	err := id.e.read(ctx, "get_user", func(tx store.Tx) error {
		var err error
		user, err = activeUser(ctx, tx, userID)
		return err
	})
	return user, err
}

// DeleteUser soft-deletes a user, freeing its username and email. Users delete
// themselves; platform admins may delete anyone.
func (id *Identity) DeleteUser(ctx context.Context, actorID, userID int64) error {
	return id.e.write(ctx, "delete_user", []store.LockKey{store.UserKey(userID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if actorID != userID {
			if err := requireAdmin(actor); err != nil {
				return err
			}
		}
		user, err := activeUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		user.DeletedAt = sql.NullTime{Time: id.e.now(), Valid: true}
		return tx.Users().Update(ctx, user)
	})
}

// SetAdminRole changes the platform role of a user. Only admins may do it.
func (id *Identity) SetAdminRole(ctx context.Context, actorID, userID int64, role models.AdminRole) error {
	if !role.Valid() {
		return apperr.Validationf("invalid admin role %d", role)
	}
	err := id.e.write(ctx, "set_admin_role", []store.LockKey{store.UserKey(userID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(actor); err != nil {
			return err
		}
		user, err := activeUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		user.AdminRole = role
		return tx.Users().Update(ctx, user)
	})
	if err == nil {
		id.e.logger.Info("Changed admin role",
			logging.Actor(actorID),
			zap.Int64("user_id", userID),
			zap.Stringer("role", role))
	}
	return err
}

// PromoteAdmin makes the named user a platform admin without an acting user. It is
// reserved for operator tooling that bootstraps the first admin.
func (id *Identity) PromoteAdmin(ctx context.Context, username string) (*models.User, error) {
	var userID int64
	err := id.e.store.View(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFoundf("user %q", username)
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = id.e.write(ctx, "promote_admin", []store.LockKey{store.UserKey(userID)}, func(tx store.Tx, fx *effects) error {
		var err error
		if user, err = activeUser(ctx, tx, userID); err != nil {
			return err
		}
		user.AdminRole = models.AdminRoleAdmin
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	id.e.logger.Warn("Promoted user to platform admin", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}
