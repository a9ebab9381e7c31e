package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// Communities manages spheres, satellites, categories and memberships
type Communities struct {
	e *Engine
}

// NewSphere describes a sphere to create
type NewSphere struct {
	Name        string
	Description string
	IsNSFW      bool
}

// SphereUpdate holds the mutable sphere fields; nil leaves a field unchanged
type SphereUpdate struct {
	Description *string
	IsNSFW      *bool
}

// NewSatellite describes a satellite to create
type NewSatellite struct {
	SphereID   int64
	Name       string
	Body       string
	IsRichText bool
	IsNSFW     bool
	IsSpoiler  bool
}

// NewCategory describes a category to create
type NewCategory struct {
	SphereID    int64
	Name        string
	Description string
	Color       int16
}

// SphereDetails is a sphere with its active satellites and categories
type SphereDetails struct {
	Sphere     *models.Sphere
	Satellites []*models.Satellite
	Categories []*models.Category
}

// searchName replaces word separators so the name tokenizes
func searchName(name string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}

// CreateSphere creates a sphere and makes the creator its leader
func (c *Communities) CreateSphere(ctx context.Context, actorID int64, in NewSphere) (*models.Sphere, error) {
	if in.Name == "" || len(in.Name) > models.MaxSphereNameLength || !namePattern.MatchString(in.Name) {
		return nil, apperr.Validationf("sphere name must be 1 to %d letters, digits, '_' or '-'", models.MaxSphereNameLength)
	}
	if len(in.Description) > models.MaxSphereDescriptionLength {
		return nil, apperr.Validationf("description exceeds %d characters", models.MaxSphereDescriptionLength)
	}

	var sphere *models.Sphere
	err := c.e.write(ctx, "create_sphere", []store.LockKey{store.NameKey("sphere", in.Name)}, func(tx store.Tx, fx *effects) error {
		if _, err := activeUser(ctx, tx, actorID); err != nil {
			return err
		}
		existing, err := tx.Spheres().GetByName(ctx, in.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("sphere %q already exists", in.Name)
		}

		now := c.e.now()
		sphere = &models.Sphere{
			Name:           in.Name,
			NormalizedName: strings.ToLower(in.Name),
			SearchName:     searchName(in.Name),
			Description:    in.Description,
			IsNSFW:         in.IsNSFW,
			CreatorID:      actorID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Spheres().Create(ctx, sphere); err != nil {
			return err
		}
		return tx.Roles().Create(ctx, &models.RoleGrant{
			UserID:    actorID,
			SphereID:  sphere.ID,
			Level:     models.PermissionLead,
			GrantorID: actorID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	c.e.logger.Info("Created sphere", logging.Actor(actorID), logging.Sphere(sphere.ID), zap.String("name", sphere.Name))
	return sphere, nil
}

// UpdateSphere changes the description or NSFW flag. Requires Manage.
func (c *Communities) UpdateSphere(ctx context.Context, actorID, sphereID int64, in SphereUpdate) (*models.Sphere, error) {
	if in.Description != nil && len(*in.Description) > models.MaxSphereDescriptionLength {
		return nil, apperr.Validationf("description exceeds %d characters", models.MaxSphereDescriptionLength)
	}
	var sphere *models.Sphere
	err := c.e.write(ctx, "update_sphere", []store.LockKey{store.SphereKey(sphereID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if sphere, err = getSphere(ctx, tx, sphereID); err != nil {
			return err
		}
		if err := requirePermission(ctx, tx, actor, sphereID, models.PermissionManage); err != nil {
			return err
		}
		if in.Description != nil {
			sphere.Description = *in.Description
		}
		if in.IsNSFW != nil {
			sphere.IsNSFW = *in.IsNSFW
		}
		sphere.UpdatedAt = c.e.now()
		return tx.Spheres().Update(ctx, sphere)
	})
	if err != nil {
		return nil, err
	}
	return sphere, nil
}

// GetSphere returns a sphere by name with its active satellites and categories
func (c *Communities) GetSphere(ctx context.Context, name string) (*SphereDetails, error) {
	details := &SphereDetails{}
	err := c.e.read(ctx, "get_sphere", func(tx store.Tx) error {
		sphere, err := tx.Spheres().GetByName(ctx, name)
		if err != nil {
			return err
		}
		if sphere == nil {
			return apperr.NotFoundf("sphere %q", name)
		}
		details.Sphere = sphere

		satellites, err := tx.Satellites().ListBySphere(ctx, sphere.ID)
		if err != nil {
			return err
		}
		for _, s := range satellites {
			if s.IsActive() {
				details.Satellites = append(details.Satellites, s)
			}
		}
		categories, err := tx.Categories().ListBySphere(ctx, sphere.ID)
		if err != nil {
			return err
		}
		for _, cat := range categories {
			if cat.IsActive() {
				details.Categories = append(details.Categories, cat)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// CreateSatellite creates a satellite in a sphere. Requires Manage.
func (c *Communities) CreateSatellite(ctx context.Context, actorID int64, in NewSatellite) (*models.Satellite, error) {
	if in.Name == "" || len(in.Name) > models.MaxSatelliteNameLength {
		return nil, apperr.Validationf("satellite name must be 1 to %d characters", models.MaxSatelliteNameLength)
	}
	if len(in.Body) > models.MaxBodyLength {
		return nil, apperr.Validationf("body exceeds %d characters", models.MaxBodyLength)
	}

	var satellite *models.Satellite
	keys := []store.LockKey{store.NameKey("satellite", fmt.Sprintf("%d:%s", in.SphereID, in.Name))}
	err := c.e.write(ctx, "create_satellite", keys, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		sphere, err := getSphere(ctx, tx, in.SphereID)
		if err != nil {
			return err
		}
		if err := requirePermission(ctx, tx, actor, sphere.ID, models.PermissionManage); err != nil {
			return err
		}
		satellite = &models.Satellite{
			SphereID:   sphere.ID,
			Name:       in.Name,
			Body:       in.Body,
			IsRichText: in.IsRichText,
			IsNSFW:     in.IsNSFW || sphere.IsNSFW,
			IsSpoiler:  in.IsSpoiler,
			CreatorID:  actorID,
			CreatedAt:  c.e.now(),
		}
		return tx.Satellites().Create(ctx, satellite)
	})
	if err != nil {
		return nil, err
	}
	return satellite, nil
}

// DisableSatellite disables a satellite, freeing its name. Requires Manage.
func (c *Communities) DisableSatellite(ctx context.Context, actorID, satelliteID int64) error {
	return c.e.write(ctx, "disable_satellite", []store.LockKey{store.SatelliteKey(satelliteID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		satellite, err := tx.Satellites().GetByID(ctx, satelliteID)
		if err != nil {
			return err
		}
		if satellite == nil || !satellite.IsActive() {
			return apperr.NotFoundf("satellite %d", satelliteID)
		}
		if err := requirePermission(ctx, tx, actor, satellite.SphereID, models.PermissionManage); err != nil {
			return err
		}
		satellite.DisabledAt = sql.NullTime{Time: c.e.now(), Valid: true}
		fx.touch(satellite.SphereID)
		return tx.Satellites().Update(ctx, satellite)
	})
}

// CreateCategory creates a post category in a sphere. Requires Manage.
func (c *Communities) CreateCategory(ctx context.Context, actorID int64, in NewCategory) (*models.Category, error) {
	if in.Name == "" || len(in.Name) > models.MaxCategoryNameLength {
		return nil, apperr.Validationf("category name must be 1 to %d characters", models.MaxCategoryNameLength)
	}
	if len(in.Description) > models.MaxCategoryDescriptionLength {
		return nil, apperr.Validationf("category description exceeds %d characters", models.MaxCategoryDescriptionLength)
	}

	var category *models.Category
	keys := []store.LockKey{store.NameKey("category", fmt.Sprintf("%d:%s", in.SphereID, in.Name))}
	err := c.e.write(ctx, "create_category", keys, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if _, err := getSphere(ctx, tx, in.SphereID); err != nil {
			return err
		}
		if err := requirePermission(ctx, tx, actor, in.SphereID, models.PermissionManage); err != nil {
			return err
		}
		category = &models.Category{
			SphereID:    in.SphereID,
			Name:        in.Name,
			Description: in.Description,
			Color:       in.Color,
			CreatorID:   actorID,
			CreatedAt:   c.e.now(),
		}
		return tx.Categories().Create(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory retires a category. Requires Manage.
func (c *Communities) DeleteCategory(ctx context.Context, actorID, categoryID int64) error {
	return c.e.write(ctx, "delete_category", []store.LockKey{store.CategoryKey(categoryID)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		category, err := tx.Categories().GetByID(ctx, categoryID)
		if err != nil {
			return err
		}
		if category == nil || !category.IsActive() {
			return apperr.NotFoundf("category %d", categoryID)
		}
		if err := requirePermission(ctx, tx, actor, category.SphereID, models.PermissionManage); err != nil {
			return err
		}
		category.DeletedAt = sql.NullTime{Time: c.e.now(), Valid: true}
		return tx.Categories().Update(ctx, category)
	})
}

// Subscribe adds the user to the sphere's members
func (c *Communities) Subscribe(ctx context.Context, userID, sphereID int64) error {
	keys := []store.LockKey{store.SubscriptionKey(userID, sphereID), store.SphereKey(sphereID)}
	return c.e.write(ctx, "subscribe", keys, func(tx store.Tx, fx *effects) error {
		if _, err := activeUser(ctx, tx, userID); err != nil {
			return err
		}
		sphere, err := getSphere(ctx, tx, sphereID)
		if err != nil {
			return err
		}
		existing, err := tx.Subscriptions().Get(ctx, userID, sphereID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("user %d is already subscribed to sphere %d", userID, sphereID)
		}
		if err := tx.Subscriptions().Create(ctx, &models.Subscription{
			UserID:    userID,
			SphereID:  sphereID,
			CreatedAt: c.e.now(),
		}); err != nil {
			return err
		}
		sphere.MemberCount++
		return tx.Spheres().Update(ctx, sphere)
	})
}

// Unsubscribe removes the user from the sphere's members
func (c *Communities) Unsubscribe(ctx context.Context, userID, sphereID int64) error {
	keys := []store.LockKey{store.SubscriptionKey(userID, sphereID), store.SphereKey(sphereID)}
	return c.e.write(ctx, "unsubscribe", keys, func(tx store.Tx, fx *effects) error {
		sub, err := tx.Subscriptions().Get(ctx, userID, sphereID)
		if err != nil {
			return err
		}
		if sub == nil {
			return apperr.NotFoundf("subscription of user %d to sphere %d", userID, sphereID)
		}
		sphere, err := getSphere(ctx, tx, sphereID)
		if err != nil {
			return err
		}
		if err := tx.Subscriptions().Delete(ctx, sub); err != nil {
			return err
		}
		if sphere.MemberCount > 0 {
			sphere.MemberCount--
		}
		return tx.Spheres().Update(ctx, sphere)
	})
}
