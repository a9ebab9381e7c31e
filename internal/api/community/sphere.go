// Package community implements the sphere.* methods.
package community

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
)

// SphereAPI provides sphere, satellite and category methods
type SphereAPI struct {
	spheres *engine.Communities
}

// NewSphereAPI creates a new sphere API
func NewSphereAPI(spheres *engine.Communities) *SphereAPI {
	return &SphereAPI{spheres: spheres}
}

type createSphereParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsNSFW      bool   `json:"is_nsfw"`
}

// CreateSphere handles sphere.create_sphere
func (a *SphereAPI) CreateSphere(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p createSphereParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, params.Missing("name")
	}

	sphere, err := a.spheres.CreateSphere(ctx.Request.Context(), userID, engine.NewSphere{
		Name:        p.Name,
		Description: p.Description,
		IsNSFW:      p.IsNSFW,
	})
	if err != nil {
		return nil, err
	}
	return objects.Sphere(sphere), nil
}

type updateSphereParams struct {
	SphereID    int64   `json:"sphere_id"`
	Description *string `json:"description"`
	IsNSFW      *bool   `json:"is_nsfw"`
}

// UpdateSphere handles sphere.update_sphere
func (a *SphereAPI) UpdateSphere(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p updateSphereParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	sphere, err := a.spheres.UpdateSphere(ctx.Request.Context(), userID, p.SphereID, engine.SphereUpdate{
		Description: p.Description,
		IsNSFW:      p.IsNSFW,
	})
	if err != nil {
		return nil, err
	}
	return objects.Sphere(sphere), nil
}

// GetSphere handles sphere.get_sphere
func (a *SphereAPI) GetSphere(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, params.Missing("name")
	}

	details, err := a.spheres.GetSphere(ctx.Request.Context(), p.Name)
	if err != nil {
		return nil, err
	}
	return objects.SphereContext(details.Sphere, details.Satellites, details.Categories), nil
}

type createSatelliteParams struct {
	SphereID   int64  `json:"sphere_id"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	IsRichText bool   `json:"is_rich_text"`
	IsNSFW     bool   `json:"is_nsfw"`
	IsSpoiler  bool   `json:"is_spoiler"`
}

// CreateSatellite handles sphere.create_satellite
func (a *SphereAPI) CreateSatellite(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p createSatelliteParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	sat, err := a.spheres.CreateSatellite(ctx.Request.Context(), userID, engine.NewSatellite{
		SphereID:   p.SphereID,
		Name:       p.Name,
		Body:       p.Body,
		IsRichText: p.IsRichText,
		IsNSFW:     p.IsNSFW,
		IsSpoiler:  p.IsSpoiler,
	})
	if err != nil {
		return nil, err
	}
	return objects.Satellite(sat), nil
}

// DisableSatellite handles sphere.disable_satellite
func (a *SphereAPI) DisableSatellite(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		SatelliteID int64 `json:"satellite_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SatelliteID == 0 {
		return nil, params.Missing("satellite_id")
	}

	if err := a.spheres.DisableSatellite(ctx.Request.Context(), userID, p.SatelliteID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"satellite_id": p.SatelliteID, "disabled": true}, nil
}

type createCategoryParams struct {
	SphereID    int64  `json:"sphere_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       int16  `json:"color"`
}

// CreateCategory handles sphere.create_category
func (a *SphereAPI) CreateCategory(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p createCategoryParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	cat, err := a.spheres.CreateCategory(ctx.Request.Context(), userID, engine.NewCategory{
		SphereID:    p.SphereID,
		Name:        p.Name,
		Description: p.Description,
		Color:       p.Color,
	})
	if err != nil {
		return nil, err
	}
	return objects.Category(cat), nil
}

// DeleteCategory handles sphere.delete_category
func (a *SphereAPI) DeleteCategory(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		CategoryID int64 `json:"category_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.CategoryID == 0 {
		return nil, params.Missing("category_id")
	}

	if err := a.spheres.DeleteCategory(ctx.Request.Context(), userID, p.CategoryID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"category_id": p.CategoryID, "deleted": true}, nil
}

type membershipParams struct {
	SphereID int64 `json:"sphere_id"`
}

// Subscribe handles sphere.subscribe
func (a *SphereAPI) Subscribe(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.membership(ctx, raw, true)
}

// Unsubscribe handles sphere.unsubscribe
func (a *SphereAPI) Unsubscribe(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.membership(ctx, raw, false)
}

func (a *SphereAPI) membership(ctx *gin.Context, raw json.RawMessage, subscribe bool) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p membershipParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	if subscribe {
		err = a.spheres.Subscribe(ctx.Request.Context(), userID, p.SphereID)
	} else {
		err = a.spheres.Unsubscribe(ctx.Request.Context(), userID, p.SphereID)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"sphere_id": p.SphereID, "subscribed": subscribe}, nil
}
