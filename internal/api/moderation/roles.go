// Package moderation implements the moderation.* methods: roles, rules,
// moderation marks and bans.
package moderation

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/internal/models"
)

// RolesAPI provides role grant methods
type RolesAPI struct {
	roles *engine.RoleLedger
}

// NewRolesAPI creates a new roles API
func NewRolesAPI(roles *engine.RoleLedger) *RolesAPI {
	return &RolesAPI{roles: roles}
}

type roleParams struct {
	UserID   int64 `json:"user_id"`
	SphereID int64 `json:"sphere_id"`
}

func (p *roleParams) check() error {
	if p.UserID == 0 {
		return params.Missing("user_id")
	}
	if p.SphereID == 0 {
		return params.Missing("sphere_id")
	}
	return nil
}

// GrantRole handles moderation.grant_role
func (a *RolesAPI) GrantRole(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		roleParams
		Level models.PermissionLevel `json:"level"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	grant, err := a.roles.GrantRole(ctx.Request.Context(), actorID, p.UserID, p.SphereID, p.Level)
	if err != nil {
		return nil, err
	}
	return objects.Role(grant), nil
}

// RevokeRole handles moderation.revoke_role
func (a *RolesAPI) RevokeRole(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p roleParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	if err := a.roles.RevokeRole(ctx.Request.Context(), actorID, p.UserID, p.SphereID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"user_id": p.UserID, "sphere_id": p.SphereID, "revoked": true}, nil
}

// TransferLead handles moderation.transfer_lead
func (a *RolesAPI) TransferLead(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p roleParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	grant, err := a.roles.TransferLead(ctx.Request.Context(), actorID, p.UserID, p.SphereID)
	if err != nil {
		return nil, err
	}
	return objects.Role(grant), nil
}

// ListRoles handles moderation.list_roles
func (a *RolesAPI) ListRoles(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		SphereID int64 `json:"sphere_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	grants, err := a.roles.ListRoles(ctx.Request.Context(), p.SphereID)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]interface{}, 0, len(grants))
	for _, g := range grants {
		result = append(result, objects.Role(g))
	}
	return result, nil
}

// GetPermission handles moderation.get_permission: the effective level of the
// caller, or of user_id when given, in a sphere
func (a *RolesAPI) GetPermission(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	callerID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p roleParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.UserID == 0 {
		p.UserID = callerID
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	level, err := a.roles.Permission(ctx.Request.Context(), p.UserID, p.SphereID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"user_id": p.UserID, "sphere_id": p.SphereID, "level": level.String()}, nil
}
