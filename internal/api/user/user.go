// Package user implements the user.* methods.
package user

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/internal/models"
)

// UserAPI provides account methods
type UserAPI struct {
	users    *engine.Identity
	verifier *auth.Verifier
}

// NewUserAPI creates a new user API. Created users receive a token from verifier.
func NewUserAPI(users *engine.Identity, verifier *auth.Verifier) *UserAPI {
	return &UserAPI{users: users, verifier: verifier}
}

type createUserParams struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Email    string `json:"email"`
	ShowNSFW bool   `json:"show_nsfw"`
}

// CreateUser handles user.create_user. It is called by the identity front end
// once the provider login has been exchanged, so it needs no bearer token.
func (a *UserAPI) CreateUser(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p createUserParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Subject == "" {
		return nil, params.Missing("subject")
	}
	if p.Username == "" {
		return nil, params.Missing("username")
	}

	u, err := a.users.CreateUser(ctx.Request.Context(), engine.NewUser{
		Subject:  p.Subject,
		Username: p.Username,
		Email:    p.Email,
		ShowNSFW: p.ShowNSFW,
	})
	if err != nil {
		return nil, err
	}
	token, err := a.verifier.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	obj := objects.User(u)
	obj["token"] = token
	return obj, nil
}

// GetUser handles user.get_user for user_id, or for the caller when absent
func (a *UserAPI) GetUser(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		UserID int64 `json:"user_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.UserID == 0 {
		callerID, err := auth.UserID(ctx)
		if err != nil {
			return nil, err
		}
		p.UserID = callerID
	}

	u, err := a.users.GetUser(ctx.Request.Context(), p.UserID)
	if err != nil {
		return nil, err
	}
	return objects.User(u), nil
}

// DeleteUser handles user.delete_user. Without user_id the caller deletes themselves.
func (a *UserAPI) DeleteUser(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		UserID int64 `json:"user_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.UserID == 0 {
		p.UserID = actorID
	}

	if err := a.users.DeleteUser(ctx.Request.Context(), actorID, p.UserID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"user_id": p.UserID, "deleted": true}, nil
}

// SetAdminRole handles user.set_admin_role
func (a *UserAPI) SetAdminRole(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		UserID int64             `json:"user_id"`
		Role   *models.AdminRole `json:"role"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.UserID == 0 {
		return nil, params.Missing("user_id")
	}
	if p.Role == nil {
		return nil, params.Missing("role")
	}

	if err := a.users.SetAdminRole(ctx.Request.Context(), actorID, p.UserID, *p.Role); err != nil {
		return nil, err
	}
	return map[string]interface{}{"user_id": p.UserID, "admin_role": p.Role.String()}, nil
}
