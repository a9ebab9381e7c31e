package moderation

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/internal/models"
)

// ModerationAPI provides moderation marks and ban methods
type ModerationAPI struct {
	moderation *engine.Moderation
	bans       *engine.BanLedger
	loader     *objects.PostLoader
}

// NewModerationAPI creates a new moderation API
func NewModerationAPI(eng *engine.Engine) *ModerationAPI {
	return &ModerationAPI{
		moderation: eng.Moderation,
		bans:       eng.Bans,
		loader:     objects.NewPostLoader(eng.Users),
	}
}

type banOrderParams struct {
	SiteWide bool       `json:"site_wide"`
	Until    *time.Time `json:"until"`
}

type moderateParams struct {
	PostID    int64           `json:"post_id"`
	CommentID *int64          `json:"comment_id"`
	RuleID    int64           `json:"rule_id"`
	Message   string          `json:"message"`
	Ban       *banOrderParams `json:"ban"`
}

// ModerateContent handles moderation.moderate_content. An optional ban is issued
// against the author in the same transaction.
func (a *ModerationAPI) ModerateContent(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p moderateParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID == 0 {
		return nil, params.Missing("post_id")
	}
	if p.RuleID == 0 {
		return nil, params.Missing("rule_id")
	}

	in := engine.ModerationAction{
		PostID:    p.PostID,
		CommentID: params.NullInt(p.CommentID),
		RuleID:    p.RuleID,
		Message:   p.Message,
	}
	if p.Ban != nil {
		in.Ban = &engine.BanOrder{SiteWide: p.Ban.SiteWide, ExpiresAt: params.NullTime(p.Ban.Until)}
	}
	res, err := a.moderation.ModerateContent(ctx.Request.Context(), actorID, in)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{"ban": nil}
	if res.Comment != nil {
		comments, err := a.loader.LoadComments(ctx.Request.Context(), []*models.Comment{res.Comment})
		if err != nil {
			return nil, err
		}
		result["comment"] = comments[0]
	} else {
		post, err := a.loader.LoadPost(ctx.Request.Context(), res.Post)
		if err != nil {
			return nil, err
		}
		result["post"] = post
	}
	if res.Ban != nil {
		result["ban"] = objects.Ban(res.Ban)
	}
	return result, nil
}

type issueBanParams struct {
	UserID    int64      `json:"user_id"`
	SphereID  *int64     `json:"sphere_id"`
	PostID    int64      `json:"post_id"`
	CommentID *int64     `json:"comment_id"`
	RuleID    int64      `json:"rule_id"`
	Until     *time.Time `json:"until"`
}

// IssueBan handles moderation.issue_ban. Without sphere_id the ban is site-wide;
// without until it is permanent.
func (a *ModerationAPI) IssueBan(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p issueBanParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	switch {
	case p.UserID == 0:
		return nil, params.Missing("user_id")
	case p.PostID == 0:
		return nil, params.Missing("post_id")
	case p.RuleID == 0:
		return nil, params.Missing("rule_id")
	}

	ban, err := a.bans.IssueBan(ctx.Request.Context(), actorID, engine.NewBan{
		UserID:    p.UserID,
		SphereID:  params.NullInt(p.SphereID),
		PostID:    p.PostID,
		CommentID: params.NullInt(p.CommentID),
		RuleID:    p.RuleID,
		ExpiresAt: params.NullTime(p.Until),
	})
	if err != nil {
		return nil, err
	}
	return objects.Ban(ban), nil
}

// RevokeBan handles moderation.revoke_ban
func (a *ModerationAPI) RevokeBan(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		BanID int64 `json:"ban_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.BanID == 0 {
		return nil, params.Missing("ban_id")
	}

	if err := a.bans.RevokeBan(ctx.Request.Context(), actorID, p.BanID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ban_id": p.BanID, "revoked": true}, nil
}

// BanStatus handles moderation.ban_status for the caller, or for user_id when given
func (a *ModerationAPI) BanStatus(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		UserID   int64 `json:"user_id"`
		SphereID int64 `json:"sphere_id"`
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
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	status, err := a.bans.BanStatus(ctx.Request.Context(), p.UserID, p.SphereID, time.Time{})
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{
		"user_id":   p.UserID,
		"sphere_id": p.SphereID,
		"banned":    status.Banned,
		"permanent": status.Permanent,
		"until":     nil,
	}
	if status.Until.Valid {
		result["until"] = status.Until.Time.UTC().Format(time.RFC3339)
	}
	return result, nil
}

// ListBans handles moderation.list_bans: the caller's ban history
func (a *ModerationAPI) ListBans(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	bans, err := a.bans.ListBans(ctx.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]interface{}, 0, len(bans))
	for _, b := range bans {
		result = append(result, objects.Ban(b))
	}
	return result, nil
}
