package moderation

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
)

// RulesAPI provides rule registry methods
type RulesAPI struct {
	rules *engine.RuleRegistry
}

// NewRulesAPI creates a new rules API
func NewRulesAPI(rules *engine.RuleRegistry) *RulesAPI {
	return &RulesAPI{rules: rules}
}

type ruleTextParams struct {
	Priority    int16  `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// InsertRule handles moderation.insert_rule. Without sphere_id the rule is site-wide.
func (a *RulesAPI) InsertRule(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		SphereID *int64 `json:"sphere_id"`
		ruleTextParams
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Title == "" {
		return nil, params.Missing("title")
	}

	rule, err := a.rules.InsertRule(ctx.Request.Context(), actorID, engine.NewRule{
		SphereID:    params.NullInt(p.SphereID),
		Priority:    p.Priority,
		Title:       p.Title,
		Description: p.Description,
	})
	if err != nil {
		return nil, err
	}
	return objects.Rule(rule), nil
}

// UpdateRule handles moderation.update_rule
func (a *RulesAPI) UpdateRule(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		RuleKey string `json:"rule_key"`
		ruleTextParams
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.RuleKey == "" {
		return nil, params.Missing("rule_key")
	}

	rule, err := a.rules.UpdateRule(ctx.Request.Context(), actorID, p.RuleKey, engine.RuleEdit{
		Priority:    p.Priority,
		Title:       p.Title,
		Description: p.Description,
	})
	if err != nil {
		return nil, err
	}
	return objects.Rule(rule), nil
}

// RetireRule handles moderation.retire_rule
func (a *RulesAPI) RetireRule(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	actorID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		RuleKey string `json:"rule_key"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.RuleKey == "" {
		return nil, params.Missing("rule_key")
	}

	if err := a.rules.RetireRule(ctx.Request.Context(), actorID, p.RuleKey); err != nil {
		return nil, err
	}
	return map[string]interface{}{"rule_key": p.RuleKey, "retired": true}, nil
}

// ListRules handles moderation.list_rules
func (a *RulesAPI) ListRules(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		SphereID int64 `json:"sphere_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	rules, err := a.rules.ListRules(ctx.Request.Context(), p.SphereID)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]interface{}, 0, len(rules))
	for _, r := range rules {
		result = append(result, objects.Rule(r))
	}
	return result, nil
}

// GetRule handles moderation.get_rule. Retired versions are returned too, so
// bans and moderated content can show the rule they cited.
func (a *RulesAPI) GetRule(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		RuleID int64 `json:"rule_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.RuleID == 0 {
		return nil, params.Missing("rule_id")
	}

	rule, err := a.rules.GetRule(ctx.Request.Context(), p.RuleID)
	if err != nil {
		return nil, err
	}
	return objects.Rule(rule), nil
}
