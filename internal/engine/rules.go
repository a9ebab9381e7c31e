package engine

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// RuleRegistry manages site-wide and sphere rules. A rule keeps its business key
// across edits: an edit retires the active version and inserts a new one, so bans
// and moderated content keep pointing at the text that applied at the time.
type RuleRegistry struct {
	e *Engine
}

// NewRule describes a rule to insert. A null SphereID makes it site-wide.
type NewRule struct {
	SphereID    sql.NullInt64
	Priority    int16
	Title       string
	Description string
}

// RuleEdit replaces the priority and text of a rule
type RuleEdit struct {
	Priority    int16
	Title       string
	Description string
}

func validateRuleText(sphereID sql.NullInt64, priority int16, title, description string) error {
	if priority < 0 {
		return apperr.Validationf("priority must not be negative")
	}
	if title == "" || len(title) > models.MaxRuleTitleLength {
		return apperr.Validationf("rule title must be 1 to %d characters", models.MaxRuleTitleLength)
	}
	if len(description) > models.MaxRuleDescriptionLength {
		return apperr.Validationf("rule description exceeds %d characters", models.MaxRuleDescriptionLength)
	}
	if !sphereID.Valid && !models.IsBaseRuleTitle(title) {
		return apperr.Validationf("site-wide rule title %q is not one of the base rules", title)
	}
	return nil
}

// requireRuleAuthority checks that actor may edit rules of the scope
func requireRuleAuthority(ctx context.Context, tx store.Tx, actor *models.User, sphereID sql.NullInt64) error {
	if !sphereID.Valid {
		return requireAdmin(actor)
	}
	if _, err := getSphere(ctx, tx, sphereID.Int64); err != nil {
		return err
	}
	return requirePermission(ctx, tx, actor, sphereID.Int64, models.PermissionManage)
}

// slotFree fails with a ConflictError when an active rule holds the slot
func slotFree(ctx context.Context, tx store.Tx, sphereID sql.NullInt64, priority int16) error {
	holder, err := tx.Rules().GetActiveBySlot(ctx, sphereID, priority)
	if err != nil {
		return err
	}
	if holder != nil {
		return apperr.Conflictf("priority %d is taken by rule %s", priority, holder.RuleKey)
	}
	return nil
}

// InsertRule adds a rule under a new business key
func (r *RuleRegistry) InsertRule(ctx context.Context, actorID int64, in NewRule) (*models.Rule, error) {
	if err := validateRuleText(in.SphereID, in.Priority, in.Title, in.Description); err != nil {
		return nil, err
	}

	var rule *models.Rule
	err := r.e.write(ctx, "insert_rule", []store.LockKey{store.RuleSlotKey(in.SphereID, in.Priority)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if err := requireRuleAuthority(ctx, tx, actor, in.SphereID); err != nil {
			return err
		}
		if err := slotFree(ctx, tx, in.SphereID, in.Priority); err != nil {
			return err
		}
		rule = &models.Rule{
			RuleKey:     uuid.NewString(),
			SphereID:    in.SphereID,
			Priority:    in.Priority,
			Title:       in.Title,
			Description: in.Description,
			AuthorID:    actorID,
			CreatedAt:   r.e.now(),
		}
		return tx.Rules().Create(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	r.e.logger.Info("Inserted rule", logging.Actor(actorID), zap.String("rule_key", rule.RuleKey), zap.Int16("priority", rule.Priority))
	return rule, nil
}

// activeRuleScope finds the scope of a rule's active version before locking
func (r *RuleRegistry) activeRuleScope(ctx context.Context, ruleKey string) (sql.NullInt64, error) {
	var scope sql.NullInt64
	err := r.e.store.View(ctx, func(tx store.Tx) error {
		rule, err := tx.Rules().GetActiveByKey(ctx, ruleKey)
		if err != nil {
			return err
		}
		if rule == nil {
			return apperr.NotFoundf("rule %s", ruleKey)
		}
		scope = rule.SphereID
		return nil
	})
	return scope, err
}

// UpdateRule retires the active version of a rule and inserts its successor under the same key
func (r *RuleRegistry) UpdateRule(ctx context.Context, actorID int64, ruleKey string, in RuleEdit) (*models.Rule, error) {
	scope, err := r.activeRuleScope(ctx, ruleKey)
	if err != nil {
		return nil, err
	}
	if err := validateRuleText(scope, in.Priority, in.Title, in.Description); err != nil {
		return nil, err
	}

	var next *models.Rule
	keys := []store.LockKey{store.RuleVersionKey(ruleKey), store.RuleSlotKey(scope, in.Priority)}
	err = r.e.write(ctx, "update_rule", keys, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		current, err := tx.Rules().GetActiveByKey(ctx, ruleKey)
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.NotFoundf("rule %s", ruleKey)
		}
		if err := requireRuleAuthority(ctx, tx, actor, current.SphereID); err != nil {
			return err
		}
		if current.Priority != in.Priority {
			if err := slotFree(ctx, tx, current.SphereID, in.Priority); err != nil {
				return err
			}
		}

		now := r.e.now()
		current.RetiredAt = sql.NullTime{Time: now, Valid: true}
		if err := tx.Rules().Update(ctx, current); err != nil {
			return err
		}
		next = &models.Rule{
			RuleKey:     ruleKey,
			SphereID:    current.SphereID,
			Priority:    in.Priority,
			Title:       in.Title,
			Description: in.Description,
			AuthorID:    actorID,
			CreatedAt:   now,
		}
		return tx.Rules().Create(ctx, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// RetireRule retires the active version of a rule
func (r *RuleRegistry) RetireRule(ctx context.Context, actorID int64, ruleKey string) error {
	return r.e.write(ctx, "retire_rule", []store.LockKey{store.RuleVersionKey(ruleKey)}, func(tx store.Tx, fx *effects) error {
		actor, err := activeUser(ctx, tx, actorID)
		if err != nil {
			return err
		}
		rule, err := tx.Rules().GetActiveByKey(ctx, ruleKey)
		if err != nil {
			return err
		}
		if rule == nil {
			return apperr.NotFoundf("rule %s", ruleKey)
		}
		if err := requireRuleAuthority(ctx, tx, actor, rule.SphereID); err != nil {
			return err
		}
		rule.RetiredAt = sql.NullTime{Time: r.e.now(), Valid: true}
		return tx.Rules().Update(ctx, rule)
	})
}

// ListRules returns the active site-wide rules followed by the sphere's, each by priority
func (r *RuleRegistry) ListRules(ctx context.Context, sphereID int64) ([]*models.Rule, error) {
	var rules []*models.Rule
	err := r.e.read(ctx, "list_rules", func(tx store.Tx) error {
		if _, err := getSphere(ctx, tx, sphereID); err != nil {
			return err
		}
		site, err := tx.Rules().ListActive(ctx, sql.NullInt64{})
		if err != nil {
			return err
		}
		own, err := tx.Rules().ListActive(ctx, sql.NullInt64{Int64: sphereID, Valid: true})
		if err != nil {
			return err
		}
		rules = append(site, own...)
		return nil
	})
	return rules, err
}

// GetRule returns any version of a rule
func (r *RuleRegistry) GetRule(ctx context.Context, ruleID int64) (*models.Rule, error) {
	var rule *models.Rule
	err := r.e.read(ctx, "get_rule", func(tx store.Tx) error {
		var err error
		if rule, err = tx.Rules().GetByID(ctx, ruleID); err != nil {
			return err
		}
		if rule == nil {
			return apperr.NotFoundf("rule %d", ruleID)
		}
		return nil
	})
	return rule, err
}
