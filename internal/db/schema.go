package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// Tables lists every persisted model in dependency order
var Tables = []interface{}{
	&models.User{},
	&models.Sphere{},
	&models.Satellite{},
	&models.Category{},
	&models.Subscription{},
	&models.RoleGrant{},
	&models.Rule{},
	&models.Post{},
	&models.Comment{},
	&models.Vote{},
	&models.Ban{},
	&models.Notification{},
}

// partialIndexes hold the uniqueness invariants that only apply to active rows.
// These are the final arbiter under concurrent writers.
const partialIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS users_username_ux
    ON users (normalized_username) WHERE delete_timestamp IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS users_email_ux
    ON users (lower(email)) WHERE delete_timestamp IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS satellites_name_ux
    ON satellites (sphere_id, lower(satellite_name)) WHERE disable_timestamp IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS sphere_categories_name_ux
    ON sphere_categories (sphere_id, lower(category_name)) WHERE delete_timestamp IS NULL;

-- one active grant per (user, sphere), one active leader per sphere
CREATE UNIQUE INDEX IF NOT EXISTS user_sphere_roles_active_ux
    ON user_sphere_roles (user_id, sphere_id) WHERE delete_timestamp IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS user_sphere_roles_lead_ux
    ON user_sphere_roles (sphere_id) WHERE delete_timestamp IS NULL AND permission_level = 4;

-- site-wide rules share slot 0
CREATE UNIQUE INDEX IF NOT EXISTS rules_key_active_ux
    ON rules (rule_key) WHERE delete_timestamp IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS rules_slot_active_ux
    ON rules (COALESCE(sphere_id, 0), priority) WHERE delete_timestamp IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS votes_ux
    ON votes (post_id, COALESCE(comment_id, 0), user_id);

CREATE INDEX IF NOT EXISTS posts_hot_idx ON posts (sphere_id, recommended_score DESC, post_id DESC)
    WHERE delete_timestamp IS NULL;
CREATE INDEX IF NOT EXISTS posts_trending_idx ON posts (sphere_id, trending_score DESC, post_id DESC)
    WHERE delete_timestamp IS NULL;
CREATE INDEX IF NOT EXISTS user_bans_scope_idx ON user_bans (user_id, sphere_id, create_timestamp DESC)
    WHERE delete_timestamp IS NULL;
`

// constraint is a named table constraint; Postgres has no ADD CONSTRAINT IF NOT EXISTS
type constraint struct {
	table string
	name  string
	def   string
}

// constraints pin denormalized references together: a post's satellite and category
// must share its sphere, a comment's parent and a vote's comment must share its post.
var constraints = []constraint{
	{"satellites", "satellites_sphere_uq", "UNIQUE (satellite_id, sphere_id)"},
	{"satellites", "satellites_sphere_fk", "FOREIGN KEY (sphere_id) REFERENCES spheres (sphere_id)"},
	{"sphere_categories", "sphere_categories_sphere_uq", "UNIQUE (category_id, sphere_id)"},
	{"sphere_categories", "sphere_categories_sphere_fk", "FOREIGN KEY (sphere_id) REFERENCES spheres (sphere_id)"},
	{"sphere_subscriptions", "sphere_subscriptions_user_fk", "FOREIGN KEY (user_id) REFERENCES users (user_id)"},
	{"sphere_subscriptions", "sphere_subscriptions_sphere_fk", "FOREIGN KEY (sphere_id) REFERENCES spheres (sphere_id)"},
	{"user_sphere_roles", "user_sphere_roles_user_fk", "FOREIGN KEY (user_id) REFERENCES users (user_id)"},
	{"user_sphere_roles", "user_sphere_roles_sphere_fk", "FOREIGN KEY (sphere_id) REFERENCES spheres (sphere_id)"},
	{"user_sphere_roles", "user_sphere_roles_level_ck", "CHECK (permission_level BETWEEN 0 AND 4)"},
	{"rules", "rules_sphere_fk", "FOREIGN KEY (sphere_id) REFERENCES spheres (sphere_id)"},
	{"posts", "posts_sphere_fk", "FOREIGN KEY (sphere_id) REFERENCES spheres (sphere_id)"},
	{"posts", "posts_creator_fk", "FOREIGN KEY (creator_id) REFERENCES users (user_id)"},
	{"posts", "posts_satellite_fk", "FOREIGN KEY (satellite_id, sphere_id) REFERENCES satellites (satellite_id, sphere_id)"},
	{"posts", "posts_category_fk", "FOREIGN KEY (category_id, sphere_id) REFERENCES sphere_categories (category_id, sphere_id)"},
	{"posts", "posts_rule_fk", "FOREIGN KEY (infringed_rule_id) REFERENCES rules (rule_id)"},
	{"posts", "posts_link_type_ck", "CHECK (link_type BETWEEN 0 AND 4)"},
	{"comments", "comments_post_uq", "UNIQUE (comment_id, post_id)"},
	{"comments", "comments_post_fk", "FOREIGN KEY (post_id) REFERENCES posts (post_id)"},
	{"comments", "comments_parent_fk", "FOREIGN KEY (parent_id, post_id) REFERENCES comments (comment_id, post_id)"},
	{"comments", "comments_rule_fk", "FOREIGN KEY (infringed_rule_id) REFERENCES rules (rule_id)"},
	{"votes", "votes_post_fk", "FOREIGN KEY (post_id) REFERENCES posts (post_id)"},
	{"votes", "votes_comment_fk", "FOREIGN KEY (comment_id, post_id) REFERENCES comments (comment_id, post_id)"},
	{"votes", "votes_user_fk", "FOREIGN KEY (user_id) REFERENCES users (user_id)"},
	{"votes", "votes_value_ck", "CHECK (value IN (-1, 1))"},
	{"user_bans", "user_bans_user_fk", "FOREIGN KEY (user_id) REFERENCES users (user_id)"},
	{"user_bans", "user_bans_sphere_fk", "FOREIGN KEY (sphere_id) REFERENCES spheres (sphere_id)"},
	{"user_bans", "user_bans_post_fk", "FOREIGN KEY (post_id) REFERENCES posts (post_id)"},
	{"user_bans", "user_bans_rule_fk", "FOREIGN KEY (infringed_rule_id) REFERENCES rules (rule_id)"},
	{"notifications", "notifications_post_fk", "FOREIGN KEY (post_id) REFERENCES posts (post_id)"},
	{"notifications", "notifications_user_fk", "FOREIGN KEY (user_id) REFERENCES users (user_id)"},
}

// Migrate creates the tables, the partial unique indexes and the cross-table constraints
func (d *DB) Migrate(ctx context.Context) error {
	logger := logging.WithComponent("schema")
	db := d.DB.WithContext(ctx)

	if err := db.AutoMigrate(Tables...); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	if err := db.Exec(partialIndexes).Error; err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	for _, c := range constraints {
		var exists bool
		if err := db.Raw("SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)", c.name).
			Scan(&exists).Error; err != nil {
			return fmt.Errorf("failed to inspect constraint %s: %w", c.name, err)
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", c.table, c.name, c.def)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add constraint %s: %w", c.name, err)
		}
		logger.Debug("Added constraint", zap.String("table", c.table), zap.String("constraint", c.name))
	}

	logger.Info("Schema is up to date", zap.Int("tables", len(Tables)))
	return nil
}
