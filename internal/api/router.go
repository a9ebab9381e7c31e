package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/community"
	"github.com/sharesphere/spherecore/internal/api/content"
	"github.com/sharesphere/spherecore/internal/api/moderation"
	"github.com/sharesphere/spherecore/internal/api/notify"
	"github.com/sharesphere/spherecore/internal/api/user"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// HealthCheck reports whether one backing service is reachable
type HealthCheck func(ctx context.Context) error

// Router sets up API routes
type Router struct {
	handler  *JSONRPCHandler
	engine   *engine.Engine
	verifier *auth.Verifier
	checks   map[string]HealthCheck
	logger   *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(eng *engine.Engine, verifier *auth.Verifier) *Router {
	router := &Router{
		handler:  NewJSONRPCHandler(),
		engine:   eng,
		verifier: verifier,
		checks:   make(map[string]HealthCheck),
		logger:   logging.WithComponent("api-router"),
	}

	router.registerMethods()

	return router
}

// AddHealthCheck reports the state of a backing service on the health endpoints
func (r *Router) AddHealthCheck(name string, check HealthCheck) {
	r.checks[name] = check
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	engine.POST("/", auth.Middleware(r.verifier), r.handler.Handle)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	// Sphere API
	spheres := community.NewSphereAPI(r.engine.Spheres)

	r.handler.RegisterMethod("sphere.create_sphere", spheres.CreateSphere)
	r.handler.RegisterMethod("sphere.update_sphere", spheres.UpdateSphere)
	r.handler.RegisterMethod("sphere.get_sphere", spheres.GetSphere)
	r.handler.RegisterMethod("sphere.create_satellite", spheres.CreateSatellite)
	r.handler.RegisterMethod("sphere.disable_satellite", spheres.DisableSatellite)
	r.handler.RegisterMethod("sphere.create_category", spheres.CreateCategory)
	r.handler.RegisterMethod("sphere.delete_category", spheres.DeleteCategory)
	r.handler.RegisterMethod("sphere.subscribe", spheres.Subscribe)
	r.handler.RegisterMethod("sphere.unsubscribe", spheres.Unsubscribe)

	// Content API
	posts := content.NewPostsAPI(r.engine)
	votes := content.NewVotesAPI(r.engine.Votes)

	r.handler.RegisterMethod("content.create_post", posts.CreatePost)
	r.handler.RegisterMethod("content.create_comment", posts.CreateComment)
	r.handler.RegisterMethod("content.edit_post", posts.EditPost)
	r.handler.RegisterMethod("content.edit_comment", posts.EditComment)
	r.handler.RegisterMethod("content.delete_post", posts.DeletePost)
	r.handler.RegisterMethod("content.delete_comment", posts.DeleteComment)
	r.handler.RegisterMethod("content.pin_post", posts.PinPost)
	r.handler.RegisterMethod("content.pin_comment", posts.PinComment)
	r.handler.RegisterMethod("content.get_post", posts.GetPost)
	r.handler.RegisterMethod("content.get_ranked_posts", posts.GetRankedPosts)
	r.handler.RegisterMethod("content.get_subscribed_posts", posts.GetSubscribedPosts)
	r.handler.RegisterMethod("content.list_comments", posts.ListComments)
	r.handler.RegisterMethod("content.cast_vote", votes.CastVote)
	r.handler.RegisterMethod("content.retract_vote", votes.RetractVote)
	r.handler.RegisterMethod("content.get_vote", votes.GetVote)

	// Moderation API
	roles := moderation.NewRolesAPI(r.engine.Roles)
	rules := moderation.NewRulesAPI(r.engine.Rules)
	mod := moderation.NewModerationAPI(r.engine)

	r.handler.RegisterMethod("moderation.grant_role", roles.GrantRole)
	r.handler.RegisterMethod("moderation.revoke_role", roles.RevokeRole)
	r.handler.RegisterMethod("moderation.transfer_lead", roles.TransferLead)
	r.handler.RegisterMethod("moderation.list_roles", roles.ListRoles)
	r.handler.RegisterMethod("moderation.get_permission", roles.GetPermission)
	r.handler.RegisterMethod("moderation.insert_rule", rules.InsertRule)
	r.handler.RegisterMethod("moderation.update_rule", rules.UpdateRule)
	r.handler.RegisterMethod("moderation.retire_rule", rules.RetireRule)
	r.handler.RegisterMethod("moderation.list_rules", rules.ListRules)
	r.handler.RegisterMethod("moderation.get_rule", rules.GetRule)
	r.handler.RegisterMethod("moderation.moderate_content", mod.ModerateContent)
	r.handler.RegisterMethod("moderation.issue_ban", mod.IssueBan)
	r.handler.RegisterMethod("moderation.revoke_ban", mod.RevokeBan)
	r.handler.RegisterMethod("moderation.ban_status", mod.BanStatus)
	r.handler.RegisterMethod("moderation.list_bans", mod.ListBans)

	// Notification API
	notes := notify.NewNotifyAPI(r.engine.Notifications)

	r.handler.RegisterMethod("notify.list_notifications", notes.ListNotifications)
	r.handler.RegisterMethod("notify.mark_read", notes.MarkRead)
	r.handler.RegisterMethod("notify.mark_all_read", notes.MarkAllRead)
	r.handler.RegisterMethod("notify.unread_count", notes.UnreadCount)

	// User API
	users := user.NewUserAPI(r.engine.Users, r.verifier)

	r.handler.RegisterMethod("user.create_user", users.CreateUser)
	r.handler.RegisterMethod("user.get_user", users.GetUser)
	r.handler.RegisterMethod("user.delete_user", users.DeleteUser)
	r.handler.RegisterMethod("user.set_admin_role", users.SetAdminRole)

	r.logger.Debug("Registered JSON-RPC methods", zap.Int("count", r.handler.Methods()))
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	services := gin.H{}
	for _, name := range names {
		if err := r.checks[name](c.Request.Context()); err != nil {
			r.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
			services[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		services[name] = "OK"
	}

	body := gin.H{
		"status":  "OK",
		"service": "spherecore-api",
	}
	if len(services) > 0 {
		body["services"] = services
	}
	if status != http.StatusOK {
		body["status"] = "DEGRADED"
	}
	c.JSON(status, body)
}
