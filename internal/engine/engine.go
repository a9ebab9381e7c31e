// Package engine implements the ShareSphere operations on top of a store.Store.
//
// Every mutating operation runs in one store transaction holding the lock keys of
// the rows and uniqueness partitions it touches. Side effects that leave the
// process (Kafka notifications, listing cache invalidation) run only after commit.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/events"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/logging"
	"github.com/sharesphere/spherecore/pkg/telemetry"
)

const (
	defaultListLimit      = 25
	maxListLimit          = 100
	defaultPublishTimeout = 2 * time.Second
)

// ListingCache caches ranked listings under a per-sphere version
type ListingCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}) error
	SphereVersion(ctx context.Context, sphereID int64) (int64, error)
	BumpSphere(ctx context.Context, sphereID int64) error
}

// Engine groups the ledgers sharing one store
type Engine struct {
	store     store.Store
	now       func() time.Time
	publisher events.Publisher
	cache     ListingCache
	logger    *zap.Logger

	defaultLimit   int
	maxLimit       int
	publishTimeout time.Duration

	Users         *Identity
	Spheres       *Communities
	Roles         *RoleLedger
	Rules         *RuleRegistry
	Content       *ContentLedger
	Votes         *VoteLedger
	Moderation    *Moderation
	Bans          *BanLedger
	Notifications *Notifier
	Ranking       *Ranking
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets the notification publisher
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithCache enables the ranked listing cache
func WithCache(c ListingCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithListLimits sets the default and maximum page sizes of listings
func WithListLimits(defaultLimit, maxLimit int) Option {
	return func(e *Engine) {
		if defaultLimit > 0 {
			e.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			e.maxLimit = maxLimit
		}
	}
}

// WithPublishTimeout bounds how long a committed write waits on the publisher
func WithPublishTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.publishTimeout = d
		}
	}
}

// New creates an Engine over s
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		now:            func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		publisher:      events.NopPublisher{},
		defaultLimit:   defaultListLimit,
		maxLimit:       maxListLimit,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.WithComponent("engine")
	}

	e.Users = &Identity{e: e}
	e.Spheres = &Communities{e: e}
	e.Roles = &RoleLedger{e: e}
	e.Rules = &RuleRegistry{e: e}
	e.Content = &ContentLedger{e: e}
	e.Votes = &VoteLedger{e: e}
	e.Moderation = &Moderation{e: e}
	e.Bans = &BanLedger{e: e}
	e.Notifications = &Notifier{e: e}
	e.Ranking = &Ranking{e: e}
	return e
}

// effects collects what must happen once a transaction has committed
type effects struct {
	notifications []*models.Notification
	spheres       map[int64]struct{}
}

func (fx *effects) notify(n *models.Notification) {
	fx.notifications = append(fx.notifications, n)
}

// persist stores the collected notifications in the transaction that produced them
func (fx *effects) persist(ctx context.Context, tx store.Tx) error {
	for _, n := range fx.notifications {
		if err := tx.Notifications().Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// touch marks the listings of a sphere stale
func (fx *effects) touch(sphereID int64) {
	if fx.spheres == nil {
		fx.spheres = make(map[int64]struct{})
	}
	fx.spheres[sphereID] = struct{}{}
}

// write runs fn in a transaction holding keys and applies its effects after commit
func (e *Engine) write(ctx context.Context, op string, keys []store.LockKey, fn func(tx store.Tx, fx *effects) error) error {
	ctx, span := telemetry.StartSpan(ctx, "engine."+op)
	var fx *effects
	err := e.store.RunInTx(ctx, store.Keys(keys...), func(tx store.Tx) error {
		fx = &effects{}
		if err := fn(tx, fx); err != nil {
			return err
		}
		return fx.persist(ctx, tx)
	})
	telemetry.EndSpan(span, err)
	telemetry.RecordOperation(ctx, op, outcome(err))
	if err != nil {
		e.logFailure(ctx, op, err)
		return err
	}
	e.afterCommit(ctx, fx)
	return nil
}

// read runs fn against a snapshot
func (e *Engine) read(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	ctx, span := telemetry.StartSpan(ctx, "engine."+op)
	err := e.store.View(ctx, fn)
	telemetry.EndSpan(span, err)
	telemetry.RecordOperation(ctx, op, outcome(err))
	if err != nil {
		e.logFailure(ctx, op, err)
	}
	return err
}

func (e *Engine) logFailure(ctx context.Context, op string, err error) {
	logger := logging.WithContext(ctx, e.logger)
	if apperr.KindOf(err) == apperr.KindInternal {
		logger.Error("Operation failed", zap.String("op", op), zap.Error(err))
		return
	}
	logger.Debug("Operation rejected", zap.String("op", op), zap.Error(err))
}

func (e *Engine) afterCommit(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}
	for _, n := range fx.notifications {
		telemetry.RecordNotification(ctx, n.Type.String())
	}
	if len(fx.notifications) > 0 {
		// The write is already committed: a cancelled request or a stalled
		// broker must not hold the response.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.publishTimeout)
		err := e.publisher.Publish(pubCtx, fx.notifications)
		cancel()
		if err != nil {
			e.logger.Warn("Failed to publish notifications",
				zap.Int("count", len(fx.notifications)),
				zap.Error(err))
		}
	}
	if e.cache == nil {
		return
	}
	for sphereID := range fx.spheres {
		if err := e.cache.BumpSphere(ctx, sphereID); err != nil {
			e.logger.Warn("Failed to invalidate sphere listings", logging.Sphere(sphereID), zap.Error(err))
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

// clampPage applies the listing limits
func (e *Engine) clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// activeUser loads a user that exists and is not deleted
func activeUser(ctx context.Context, tx store.Tx, userID int64) (*models.User, error) {
	u, err := tx.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.IsDeleted() {
		return nil, apperr.NotFoundf("user %d", userID)
	}
	return u, nil
}

func getSphere(ctx context.Context, tx store.Tx, sphereID int64) (*models.Sphere, error) {
	sphere, err := tx.Spheres().GetByID(ctx, sphereID)
	if err != nil {
		return nil, err
	}
	if sphere == nil {
		return nil, apperr.NotFoundf("sphere %d", sphereID)
	}
	return sphere, nil
}

// livePost loads a post that exists and is not deleted
func livePost(ctx context.Context, tx store.Tx, postID int64) (*models.Post, error) {
	p, err := tx.Posts().GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.IsDeleted() {
		return nil, apperr.NotFoundf("post %d", postID)
	}
	return p, nil
}

// liveComment loads a non-deleted comment of post postID
func liveComment(ctx context.Context, tx store.Tx, postID, commentID int64) (*models.Comment, error) {
	c, err := tx.Comments().GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.IsDeleted() {
		return nil, apperr.NotFoundf("comment %d", commentID)
	}
	if c.PostID != postID {
		return nil, apperr.Validationf("comment %d does not belong to post %d", commentID, postID)
	}
	return c, nil
}
