// Package memory is an in-process store.Store. Transactions lock their keys on
// sharded mutexes, buffer writes in an overlay and publish them atomically at commit,
// where the active-partition indexes are re-verified.
package memory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
)

const (
	numShards        = 256
	defaultTxTimeout = 5 * time.Second
)

var errReadOnly = errors.New("write in read-only transaction")

// Store is a store.Store kept in memory
type Store struct {
	mu      sync.RWMutex
	shards  [numShards]sync.Mutex
	timeout time.Duration

	users         *table[models.User]
	spheres       *table[models.Sphere]
	satellites    *table[models.Satellite]
	categories    *table[models.Category]
	subscriptions *table[models.Subscription]
	roles         *table[models.RoleGrant]
	rules         *table[models.Rule]
	posts         *table[models.Post]
	comments      *table[models.Comment]
	votes         *table[models.Vote]
	bans          *table[models.Ban]
	notifications *table[models.Notification]
}

// Option configures a Store
type Option func(*Store)

// WithTxTimeout bounds transactions whose context carries no deadline
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New creates an empty Store
func New(opts ...Option) *Store {
	s := &Store{timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	s.initTables()
	return s
}

// RunInTx implements store.Store
func (s *Store) RunInTx(ctx context.Context, keys []store.LockKey, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	release := s.lock(keys)
	defer release()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	tx := s.newTx(false)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted before commit: %w", err)
	}
	return s.commit(tx)
}

// View implements store.Store. The snapshot holds the commit lock shared for the duration of fn.
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.newTx(true))
}

// lock acquires the shards of keys in ascending shard order and returns the release func
func (s *Store) lock(keys []store.LockKey) func() {
	idx := make([]int, 0, len(keys))
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		shard := int(hashKey(string(k)) % numShards)
		if _, ok := seen[shard]; ok {
			continue
		}
		seen[shard] = struct{}{}
		idx = append(idx, shard)
	}
	sort.Ints(idx)
	for _, i := range idx {
		s.shards[i].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			s.shards[idx[i]].Unlock()
		}
	}
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tx.tables() {
		if err := t.verify(); err != nil {
			return err
		}
	}
	for _, t := range tx.tables() {
		t.apply()
	}
	return nil
}

type committer interface {
	verify() error
	apply()
}

// memTx is one transaction's view of the store. A read-only view runs with
// Store.mu already held shared, so its reads do not lock again.
type memTx struct {
	s        *Store
	readOnly bool

	users         *txTable[models.User]
	spheres       *txTable[models.Sphere]
	satellites    *txTable[models.Satellite]
	categories    *txTable[models.Category]
	subscriptions *txTable[models.Subscription]
	roles         *txTable[models.RoleGrant]
	rules         *txTable[models.Rule]
	posts         *txTable[models.Post]
	comments      *txTable[models.Comment]
	votes         *txTable[models.Vote]
	bans          *txTable[models.Ban]
	notifications *txTable[models.Notification]
}

func (s *Store) newTx(readOnly bool) *memTx {
	tx := &memTx{s: s, readOnly: readOnly}
	tx.users = &txTable[models.User]{t: s.users, tx: tx}
	tx.spheres = &txTable[models.Sphere]{t: s.spheres, tx: tx}
	tx.satellites = &txTable[models.Satellite]{t: s.satellites, tx: tx}
	tx.categories = &txTable[models.Category]{t: s.categories, tx: tx}
	tx.subscriptions = &txTable[models.Subscription]{t: s.subscriptions, tx: tx}
	tx.roles = &txTable[models.RoleGrant]{t: s.roles, tx: tx}
	tx.rules = &txTable[models.Rule]{t: s.rules, tx: tx}
	tx.posts = &txTable[models.Post]{t: s.posts, tx: tx}
	tx.comments = &txTable[models.Comment]{t: s.comments, tx: tx}
	tx.votes = &txTable[models.Vote]{t: s.votes, tx: tx}
	tx.bans = &txTable[models.Ban]{t: s.bans, tx: tx}
	tx.notifications = &txTable[models.Notification]{t: s.notifications, tx: tx}
	return tx
}

func (tx *memTx) tables() []committer {
	return []committer{
		tx.users, tx.spheres, tx.satellites, tx.categories, tx.subscriptions, tx.roles,
		tx.rules, tx.posts, tx.comments, tx.votes, tx.bans, tx.notifications,
	}
}

func (tx *memTx) rlock() {
	if !tx.readOnly {
		tx.s.mu.RLock()
	}
}

func (tx *memTx) runlock() {
	if !tx.readOnly {
		tx.s.mu.RUnlock()
	}
}

func (tx *memTx) writable() error {
	if tx.readOnly {
		return errReadOnly
	}
	return nil
}

func (tx *memTx) Users() store.UserRepository { return userRepo{tx.users} }
func (tx *memTx) Spheres() store.SphereRepository { return sphereRepo{tx.spheres} }
func (tx *memTx) Satellites() store.SatelliteRepository { return satelliteRepo{tx.satellites} }
func (tx *memTx) Categories() store.CategoryRepository { return categoryRepo{tx.categories} }
func (tx *memTx) Subscriptions() store.SubscriptionRepository { return subscriptionRepo{tx.subscriptions} }
func (tx *memTx) Roles() store.RoleRepository { return roleRepo{tx.roles} }
func (tx *memTx) Rules() store.RuleRepository { return ruleRepo{tx.rules} }
func (tx *memTx) Posts() store.PostRepository { return postRepo{tx.posts} }
func (tx *memTx) Comments() store.CommentRepository { return commentRepo{tx.comments} }
func (tx *memTx) Votes() store.VoteRepository { return voteRepo{tx.votes} }
func (tx *memTx) Bans() store.BanRepository { return banRepo{tx.bans} }
func (tx *memTx) Notifications() store.NotificationRepository { return notificationRepo{tx.notifications} }
