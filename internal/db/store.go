package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/store"
)

// Store is the PostgreSQL store.Store. A transaction takes one transaction-scoped
// advisory lock per key, in sorted order, before running its body; the partial
// unique indexes of the schema remain the final arbiter.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewStore creates a Store over an open connection
func NewStore(d *DB, txTimeout time.Duration) *Store {
	return &Store{db: d.DB, timeout: txTimeout}
}

// RunInTx implements store.Store
func (s *Store) RunInTx(ctx context.Context, keys []store.LockKey, fn func(tx store.Tx) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		for _, k := range store.Keys(keys...) {
			if err := gtx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", string(k)).Error; err != nil {
				return fmt.Errorf("failed to lock %s: %w", k, err)
			}
		}
		return fn(&gormTx{db: gtx})
	})
	return translate(err)
}

// View implements store.Store with a read-only repeatable-read transaction
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&gormTx{db: gtx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return translate(err)
}

// translate maps driver errors onto the apperr taxonomy and leaves apperr values alone
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) != apperr.KindInternal:
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindConflict, err, "uniqueness violated")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.Wrap(apperr.KindValidation, err, "reference violated")
	case isCheckViolation(err):
		return apperr.Wrap(apperr.KindValidation, err, "check constraint violated")
	default:
		return err
	}
}

// isCheckViolation reports a CHECK constraint failure, which gorm does not translate
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) repo() *Repository { return NewRepository(tx.db) }

func (tx *gormTx) Users() store.UserRepository { return &UserRepository{tx.repo()} }
func (tx *gormTx) Spheres() store.SphereRepository { return &SphereRepository{tx.repo()} }
func (tx *gormTx) Satellites() store.SatelliteRepository { return &SatelliteRepository{tx.repo()} }
func (tx *gormTx) Categories() store.CategoryRepository { return &CategoryRepository{tx.repo()} }
func (tx *gormTx) Subscriptions() store.SubscriptionRepository { return &SubscriptionRepository{tx.repo()} }
func (tx *gormTx) Roles() store.RoleRepository { return &RoleRepository{tx.repo()} }
func (tx *gormTx) Rules() store.RuleRepository { return &RuleRepository{tx.repo()} }
func (tx *gormTx) Posts() store.PostRepository { return &PostRepository{tx.repo()} }
func (tx *gormTx) Comments() store.CommentRepository { return &CommentRepository{tx.repo()} }
func (tx *gormTx) Votes() store.VoteRepository { return &VoteRepository{tx.repo()} }
func (tx *gormTx) Bans() store.BanRepository { return &BanRepository{tx.repo()} }
func (tx *gormTx) Notifications() store.NotificationRepository { return &NotificationRepository{tx.repo()} }
