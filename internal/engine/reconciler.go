package engine

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/scoring"
	"github.com/sharesphere/spherecore/internal/store"
)

const (
	defaultReconcileWorkers = 4
	defaultReconcileBatch   = 200
)

// ReconcileOptions configures a Reconciler
type ReconcileOptions struct {
	Workers   int
	BatchSize int
	// Repair rewrites the aggregates and scores that do not match the vote log
	Repair bool
}

// Mismatch is a content item whose stored aggregate or scores disagree with the vote log
type Mismatch struct {
	PostID      int64         `json:"post_id"`
	CommentID   sql.NullInt64 `json:"-"`
	StoredScore int32         `json:"stored_score"`
	StoredMinus int32         `json:"stored_minus"`
	LiveScore   int32         `json:"live_score"`
	LiveMinus   int32         `json:"live_minus"`
	// ScoreDrift is set when the cached scores differ from a recomputation of their inputs
	ScoreDrift bool `json:"score_drift"`
	Repaired   bool `json:"repaired"`
}

// Report summarizes a reconciliation pass
type Report struct {
	Posts      int        `json:"posts"`
	Comments   int        `json:"comments"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Reconciler recomputes every vote aggregate from the live vote log
type Reconciler struct {
	e    *Engine
	opts ReconcileOptions

	mu     sync.Mutex
	report *Report
}

// NewReconciler creates a Reconciler over the engine's store
func NewReconciler(e *Engine, opts ReconcileOptions) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = defaultReconcileWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultReconcileBatch
	}
	return &Reconciler{e: e, opts: opts}
}

// tally sums votes per target. Key 0 is the post itself.
func tally(votes []*models.Vote) map[int64]*models.VoteAggregate {
	sums := make(map[int64]*models.VoteAggregate)
	for _, v := range votes {
		agg := sums[v.CommentID.Int64]
		if agg == nil {
			agg = &models.VoteAggregate{}
			sums[v.CommentID.Int64] = agg
		}
		score, minus := models.VoteDelta(0, v.Value)
		agg.Score += score
		agg.ScoreMinus += minus
	}
	return sums
}

// compare returns the mismatch between a stored aggregate and its live sum, nil if they agree
func compare(postID int64, commentID sql.NullInt64, stored *models.VoteAggregate, live *models.VoteAggregate) *Mismatch {
	if live == nil {
		live = &models.VoteAggregate{}
	}
	rec, trend := scoring.Scores(int(stored.Score), stored.ScoringAnchor, stored.ScoredAt)
	drift := rec != stored.RecommendedScore || trend != stored.TrendingScore
	if !drift && stored.Score == live.Score && stored.ScoreMinus == live.ScoreMinus {
		return nil
	}
	return &Mismatch{
		PostID:      postID,
		CommentID:   commentID,
		StoredScore: stored.Score,
		StoredMinus: stored.ScoreMinus,
		LiveScore:   live.Score,
		LiveMinus:   live.ScoreMinus,
		ScoreDrift:  drift,
	}
}

// Run checks every post and comment. With Repair set, mismatches are rewritten.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	r.report = &Report{}
	var after int64
	for {
		var posts []*models.Post
		err := r.e.store.View(ctx, func(tx store.Tx) error {
			var err error
			posts, err = tx.Posts().ListAfter(ctx, after, r.opts.BatchSize)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(posts) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Workers)
		for _, p := range posts {
			postID := p.ID
			g.Go(func() error {
				return r.checkPost(gctx, postID)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		after = posts[len(posts)-1].ID
	}

	r.e.logger.Info("Reconciliation finished",
		zap.Int("posts", r.report.Posts),
		zap.Int("comments", r.report.Comments),
		zap.Int("mismatches", len(r.report.Mismatches)),
		zap.Bool("repair", r.opts.Repair))
	return r.report, nil
}

func (r *Reconciler) checkPost(ctx context.Context, postID int64) error {
	var found []*Mismatch
	var comments int
	err := r.e.store.View(ctx, func(tx store.Tx) error {
		post, err := tx.Posts().GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil {
			return nil
		}
		all, err := tx.Comments().ListByPost(ctx, postID, models.SortRecent, 0, 0)
		if err != nil {
			return err
		}
		votes, err := tx.Votes().ListByPost(ctx, postID)
		if err != nil {
			return err
		}
		sums := tally(votes)
		if m := compare(postID, sql.NullInt64{}, &post.VoteAggregate, sums[0]); m != nil {
			found = append(found, m)
		}
		for _, c := range all {
			if m := compare(postID, sql.NullInt64{Int64: c.ID, Valid: true}, &c.VoteAggregate, sums[c.ID]); m != nil {
				found = append(found, m)
			}
		}
		comments = len(all)
		return nil
	})
	if err != nil {
		return err
	}

	if r.opts.Repair {
		for _, m := range found {
			if err := r.repair(ctx, m); err != nil {
				return err
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Posts++
	r.report.Comments += comments
	for _, m := range found {
		r.report.Mismatches = append(r.report.Mismatches, *m)
	}
	return nil
}

// repair rewrites one aggregate from the votes seen under its content lock
func (r *Reconciler) repair(ctx context.Context, m *Mismatch) error {
	return r.e.write(ctx, "reconcile", []store.LockKey{store.ContentKey(m.PostID, m.CommentID)}, func(tx store.Tx, fx *effects) error {
		votes, err := tx.Votes().ListByPost(ctx, m.PostID)
		if err != nil {
			return err
		}
		live := tally(votes)[m.CommentID.Int64]
		if live == nil {
			live = &models.VoteAggregate{}
		}
		content := &voteContent{}
		if content.post, err = tx.Posts().GetByID(ctx, m.PostID); err != nil {
			return err
		}
		if content.post == nil {
			return apperr.NotFoundf("post %d", m.PostID)
		}
		if m.CommentID.Valid {
			if content.comment, err = tx.Comments().GetByID(ctx, m.CommentID.Int64); err != nil {
				return err
			}
			if content.comment == nil {
				return apperr.NotFoundf("comment %d", m.CommentID.Int64)
			}
		}
		agg := content.aggregate()
		agg.Score = live.Score
		agg.ScoreMinus = live.ScoreMinus
		rescore(agg, r.e.now())
		if err := content.save(ctx, tx); err != nil {
			return err
		}
		m.Repaired = true
		fx.touch(content.post.SphereID)
		return nil
	})
}
