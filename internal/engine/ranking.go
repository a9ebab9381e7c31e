package engine

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/cache"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// Ranking serves ordered listings of posts and comments
type Ranking struct {
	e *Engine
}

// RankedPosts returns a page of a sphere's visible posts as seen by viewerID
// (0 for an anonymous viewer). Pinned posts come first, then the order descending
// with ties broken by id descending; an empty order means hot. Moderated posts are
// hidden, satellite posts are listed only under their satellite, and nsfw posts
// only for viewers who opted in.
func (r *Ranking) RankedPosts(ctx context.Context, viewerID int64, q store.RankQuery) ([]*models.Post, error) {
	if q.Order == "" {
		q.Order = models.SortHot
	}
	if !q.Order.Valid() {
		return nil, apperr.Validationf("unknown order %q", q.Order)
	}
	q.Limit, q.Offset = r.e.clampPage(q.Limit, q.Offset)
	q.SphereIDs = nil
	q.ExcludeModerated = true
	q.PinnedFirst = true

	showNSFW, err := r.viewerShowsNSFW(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	q.ShowNSFW = showNSFW

	key, cacheable := r.listingKey(ctx, q)
	if cacheable {
		var cached []*models.Post
		err := r.e.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.e.logger.Warn("Failed to read cached listing", logging.Sphere(q.SphereID), zap.Error(err))
		}
	}

	var posts []*models.Post
	err = r.e.read(ctx, "get_ranked_posts", func(tx store.Tx) error {
		if _, err := getSphere(ctx, tx, q.SphereID); err != nil {
			return err
		}
		if err := checkListingScope(ctx, tx, q); err != nil {
			return err
		}
		var err error
		posts, err = tx.Posts().ListRanked(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := r.e.cache.SetJSON(ctx, key, posts); err != nil {
			r.e.logger.Warn("Failed to cache listing", logging.Sphere(q.SphereID), zap.Error(err))
		}
	}
	return posts, nil
}

// SubscribedPosts returns a page of the visible posts of the spheres userID
// subscribes to, satellite posts excluded. Pinned posts get no precedence here.
func (r *Ranking) SubscribedPosts(ctx context.Context, userID int64, order models.SortOrder, limit, offset int) ([]*models.Post, error) {
	if order == "" {
		order = models.SortHot
	}
	if !order.Valid() {
		return nil, apperr.Validationf("unknown order %q", order)
	}
	limit, offset = r.e.clampPage(limit, offset)

	var posts []*models.Post
	err := r.e.read(ctx, "get_subscribed_posts", func(tx store.Tx) error {
		user, err := activeUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		sphereIDs, err := tx.Subscriptions().ListSphereIDs(ctx, userID)
		if err != nil || len(sphereIDs) == 0 {
			return err
		}
		posts, err = tx.Posts().ListRanked(ctx, store.RankQuery{
			SphereIDs:        sphereIDs,
			Order:            order,
			ExcludeModerated: true,
			ShowNSFW:         user.ShowNSFW,
			Limit:            limit,
			Offset:           offset,
		})
		return err
	})
	return posts, err
}

// viewerShowsNSFW reads the nsfw preference of a viewer; anonymous viewers see none
func (r *Ranking) viewerShowsNSFW(ctx context.Context, viewerID int64) (bool, error) {
	if viewerID == 0 {
		return false, nil
	}
	var show bool
	err := r.e.read(ctx, "get_viewer", func(tx store.Tx) error {
		u, err := activeUser(ctx, tx, viewerID)
		if err != nil {
			return err
		}
		show = u.ShowNSFW
		return nil
	})
	return show, err
}

// checkListingScope verifies the satellite and category of q belong to its sphere
func checkListingScope(ctx context.Context, tx store.Tx, q store.RankQuery) error {
	if q.SatelliteID.Valid {
		satellite, err := tx.Satellites().GetByID(ctx, q.SatelliteID.Int64)
		if err != nil {
			return err
		}
		if satellite == nil || satellite.SphereID != q.SphereID {
			return apperr.NotFoundf("satellite %d in sphere %d", q.SatelliteID.Int64, q.SphereID)
		}
	}
	if q.CategoryID.Valid {
		category, err := tx.Categories().GetByID(ctx, q.CategoryID.Int64)
		if err != nil {
			return err
		}
		if category == nil || category.SphereID != q.SphereID {
			return apperr.NotFoundf("category %d in sphere %d", q.CategoryID.Int64, q.SphereID)
		}
	}
	return nil
}

// listingKey names the cached page of q under the sphere's current version
func (r *Ranking) listingKey(ctx context.Context, q store.RankQuery) (string, bool) {
	if r.e.cache == nil {
		return "", false
	}
	version, err := r.e.cache.SphereVersion(ctx, q.SphereID)
	if err != nil {
		r.e.logger.Debug("Listing cache unavailable", logging.Sphere(q.SphereID), zap.Error(err))
		return "", false
	}
	return cache.ListingKey(q.SphereID, version,
		string(q.Order),
		optionalID(q.SatelliteID),
		optionalID(q.CategoryID),
		strconv.FormatBool(q.ShowNSFW),
		strconv.Itoa(q.Limit),
		strconv.Itoa(q.Offset)), true
}

func optionalID(id sql.NullInt64) string {
	if !id.Valid {
		return ""
	}
	return strconv.FormatInt(id.Int64, 10)
}

const refreshBatchSize = 200

// RefreshScores recomputes the stored scores of every post whose ranking is
// still decaying within window, so listings order them as of now. Each post is
// rescored in its own transaction under the post's key. It returns the number
// of posts rescored.
func (r *Ranking) RefreshScores(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, apperr.Validationf("refresh window must be positive, got %s", window)
	}
	now := r.e.now()
	refreshed := 0
	var afterID int64
	for {
		var batch []*models.Post
		err := r.e.read(ctx, "list_rescorable", func(tx store.Tx) error {
			var err error
			batch, err = tx.Posts().ListRescorable(ctx, now, window, afterID, refreshBatchSize)
			return err
		})
		if err != nil {
			return refreshed, err
		}
		for _, p := range batch {
			if err := r.refreshPost(ctx, p.ID); err != nil {
				return refreshed, err
			}
			refreshed++
		}
		if len(batch) < refreshBatchSize {
			return refreshed, nil
		}
		afterID = batch[len(batch)-1].ID
	}
}

func (r *Ranking) refreshPost(ctx context.Context, postID int64) error {
	return r.e.write(ctx, "refresh_scores", []store.LockKey{store.PostKey(postID)}, func(tx store.Tx, fx *effects) error {
		post, err := tx.Posts().GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil || post.IsDeleted() {
			return nil
		}
		rescore(&post.VoteAggregate, r.e.now())
		fx.touch(post.SphereID)
		return tx.Posts().Update(ctx, post)
	})
}

// RunRefresher calls RefreshScores every interval until ctx is cancelled
func (r *Ranking) RunRefresher(ctx context.Context, interval, window time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := r.RefreshScores(ctx, window)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.e.logger.Error("Failed to refresh post scores", zap.Int("refreshed", n), zap.Error(err))
				continue
			}
			r.e.logger.Debug("Refreshed post scores", zap.Int("refreshed", n))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ListComments returns a page of a post's comments ordered by best or recent.
// Deleted comments are kept so replies to them stay attached to the thread.
func (r *Ranking) ListComments(ctx context.Context, postID int64, order models.SortOrder, limit, offset int) ([]*models.Comment, error) {
	if order == "" {
		order = models.SortBest
	}
	if order != models.SortBest && order != models.SortRecent {
		return nil, apperr.Validationf("comments can only be ordered by best or recent, not %q", order)
	}
	limit, offset = r.e.clampPage(limit, offset)

	var comments []*models.Comment
	err := r.e.read(ctx, "list_comments", func(tx store.Tx) error {
		if _, err := livePost(ctx, tx, postID); err != nil {
			return err
		}
		var err error
		comments, err = tx.Comments().ListByPost(ctx, postID, order, limit, offset)
		return err
	})
	return comments, err
}
