package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store) (userIDs []int64, sphereID int64) {
	t.Helper()
	err := s.RunInTx(context.Background(), nil, func(tx store.Tx) error {
		for _, name := range []string{"alice", "bob", "carol"} {
			u := &models.User{Username: name, NormalizedUsername: name, Email: name + "@example.com", CreatedAt: t0}
			if err := tx.Users().Create(context.Background(), u); err != nil {
				return err
			}
			userIDs = append(userIDs, u.ID)
		}
		sp := &models.Sphere{Name: "Golang", NormalizedName: "golang", CreatorID: userIDs[0], CreatedAt: t0, UpdatedAt: t0}
		if err := tx.Spheres().Create(context.Background(), sp); err != nil {
			return err
		}
		sphereID = sp.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return userIDs, sphereID
}

func TestConcurrentLeadGrants(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()

	const rounds = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < rounds; i++ {
		userID := users[i%len(users)]
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			keys := store.Keys(store.LeadKey(sphereID), store.RoleKey(userID, sphereID))
			err := s.RunInTx(ctx, keys, func(tx store.Tx) error {
				return tx.Roles().Create(ctx, &models.RoleGrant{
					UserID: userID, SphereID: sphereID, Level: models.PermissionLead, GrantorID: userID, CreatedAt: t0,
				})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(userID)
	}
	wg.Wait()

	if successes != 1 || conflicts != rounds-1 {
		t.Fatalf("successes = %d, conflicts = %d, want 1 and %d", successes, conflicts, rounds-1)
	}

	var leads int
	_ = s.View(ctx, func(tx store.Tx) error {
		grants, err := tx.Roles().ListActive(ctx, sphereID)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if g.Level == models.PermissionLead {
				leads++
			}
		}
		return nil
	})
	if leads != 1 {
		t.Errorf("active leads = %d, want 1", leads)
	}
}

// Without lock keys the overlay still cannot commit a duplicate: verify catches it.
func TestCommitVerifiesUniqueness(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		errs <- s.RunInTx(ctx, nil, func(tx store.Tx) error {
			if err := tx.Roles().Create(ctx, &models.RoleGrant{
				UserID: users[0], SphereID: sphereID, Level: models.PermissionLead, CreatedAt: t0,
			}); err != nil {
				return err
			}
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	err := s.RunInTx(ctx, nil, func(tx store.Tx) error {
		return tx.Roles().Create(ctx, &models.RoleGrant{
			UserID: users[1], SphereID: sphereID, Level: models.PermissionLead, CreatedAt: t0,
		})
	})
	close(release)
	if err != nil {
		t.Fatalf("first committer: %v", err)
	}
	if err := <-errs; !apperr.IsConflict(err) {
		t.Fatalf("second committer err = %v, want conflict", err)
	}
}

func TestFailedTxLeavesNoTrace(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()

	err := s.RunInTx(ctx, nil, func(tx store.Tx) error {
		if err := tx.Subscriptions().Create(ctx, &models.Subscription{UserID: users[1], SphereID: sphereID, CreatedAt: t0}); err != nil {
			return err
		}
		sp, _ := tx.Spheres().GetByID(ctx, sphereID)
		sp.MemberCount++
		if err := tx.Spheres().Update(ctx, sp); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		sub, _ := tx.Subscriptions().Get(ctx, users[1], sphereID)
		if sub != nil {
			t.Error("subscription leaked from aborted transaction")
		}
		sp, _ := tx.Spheres().GetByID(ctx, sphereID)
		if sp.MemberCount != 0 {
			t.Errorf("member count = %d, want 0", sp.MemberCount)
		}
		return nil
	})
}

func TestOverlayVisibility(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()

	err := s.RunInTx(ctx, nil, func(tx store.Tx) error {
		g := &models.RoleGrant{UserID: users[1], SphereID: sphereID, Level: models.PermissionModerate, CreatedAt: t0}
		if err := tx.Roles().Create(ctx, g); err != nil {
			return err
		}
		got, _ := tx.Roles().GetActive(ctx, users[1], sphereID)
		if got == nil || got.ID != g.ID {
			t.Errorf("own write not visible: %+v", got)
		}

		// retiring and regranting inside one tx frees the partition
		g.RevokedAt = sql.NullTime{Time: t0, Valid: true}
		if err := tx.Roles().Update(ctx, g); err != nil {
			return err
		}
		if got, _ := tx.Roles().GetActive(ctx, users[1], sphereID); got != nil {
			t.Errorf("revoked grant still active: %+v", got)
		}
		return tx.Roles().Create(ctx, &models.RoleGrant{UserID: users[1], SphereID: sphereID, Level: models.PermissionBan, CreatedAt: t0})
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		got, _ := tx.Roles().GetActive(ctx, users[1], sphereID)
		if got == nil || got.Level != models.PermissionBan {
			t.Errorf("active grant = %+v, want Ban", got)
		}
		return nil
	})
}

func TestUniqueAndReferenceChecks(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name    string
		fn      func(tx store.Tx) error
		wantErr error
	}{
		{
			name: "duplicate username",
			fn: func(tx store.Tx) error {
				return tx.Users().Create(ctx, &models.User{Username: "Alice", NormalizedUsername: "alice", Email: "x@example.com"})
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "duplicate sphere name",
			fn: func(tx store.Tx) error {
				return tx.Spheres().Create(ctx, &models.Sphere{Name: "GOLANG", NormalizedName: "golang"})
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "post in unknown sphere",
			fn: func(tx store.Tx) error {
				return tx.Posts().Create(ctx, &models.Post{Title: "t", SphereID: 999, CreatorID: users[0]})
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "invalid vote value",
			fn: func(tx store.Tx) error {
				p := &models.Post{Title: "t", SphereID: sphereID, CreatorID: users[0]}
				if err := tx.Posts().Create(ctx, p); err != nil {
					return err
				}
				return tx.Votes().Create(ctx, &models.Vote{PostID: p.ID, UserID: users[1], Value: 2})
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "duplicate vote",
			fn: func(tx store.Tx) error {
				p := &models.Post{Title: "t", SphereID: sphereID, CreatorID: users[0]}
				if err := tx.Posts().Create(ctx, p); err != nil {
					return err
				}
				if err := tx.Votes().Create(ctx, &models.Vote{PostID: p.ID, UserID: users[1], Value: 1}); err != nil {
					return err
				}
				return tx.Votes().Create(ctx, &models.Vote{PostID: p.ID, UserID: users[1], Value: -1})
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "rule slot taken",
			fn: func(tx store.Tx) error {
				sphere := sql.NullInt64{Int64: sphereID, Valid: true}
				if err := tx.Rules().Create(ctx, &models.Rule{RuleKey: "a", SphereID: sphere, Priority: 1}); err != nil {
					return err
				}
				return tx.Rules().Create(ctx, &models.Rule{RuleKey: "b", SphereID: sphere, Priority: 1})
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "update of missing row",
			fn: func(tx store.Tx) error {
				return tx.Bans().Update(ctx, &models.Ban{ID: 42})
			},
			wantErr: apperr.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RunInTx(ctx, nil, tt.fn)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.View(ctx, func(tx store.Tx) error {
		return tx.Users().Create(ctx, &models.User{Username: "x", NormalizedUsername: "x"})
	})
	if !errors.Is(err, errReadOnly) {
		t.Fatalf("err = %v, want read-only error", err)
	}
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, nil, func(tx store.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn ran under a canceled context")
	}
}

func TestCancelBeforeCommitDiscardsWrites(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.RunInTx(ctx, nil, func(tx store.Tx) error {
		if err := tx.Users().Create(ctx, &models.User{Username: "dave", NormalizedUsername: "dave", Email: "d@example.com"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	_ = s.View(context.Background(), func(tx store.Tx) error {
		if u, _ := tx.Users().GetByUsername(context.Background(), "dave"); u != nil {
			t.Error("write survived cancellation")
		}
		return nil
	})
}

func TestListRankedOrder(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()

	var ids []int64
	_ = s.RunInTx(ctx, nil, func(tx store.Tx) error {
		for i, score := range []int32{5, 9, 9, 1} {
			p := &models.Post{Title: "p", SphereID: sphereID, CreatorID: users[0], CreatedAt: t0.Add(time.Duration(i) * time.Hour)}
			p.Score = score
			if err := tx.Posts().Create(ctx, p); err != nil {
				return err
			}
			ids = append(ids, p.ID)
		}
		deleted := &models.Post{Title: "gone", SphereID: sphereID, CreatorID: users[0], DeletedAt: sql.NullTime{Time: t0, Valid: true}}
		deleted.Score = 100
		return tx.Posts().Create(ctx, deleted)
	})

	tests := []struct {
		order models.SortOrder
		limit int
		want  []int64
	}{
		{models.SortBest, 10, []int64{ids[2], ids[1], ids[0], ids[3]}},
		{models.SortRecent, 10, []int64{ids[3], ids[2], ids[1], ids[0]}},
		{models.SortBest, 2, []int64{ids[2], ids[1]}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			_ = s.View(ctx, func(tx store.Tx) error {
				posts, err := tx.Posts().ListRanked(ctx, store.RankQuery{SphereID: sphereID, Order: tt.order, Limit: tt.limit})
				if err != nil {
					t.Fatal(err)
				}
				if len(posts) != len(tt.want) {
					t.Fatalf("got %d posts, want %d", len(posts), len(tt.want))
				}
				for i, p := range posts {
					if p.ID != tt.want[i] {
						t.Errorf("posts[%d] = %d, want %d", i, p.ID, tt.want[i])
					}
				}
				return nil
			})
		})
	}
}

func TestListRankedFilters(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()

	var (
		otherSphere         int64
		satelliteID, catID  int64
		plain, pinned, nsfw int64
		moderated, inSat    int64
		inCat, elsewhere    int64
	)
	err := s.RunInTx(ctx, nil, func(tx store.Tx) error {
		other := &models.Sphere{Name: "Rust", NormalizedName: "rust", CreatorID: users[1], CreatedAt: t0, UpdatedAt: t0}
		if err := tx.Spheres().Create(ctx, other); err != nil {
			return err
		}
		otherSphere = other.ID
		sat := &models.Satellite{SphereID: sphereID, Name: "releases", CreatorID: users[0], CreatedAt: t0}
		if err := tx.Satellites().Create(ctx, sat); err != nil {
			return err
		}
		satelliteID = sat.ID
		cat := &models.Category{SphereID: sphereID, Name: "news", CreatorID: users[0], CreatedAt: t0}
		if err := tx.Categories().Create(ctx, cat); err != nil {
			return err
		}
		catID = cat.ID

		create := func(score int32, edit func(p *models.Post)) int64 {
			p := &models.Post{Title: "p", SphereID: sphereID, CreatorID: users[0], CreatedAt: t0}
			p.Score = score
			if edit != nil {
				edit(p)
			}
			if err := tx.Posts().Create(ctx, p); err != nil {
				t.Fatalf("Create: %v", err)
			}
			return p.ID
		}
		plain = create(5, nil)
		pinned = create(1, func(p *models.Post) { p.IsPinned = true })
		nsfw = create(4, func(p *models.Post) { p.IsNSFW = true })
		moderated = create(9, func(p *models.Post) { p.ModeratorID = sql.NullInt64{Int64: users[0], Valid: true} })
		inSat = create(3, func(p *models.Post) { p.SatelliteID = sql.NullInt64{Int64: satelliteID, Valid: true} })
		inCat = create(2, func(p *models.Post) { p.CategoryID = sql.NullInt64{Int64: catID, Valid: true} })
		elsewhere = create(7, func(p *models.Post) { p.SphereID = otherSphere })
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	tests := []struct {
		name string
		q    store.RankQuery
		want []int64
	}{
		{
			name: "sphere feed",
			q:    store.RankQuery{SphereID: sphereID, ExcludeModerated: true, PinnedFirst: true},
			want: []int64{pinned, plain, inCat},
		},
		{
			name: "moderated kept when asked",
			q:    store.RankQuery{SphereID: sphereID},
			want: []int64{moderated, plain, inCat, pinned},
		},
		{
			name: "nsfw shown",
			q:    store.RankQuery{SphereID: sphereID, ExcludeModerated: true, ShowNSFW: true},
			want: []int64{plain, nsfw, inCat, pinned},
		},
		{
			name: "satellite",
			q:    store.RankQuery{SphereID: sphereID, SatelliteID: sql.NullInt64{Int64: satelliteID, Valid: true}},
			want: []int64{inSat},
		},
		{
			name: "category",
			q:    store.RankQuery{SphereID: sphereID, CategoryID: sql.NullInt64{Int64: catID, Valid: true}},
			want: []int64{inCat},
		},
		{
			name: "several spheres",
			q:    store.RankQuery{SphereIDs: []int64{sphereID, otherSphere}, ExcludeModerated: true},
			want: []int64{elsewhere, plain, inCat, pinned},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.q.Order = models.SortBest
			_ = s.View(ctx, func(tx store.Tx) error {
				posts, err := tx.Posts().ListRanked(ctx, tt.q)
				if err != nil {
					t.Fatal(err)
				}
				got := make([]int64, len(posts))
				for i, p := range posts {
					got[i] = p.ID
				}
				if len(got) != len(tt.want) {
					t.Fatalf("posts = %v, want %v", got, tt.want)
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("posts = %v, want %v", got, tt.want)
						break
					}
				}
				return nil
			})
		})
	}
}

func TestListRescorable(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()
	now := t0.Add(10 * 24 * time.Hour)
	window := 48 * time.Hour

	var fresh, stale, settled int64
	_ = s.RunInTx(ctx, nil, func(tx store.Tx) error {
		create := func(anchor, scored time.Time, deleted bool) int64 {
			p := &models.Post{Title: "p", SphereID: sphereID, CreatorID: users[0], CreatedAt: anchor}
			p.ScoringAnchor, p.ScoredAt = anchor, scored
			if deleted {
				p.DeletedAt = sql.NullTime{Time: scored, Valid: true}
			}
			if err := tx.Posts().Create(ctx, p); err != nil {
				t.Fatalf("Create: %v", err)
			}
			return p.ID
		}
		fresh = create(now.Add(-time.Hour), now.Add(-time.Hour), false)
		stale = create(t0, t0.Add(time.Hour), false)
		settled = create(t0, t0.Add(5*24*time.Hour), false)
		create(now.Add(-time.Hour), now.Add(-time.Hour), true)
		return nil
	})

	_ = s.View(ctx, func(tx store.Tx) error {
		posts, err := tx.Posts().ListRescorable(ctx, now, window, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 2 || posts[0].ID != fresh || posts[1].ID != stale {
			t.Errorf("rescorable = %v, want [%d %d] without %d", posts, fresh, stale, settled)
		}
		posts, err = tx.Posts().ListRescorable(ctx, now, window, fresh, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 1 || posts[0].ID != stale {
			t.Errorf("rescorable after %d = %v", fresh, posts)
		}
		return nil
	})
}

func TestHashKeyIsFNV1a(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0x811c9dc5},
		{"a", 0xe40c292c},
		{"foobar", 0xbf9cf968},
	}
	for _, tt := range tests {
		if got := hashKey(tt.in); got != tt.want {
			t.Errorf("hashKey(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestLatestUnrevokedBan(t *testing.T) {
	s := New()
	users, sphereID := seed(t, s)
	ctx := context.Background()
	sphere := sql.NullInt64{Int64: sphereID, Valid: true}

	var latestID int64
	err := s.RunInTx(ctx, nil, func(tx store.Tx) error {
		p := &models.Post{Title: "p", SphereID: sphereID, CreatorID: users[1]}
		if err := tx.Posts().Create(ctx, p); err != nil {
			return err
		}
		r := &models.Rule{RuleKey: "k", SphereID: sphere, Priority: 0}
		if err := tx.Rules().Create(ctx, r); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			b := &models.Ban{UserID: users[1], SphereID: sphere, PostID: p.ID, RuleID: r.ID, ModeratorID: users[0], CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
			if i == 2 {
				b.RevokedAt = sql.NullTime{Time: t0, Valid: true}
			}
			if err := tx.Bans().Create(ctx, b); err != nil {
				return err
			}
			if i == 1 {
				latestID = b.ID
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		b, _ := tx.Bans().LatestUnrevoked(ctx, users[1], sphere)
		if b == nil || b.ID != latestID {
			t.Errorf("latest = %+v, want id %d", b, latestID)
		}
		if site, _ := tx.Bans().LatestUnrevoked(ctx, users[1], sql.NullInt64{}); site != nil {
			t.Errorf("unexpected site-wide ban %+v", site)
		}
		return nil
	})
}
