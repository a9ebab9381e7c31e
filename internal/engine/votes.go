package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/scoring"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/pkg/telemetry"
)

// VoteLedger records votes and keeps the content aggregates equal to the sum of live votes
type VoteLedger struct {
	e *Engine
}

// VoteTarget addresses a post, or a comment of that post
type VoteTarget struct {
	PostID    int64
	CommentID sql.NullInt64
}

func (t VoteTarget) keys(userID int64) []store.LockKey {
	return []store.LockKey{store.ContentKey(t.PostID, t.CommentID), store.VoteKey(t.PostID, t.CommentID, userID)}
}

// rescore recomputes the cached scores of agg from its inputs
func rescore(agg *models.VoteAggregate, now time.Time) {
	agg.RecommendedScore, agg.TrendingScore = scoring.Scores(int(agg.Score), agg.ScoringAnchor, now)
	agg.ScoredAt = now
}

// applyVote adds the delta of replacing oldValue by newValue to agg and rescores it
func applyVote(agg *models.VoteAggregate, oldValue, newValue int16, now time.Time) {
	score, minus := models.VoteDelta(oldValue, newValue)
	agg.Score += score
	agg.ScoreMinus += minus
	rescore(agg, now)
}

// voteContent is the aggregate a vote targets with the author and location of the content
type voteContent struct {
	post    *models.Post
	comment *models.Comment
}

func (c *voteContent) aggregate() *models.VoteAggregate {
	if c.comment != nil {
		return &c.comment.VoteAggregate
	}
	return &c.post.VoteAggregate
}

func (c *voteContent) authorID() int64 {
	if c.comment != nil {
		return c.comment.CreatorID
	}
	return c.post.CreatorID
}

func (c *voteContent) save(ctx context.Context, tx store.Tx) error {
	if c.comment != nil {
		return tx.Comments().Update(ctx, c.comment)
	}
	return tx.Posts().Update(ctx, c.post)
}

func loadVoteContent(ctx context.Context, tx store.Tx, t VoteTarget) (*voteContent, error) {
	post, err := livePost(ctx, tx, t.PostID)
	if err != nil {
		return nil, err
	}
	c := &voteContent{post: post}
	if t.CommentID.Valid {
		if c.comment, err = liveComment(ctx, tx, t.PostID, t.CommentID.Int64); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CastVote records the vote of user on the target, replacing any previous value.
// Casting the value already stored changes nothing.
func (v *VoteLedger) CastVote(ctx context.Context, userID int64, target VoteTarget, value int16) (*models.Vote, error) {
	if !models.ValidVoteValue(value) {
		return nil, apperr.Validationf("vote value must be %d or %d", models.VoteDown, models.VoteUp)
	}

	var (
		vote   *models.Vote
		action string
	)
	err := v.e.write(ctx, "cast_vote", target.keys(userID), func(tx store.Tx, fx *effects) error {
		if _, err := activeUser(ctx, tx, userID); err != nil {
			return err
		}
		content, err := loadVoteContent(ctx, tx, target)
		if err != nil {
			return err
		}
		now := v.e.now()
		if err := requireNotBanned(ctx, tx, userID, content.post.SphereID, now); err != nil {
			return err
		}

		vote, err = tx.Votes().Get(ctx, target.PostID, target.CommentID, userID)
		if err != nil {
			return err
		}
		var previous int16
		switch {
		case vote == nil:
			vote = &models.Vote{
				PostID:    target.PostID,
				CommentID: target.CommentID,
				UserID:    userID,
				Value:     value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			action = "cast"
			err = tx.Votes().Create(ctx, vote)
		case vote.Value == value:
			return nil
		default:
			previous = vote.Value
			vote.Value = value
			vote.UpdatedAt = now
			action = "change"
			err = tx.Votes().Update(ctx, vote)
		}
		if err != nil {
			return err
		}

		applyVote(content.aggregate(), previous, value, now)
		if err := content.save(ctx, tx); err != nil {
			return err
		}
		if author := content.authorID(); author != userID {
			fx.notify(newNotification(content.post, target.CommentID, author, userID, models.NotifyVote, now))
		}
		fx.touch(content.post.SphereID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if action != "" {
		telemetry.RecordVote(ctx, action)
	}
	return vote, nil
}

// RetractVote removes the vote of user on the target and rolls back its contribution
func (v *VoteLedger) RetractVote(ctx context.Context, userID int64, target VoteTarget) error {
	err := v.e.write(ctx, "retract_vote", target.keys(userID), func(tx store.Tx, fx *effects) error {
		if _, err := activeUser(ctx, tx, userID); err != nil {
			return err
		}
		content, err := loadVoteContent(ctx, tx, target)
		if err != nil {
			return err
		}
		vote, err := tx.Votes().Get(ctx, target.PostID, target.CommentID, userID)
		if err != nil {
			return err
		}
		if vote == nil {
			return apperr.NotFoundf("no vote of user %d on post %d", userID, target.PostID)
		}
		if err := tx.Votes().Delete(ctx, vote); err != nil {
			return err
		}
		applyVote(content.aggregate(), vote.Value, 0, v.e.now())
		if err := content.save(ctx, tx); err != nil {
			return err
		}
		fx.touch(content.post.SphereID)
		return nil
	})
	if err == nil {
		telemetry.RecordVote(ctx, "retract")
	}
	return err
}

// GetVote returns the vote of user on the target, or nil when there is none
func (v *VoteLedger) GetVote(ctx context.Context, userID int64, target VoteTarget) (*models.Vote, error) {
	var vote *models.Vote
	err := v.e.read(ctx, "get_vote", func(tx store.Tx) error {
		var err error
		vote, err = tx.Votes().Get(ctx, target.PostID, target.CommentID, userID)
		return err
	})
	return vote, err
}
