package content

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
)

// VotesAPI provides vote methods
type VotesAPI struct {
	votes *engine.VoteLedger
}

// NewVotesAPI creates a new votes API
func NewVotesAPI(votes *engine.VoteLedger) *VotesAPI {
	return &VotesAPI{votes: votes}
}

type voteTargetParams struct {
	PostID    int64  `json:"post_id"`
	CommentID *int64 `json:"comment_id"`
}

func (p *voteTargetParams) target() (engine.VoteTarget, error) {
	if p.PostID == 0 {
		return engine.VoteTarget{}, params.Missing("post_id")
	}
	return engine.VoteTarget{PostID: p.PostID, CommentID: params.NullInt(p.CommentID)}, nil
}

// CastVote handles content.cast_vote
func (a *VotesAPI) CastVote(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		voteTargetParams
		Value int16 `json:"value"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	target, err := p.target()
	if err != nil {
		return nil, err
	}

	vote, err := a.votes.CastVote(ctx.Request.Context(), userID, target, p.Value)
	if err != nil {
		return nil, err
	}
	return objects.Vote(vote), nil
}

// RetractVote handles content.retract_vote
func (a *VotesAPI) RetractVote(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p voteTargetParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	target, err := p.target()
	if err != nil {
		return nil, err
	}

	if err := a.votes.RetractVote(ctx.Request.Context(), userID, target); err != nil {
		return nil, err
	}
	return map[string]interface{}{"post_id": p.PostID, "comment_id": p.CommentID, "retracted": true}, nil
}

// GetVote handles content.get_vote. A caller without a vote gets value 0.
func (a *VotesAPI) GetVote(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p voteTargetParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	target, err := p.target()
	if err != nil {
		return nil, err
	}

	vote, err := a.votes.GetVote(ctx.Request.Context(), userID, target)
	if err != nil {
		return nil, err
	}
	if vote == nil {
		return map[string]interface{}{"post_id": p.PostID, "comment_id": p.CommentID, "value": 0}, nil
	}
	return objects.Vote(vote), nil
}
