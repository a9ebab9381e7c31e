package objects

import (
	"context"
	"fmt"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
)

// DeletedAuthor stands in for the name of a deleted user
const DeletedAuthor = "[deleted]"

// UserSource resolves the authors of loaded content
type UserSource interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// PostLoader builds complete post and comment objects
type PostLoader struct {
	users UserSource
}

// NewPostLoader creates a new post loader
func NewPostLoader(users UserSource) *PostLoader {
	return &PostLoader{users: users}
}

// LoadPosts builds post objects in the order given
func (l *PostLoader) LoadPosts(ctx context.Context, posts []*models.Post, truncateBody int) ([]map[string]interface{}, error) {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.CreatorID
	}
	names, err := l.authorNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]map[string]interface{}, 0, len(posts))
	for _, p := range posts {
		result = append(result, buildPostObject(p, names[p.CreatorID], truncateBody))
	}
	return result, nil
}

// LoadPost builds one post object
func (l *PostLoader) LoadPost(ctx context.Context, post *models.Post) (map[string]interface{}, error) {
	objs, err := l.LoadPosts(ctx, []*models.Post{post}, 0)
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// LoadComments builds comment objects in the order given. Deleted comments keep
// their place in the thread with the body and author blanked.
func (l *PostLoader) LoadComments(ctx context.Context, comments []*models.Comment) ([]map[string]interface{}, error) {
	ids := make([]int64, 0, len(comments))
	for _, c := range comments {
		if !c.IsDeleted() {
			ids = append(ids, c.CreatorID)
		}
	}
	names, err := l.authorNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]map[string]interface{}, 0, len(comments))
	for _, c := range comments {
		result = append(result, buildCommentObject(c, names[c.CreatorID]))
	}
	return result, nil
}

// authorNames loads each distinct author once
func (l *PostLoader) authorNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if _, ok := names[id]; ok {
			continue
		}
		user, err := l.users.GetUser(ctx, id)
		switch {
		case apperr.IsNotFound(err):
			names[id] = DeletedAuthor
		case err != nil:
			return nil, fmt.Errorf("failed to load author %d: %w", id, err)
		default:
			names[id] = user.Username
		}
	}
	return names, nil
}

func buildPostObject(p *models.Post, author string, truncateBody int) map[string]interface{} {
	body := p.Body
	if truncateBody > 0 && len(body) > truncateBody {
		body = body[:truncateBody]
	}

	return map[string]interface{}{
		"post_id":      p.ID,
		"sphere_id":    p.SphereID,
		"satellite_id": nullInt(p.SatelliteID),
		"category_id":  nullInt(p.CategoryID),
		"author_id":    p.CreatorID,
		"author":       author,
		"title":        p.Title,
		"body":         body,
		"body_length":  len(p.Body),
		"is_rich_text": p.IsRichText,
		"link":         nullString(p.Link),
		"link_type":    p.LinkType.String(),
		"is_nsfw":      p.IsNSFW,
		"is_spoiler":   p.IsSpoiler,
		"is_pinned":    p.IsPinned,
		"num_comments": p.CommentCount,
		"moderation":   moderationObject(&p.Moderation),
		"votes":        aggregateObject(&p.VoteAggregate),
		"created":      formatTime(p.CreatedAt),
		"edited":       nullTime(p.EditedAt),
	}
}

func buildCommentObject(c *models.Comment, author string) map[string]interface{} {
	obj := map[string]interface{}{
		"comment_id":   c.ID,
		"post_id":      c.PostID,
		"parent_id":    nullInt(c.ParentID),
		"author_id":    c.CreatorID,
		"author":       author,
		"body":         c.Body,
		"is_rich_text": c.IsRichText,
		"is_pinned":    c.IsPinned,
		"is_deleted":   c.IsDeleted(),
		"moderation":   moderationObject(&c.Moderation),
		"votes":        aggregateObject(&c.VoteAggregate),
		"created":      formatTime(c.CreatedAt),
		"edited":       nullTime(c.EditedAt),
	}
	if c.IsDeleted() {
		obj["author_id"] = nil
		obj["author"] = DeletedAuthor
		obj["body"] = ""
	}
	return obj
}

func moderationObject(m *models.Moderation) interface{} {
	if !m.IsModerated() {
		return nil
	}
	return map[string]interface{}{
		"infringed_rule_id": nullInt(m.InfringedRuleID),
		"moderator_id":      nullInt(m.ModeratorID),
		"message":           nullString(m.ModeratorMessage),
		"moderated":         nullTime(m.ModeratedAt),
	}
}

func aggregateObject(agg *models.VoteAggregate) map[string]interface{} {
	return map[string]interface{}{
		"score":             agg.Score,
		"score_minus":       agg.ScoreMinus,
		"score_plus":        agg.Score + agg.ScoreMinus,
		"recommended_score": agg.RecommendedScore,
		"trending_score":    agg.TrendingScore,
		"scoring_anchor":    formatTime(agg.ScoringAnchor),
		"scored":            formatTime(agg.ScoredAt),
	}
}

// Vote builds a vote object
func Vote(v *models.Vote) map[string]interface{} {
	return map[string]interface{}{
		"vote_id":    v.ID,
		"post_id":    v.PostID,
		"comment_id": nullInt(v.CommentID),
		"user_id":    v.UserID,
		"value":      v.Value,
		"created":    formatTime(v.CreatedAt),
		"updated":    formatTime(v.UpdatedAt),
	}
}
