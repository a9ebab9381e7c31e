// Package content implements the content.* methods.
package content

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
)

// listingBodyLength truncates post bodies in ranked listings
const listingBodyLength = 1024

// PostsAPI provides post and comment methods
type PostsAPI struct {
	content *engine.ContentLedger
	ranking *engine.Ranking
	loader  *objects.PostLoader
}

// NewPostsAPI creates a new posts API
func NewPostsAPI(eng *engine.Engine) *PostsAPI {
	return &PostsAPI{
		content: eng.Content,
		ranking: eng.Ranking,
		loader:  objects.NewPostLoader(eng.Users),
	}
}

type postContentParams struct {
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	IsRichText bool            `json:"is_rich_text"`
	Link       string          `json:"link"`
	LinkType   models.LinkType `json:"link_type"`
	IsNSFW     bool            `json:"is_nsfw"`
	IsSpoiler  bool            `json:"is_spoiler"`
}

func (p *postContentParams) content() engine.PostContent {
	return engine.PostContent{
		Title:      p.Title,
		Body:       p.Body,
		IsRichText: p.IsRichText,
		Link:       p.Link,
		LinkType:   p.LinkType,
		IsNSFW:     p.IsNSFW,
		IsSpoiler:  p.IsSpoiler,
	}
}

type createPostParams struct {
	SphereID    int64  `json:"sphere_id"`
	SatelliteID *int64 `json:"satellite_id"`
	CategoryID  *int64 `json:"category_id"`
	postContentParams
}

// CreatePost handles content.create_post
func (a *PostsAPI) CreatePost(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p createPostParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	post, err := a.content.CreatePost(ctx.Request.Context(), userID, engine.NewPost{
		SphereID:    p.SphereID,
		SatelliteID: params.NullInt(p.SatelliteID),
		CategoryID:  params.NullInt(p.CategoryID),
		PostContent: p.content(),
	})
	if err != nil {
		return nil, err
	}
	return a.loader.LoadPost(ctx.Request.Context(), post)
}

type createCommentParams struct {
	PostID     int64  `json:"post_id"`
	ParentID   *int64 `json:"parent_id"`
	Body       string `json:"body"`
	IsRichText bool   `json:"is_rich_text"`
}

// CreateComment handles content.create_comment
func (a *PostsAPI) CreateComment(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p createCommentParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID == 0 {
		return nil, params.Missing("post_id")
	}

	comment, err := a.content.CreateComment(ctx.Request.Context(), userID, engine.NewComment{
		PostID:     p.PostID,
		ParentID:   params.NullInt(p.ParentID),
		Body:       p.Body,
		IsRichText: p.IsRichText,
	})
	if err != nil {
		return nil, err
	}
	objs, err := a.loader.LoadComments(ctx.Request.Context(), []*models.Comment{comment})
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

type editPostParams struct {
	PostID int64 `json:"post_id"`
	postContentParams
}

// EditPost handles content.edit_post
func (a *PostsAPI) EditPost(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p editPostParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID == 0 {
		return nil, params.Missing("post_id")
	}

	post, err := a.content.EditPost(ctx.Request.Context(), userID, p.PostID, p.content())
	if err != nil {
		return nil, err
	}
	return a.loader.LoadPost(ctx.Request.Context(), post)
}

type commentRef struct {
	PostID    int64 `json:"post_id"`
	CommentID int64 `json:"comment_id"`
}

func (r *commentRef) check() error {
	if r.PostID == 0 {
		return params.Missing("post_id")
	}
	if r.CommentID == 0 {
		return params.Missing("comment_id")
	}
	return nil
}

// EditComment handles content.edit_comment
func (a *PostsAPI) EditComment(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		commentRef
		Body       string `json:"body"`
		IsRichText bool   `json:"is_rich_text"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	comment, err := a.content.EditComment(ctx.Request.Context(), userID, p.PostID, p.CommentID, p.Body, p.IsRichText)
	if err != nil {
		return nil, err
	}
	objs, err := a.loader.LoadComments(ctx.Request.Context(), []*models.Comment{comment})
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// DeletePost handles content.delete_post
func (a *PostsAPI) DeletePost(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		PostID int64 `json:"post_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID == 0 {
		return nil, params.Missing("post_id")
	}

	if err := a.content.DeletePost(ctx.Request.Context(), userID, p.PostID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"post_id": p.PostID, "deleted": true}, nil
}

// DeleteComment handles content.delete_comment
func (a *PostsAPI) DeleteComment(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p commentRef
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	if err := a.content.DeleteComment(ctx.Request.Context(), userID, p.PostID, p.CommentID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"comment_id": p.CommentID, "deleted": true}, nil
}

// PinPost handles content.pin_post
func (a *PostsAPI) PinPost(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		PostID int64 `json:"post_id"`
		Pinned *bool `json:"pinned"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID == 0 {
		return nil, params.Missing("post_id")
	}
	if p.Pinned == nil {
		return nil, params.Missing("pinned")
	}

	post, err := a.content.PinPost(ctx.Request.Context(), userID, p.PostID, *p.Pinned)
	if err != nil {
		return nil, err
	}
	return a.loader.LoadPost(ctx.Request.Context(), post)
}

// PinComment handles content.pin_comment
func (a *PostsAPI) PinComment(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		commentRef
		Pinned *bool `json:"pinned"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	if p.Pinned == nil {
		return nil, params.Missing("pinned")
	}

	comment, err := a.content.PinComment(ctx.Request.Context(), userID, p.PostID, p.CommentID, *p.Pinned)
	if err != nil {
		return nil, err
	}
	objs, err := a.loader.LoadComments(ctx.Request.Context(), []*models.Comment{comment})
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// GetPost handles content.get_post
func (a *PostsAPI) GetPost(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		PostID int64 `json:"post_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID == 0 {
		return nil, params.Missing("post_id")
	}

	post, err := a.content.GetPost(ctx.Request.Context(), p.PostID)
	if err != nil {
		return nil, err
	}
	return a.loader.LoadPost(ctx.Request.Context(), post)
}

type rankedPostsParams struct {
	SphereID    int64            `json:"sphere_id"`
	SatelliteID *int64           `json:"satellite_id"`
	CategoryID  *int64           `json:"category_id"`
	Sort        models.SortOrder `json:"sort"`
	params.Page
}

// GetRankedPosts handles content.get_ranked_posts. The caller, when
// authenticated, decides whether nsfw posts are listed.
func (a *PostsAPI) GetRankedPosts(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	viewerID, err := auth.ViewerID(ctx)
	if err != nil {
		return nil, err
	}
	var p rankedPostsParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SphereID == 0 {
		return nil, params.Missing("sphere_id")
	}

	posts, err := a.ranking.RankedPosts(ctx.Request.Context(), viewerID, store.RankQuery{
		SphereID:    p.SphereID,
		SatelliteID: params.NullInt(p.SatelliteID),
		CategoryID:  params.NullInt(p.CategoryID),
		Order:       p.Sort,
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		return nil, err
	}
	return a.loader.LoadPosts(ctx.Request.Context(), posts, listingBodyLength)
}

// GetSubscribedPosts handles content.get_subscribed_posts
func (a *PostsAPI) GetSubscribedPosts(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		Sort models.SortOrder `json:"sort"`
		params.Page
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}

	posts, err := a.ranking.SubscribedPosts(ctx.Request.Context(), userID, p.Sort, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return a.loader.LoadPosts(ctx.Request.Context(), posts, listingBodyLength)
}

// ListComments handles content.list_comments
func (a *PostsAPI) ListComments(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p struct {
		PostID int64            `json:"post_id"`
		Sort   models.SortOrder `json:"sort"`
		params.Page
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID == 0 {
		return nil, params.Missing("post_id")
	}

	comments, err := a.ranking.ListComments(ctx.Request.Context(), p.PostID, p.Sort, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return a.loader.LoadComments(ctx.Request.Context(), comments)
}
