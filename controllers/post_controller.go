package controllers

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/utils"
)

// PostController manages create/read/delete operations for posts and comments.
type PostController struct {
	db    *gorm.DB
	cache *utils.Cache
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, cache *utils.Cache) *PostController {
	return &PostController{db: db, cache: cache}
}

// maxTitleLength matches the size of the title columns.
const maxTitleLength = 255

type contentRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// clean sanitizes both fields and checks what is left of them.
func (r *contentRequest) clean(code int) error {
	r.Title = utils.SanitizePlain(r.Title)
	r.Content = strings.TrimSpace(utils.Sanitize(r.Content))
	if r.Title == "" || r.Content == "" {
		return utils.ValidationError(code, "title and content are required")
	}
	if utf8.RuneCountInString(r.Title) > maxTitleLength {
		return utils.ValidationError(code, "title must be at most 255 characters")
	}
	return nil
}

// CreatePost stores a post owned by the authenticated user.
func (p *PostController) CreatePost(ctx *gin.Context) {
	user, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req contentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Abort(ctx, utils.ValidationError(40020, "invalid request payload"))
		return
	}
	if err := req.clean(40021); err != nil {
		utils.Abort(ctx, err)
		return
	}

	// owner always comes from the session, never from the payload
	post := models.Post{
		UserID:  user.ID,
		Title:   req.Title,
		Content: req.Content,
	}
	if err := p.db.WithContext(ctx.Request.Context()).Create(&post).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50020, "failed to create post", err))
		return
	}

	p.cache.InvalidateByPrefix(ctx.Request.Context(), statsCacheKey)
	utils.Success(ctx, gin.H{"post": post})
}

// ListPosts returns the requester's posts, or every post for admins.
func (p *PostController) ListPosts(ctx *gin.Context) {
	user, ok := requireUser(ctx)
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	query := p.db.WithContext(ctx.Request.Context()).Model(&models.Post{})
	if !user.IsAdmin {
		query = query.Where("user_id = ?", user.ID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50021, "failed to count posts", err))
		return
	}

	posts := []models.Post{}
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50022, "failed to list posts", err))
		return
	}

	utils.Success(ctx, gin.H{
		"items":      posts,
		"pagination": newPagination(page, pageSize, total),
	})
}

// GetPost returns a single post with its comments. Posts of other users are
// reported as missing so their existence does not leak.
func (p *PostController) GetPost(ctx *gin.Context) {
	user, ok := requireUser(ctx)
	if !ok {
		return
	}
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Abort(ctx, utils.NotFoundError(40401, "post not found"))
		return
	}

	var post models.Post
	err := p.db.WithContext(ctx.Request.Context()).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ? AND user_id = ?", postID, user.ID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Abort(ctx, utils.NotFoundError(40401, "post not found"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50023, "failed to load post", err))
		return
	}

	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost allows the author or an admin to delete a post and its comments.
func (p *PostController) DeletePost(ctx *gin.Context) {
	user, ok := requireUser(ctx)
	if !ok {
		return
	}
	postID, ok := parseID(ctx, "postId")
	if !ok {
		utils.Abort(ctx, utils.NotFoundError(40402, "post not found"))
		return
	}

	db := p.db.WithContext(ctx.Request.Context())
	var post models.Post
	if err := db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Abort(ctx, utils.NotFoundError(40402, "post not found"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50024, "failed to load post", err))
		return
	}

	if !user.CanModify(post.UserID) {
		utils.Abort(ctx, utils.AuthorizationError(40301, "you can only delete your own posts"))
		return
	}

	if err := db.Select("Comments").Delete(&post).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50025, "failed to delete post", err))
		return
	}

	p.cache.InvalidateByPrefix(ctx.Request.Context(), statsCacheKey)
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// CreateComment adds a comment to an existing post. The post id comes from the route;
// a postId in the body must agree with it.
func (p *PostController) CreateComment(ctx *gin.Context) {
	user, ok := requireUser(ctx)
	if !ok {
		return
	}
	postID, ok := parseID(ctx, "postId")
	if !ok {
		utils.Abort(ctx, utils.ValidationError(40030, "missing or invalid postId"))
		return
	}

	var req struct {
		contentRequest
		PostID *uint64 `json:"postId"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Abort(ctx, utils.ValidationError(40031, "invalid request payload"))
		return
	}
	if req.PostID != nil && *req.PostID != uint64(postID) {
		utils.Abort(ctx, utils.ValidationError(40032, "postId does not match the route"))
		return
	}
	if err := req.clean(40033); err != nil {
		utils.Abort(ctx, err)
		return
	}

	db := p.db.WithContext(ctx.Request.Context())
	var post models.Post
	if err := db.Select("id").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Abort(ctx, utils.NotFoundError(40403, "post not found"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50026, "failed to load post", err))
		return
	}

	comment := models.Comment{
		PostID:  post.ID,
		UserID:  user.ID,
		Title:   req.Title,
		Content: req.Content,
	}
	if err := db.Create(&comment).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50027, "failed to create comment", err))
		return
	}

	p.cache.InvalidateByPrefix(ctx.Request.Context(), statsCacheKey)
	utils.Success(ctx, gin.H{"comment": comment})
}

// DeleteComment allows the comment owner or an admin to delete a comment.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	user, ok := requireUser(ctx)
	if !ok {
		return
	}
	commentID, ok := parseID(ctx, "commentId")
	if !ok {
		utils.Abort(ctx, utils.NotFoundError(40420, "comment not found"))
		return
	}

	db := p.db.WithContext(ctx.Request.Context())
	var cmt models.Comment
	if err := db.First(&cmt, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Abort(ctx, utils.NotFoundError(40420, "comment not found"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50070, "failed to load comment", err))
		return
	}

	if !user.CanModify(cmt.UserID) {
		utils.Abort(ctx, utils.AuthorizationError(40320, "you can only delete your own comment"))
		return
	}
	if err := db.Delete(&cmt).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50071, "failed to delete comment", err))
		return
	}

	p.cache.InvalidateByPrefix(ctx.Request.Context(), statsCacheKey)
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}
