package controllers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/utils"
)

const statsCacheTTL = 5 * time.Minute

// StatsController provides blog statistics such as user, post and comment counts.
type StatsController struct {
	db    *gorm.DB
	cache *utils.Cache
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, cache *utils.Cache) *StatsController {
	return &StatsController{db: db, cache: cache}
}

type blogStats struct {
	UserCount    int64 `json:"user_count"`
	PostCount    int64 `json:"post_count"`
	CommentCount int64 `json:"comment_count"`
}

// GetStats returns aggregate statistics. Admin only.
func (s *StatsController) GetStats(ctx *gin.Context) {
	viewer, ok := requireUser(ctx)
	if !ok {
		return
	}
	if !viewer.IsAdmin {
		utils.Abort(ctx, utils.AuthorizationError(40340, "admin privileges required"))
		return
	}

	if b, ok := s.cache.GetBytes(ctx.Request.Context(), statsCacheKey); ok {
		var cached blogStats
		if err := json.Unmarshal(b, &cached); err == nil {
			utils.Success(ctx, cached)
			return
		}
	}

	db := s.db.WithContext(ctx.Request.Context())
	var stats blogStats
	if err := db.Model(&models.User{}).Count(&stats.UserCount).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50040, "failed to count users", err))
		return
	}
	if err := db.Model(&models.Post{}).Count(&stats.PostCount).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50041, "failed to count posts", err))
		return
	}
	if err := db.Model(&models.Comment{}).Count(&stats.CommentCount).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50042, "failed to count comments", err))
		return
	}

	s.cache.SetJSON(ctx.Request.Context(), statsCacheKey, stats, statsCacheTTL)
	utils.Success(ctx, stats)
}
