package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/utils"
)

const userCacheTTL = time.Hour

// UserController exposes user profiles.
type UserController struct {
	db    *gorm.DB
	cache *utils.Cache
}

// NewUserController creates a new UserController instance.
func NewUserController(db *gorm.DB, cache *utils.Cache) *UserController {
	return &UserController{db: db, cache: cache}
}

type userView struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

func userCacheKey(id uint) string {
	return fmt.Sprintf("cache:user:%d", id)
}

// GetUser returns a user's profile. The email is visible only to the user and to admins.
func (u *UserController) GetUser(ctx *gin.Context) {
	viewer, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Abort(ctx, utils.NotFoundError(40430, "user not found"))
		return
	}

	view, err := u.loadView(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Abort(ctx, utils.NotFoundError(40430, "user not found"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50030, "failed to load user", err))
		return
	}

	if !viewer.CanModify(view.ID) {
		view.Email = ""
	}
	utils.Success(ctx, gin.H{"user": view})
}

func (u *UserController) loadView(ctx *gin.Context, id uint) (userView, error) {
	key := userCacheKey(id)
	if b, ok := u.cache.GetBytes(ctx.Request.Context(), key); ok {
		var view userView
		if err := json.Unmarshal(b, &view); err == nil {
			return view, nil
		}
	}

	var user models.User
	if err := u.db.WithContext(ctx.Request.Context()).First(&user, id).Error; err != nil {
		return userView{}, err
	}
	view := newUserView(&user)
	u.cache.SetJSON(ctx.Request.Context(), key, view, userCacheTTL)
	return view, nil
}

// ListUsers returns a page of users. Admin only.
func (u *UserController) ListUsers(ctx *gin.Context) {
	viewer, ok := requireUser(ctx)
	if !ok {
		return
	}
	if !viewer.IsAdmin {
		utils.Abort(ctx, utils.AuthorizationError(40330, "admin privileges required"))
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	db := u.db.WithContext(ctx.Request.Context()).Model(&models.User{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50031, "failed to count users", err))
		return
	}

	var users []models.User
	if err := db.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50032, "failed to list users", err))
		return
	}

	items := make([]userView, 0, len(users))
	for i := range users {
		items = append(items, newUserView(&users[i]))
	}
	utils.Success(ctx, gin.H{
		"items":      items,
		"pagination": newPagination(page, pageSize, total),
	})
}
