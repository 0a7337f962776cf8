package controllers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/utils"
)

const maxPasswordBytes = 72

// AuthOptions groups what AuthController needs besides the database.
type AuthOptions struct {
	Tokens  *utils.TokenManager
	Hasher  *utils.PasswordHasher
	Cookies utils.CookiePolicy
	// Blacklist is set only when logout revokes tokens server-side.
	Blacklist   *utils.TokenBlacklist
	AdminEmails []string
	Cache       *utils.Cache
}

// AuthController handles registration, login and logout for local accounts.
type AuthController struct {
	db        *gorm.DB
	tokens    *utils.TokenManager
	hasher    *utils.PasswordHasher
	cookies   utils.CookiePolicy
	blacklist *utils.TokenBlacklist
	admins    map[string]struct{}
	cache     *utils.Cache
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB, opts AuthOptions) *AuthController {
	admins := make(map[string]struct{}, len(opts.AdminEmails))
	for _, email := range opts.AdminEmails {
		if e := models.NormalizeEmail(email); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &AuthController{
		db:        db,
		tokens:    opts.Tokens,
		hasher:    opts.Hasher,
		cookies:   opts.Cookies,
		blacklist: opts.Blacklist,
		admins:    admins,
		cache:     opts.Cache,
	}
}

// Register handles local account registration. The password is hashed before the insert.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username         string `json:"username" binding:"required"`
		Email            string `json:"email" binding:"required"`
		Password         string `json:"password" binding:"required"`
		VerifiedPassword string `json:"verifiedPassword" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Abort(ctx, utils.ValidationError(40001, "invalid request payload"))
		return
	}

	username := strings.TrimSpace(req.Username)
	email := models.NormalizeEmail(req.Email)
	if username == "" || email == "" || req.Password == "" || req.VerifiedPassword == "" {
		utils.Abort(ctx, utils.ValidationError(40002, "username, email, password and verifiedPassword are required"))
		return
	}
	if len([]rune(username)) > 64 {
		utils.Abort(ctx, utils.ValidationError(40002, "username must be at most 64 characters"))
		return
	}
	if req.Password != req.VerifiedPassword {
		utils.Abort(ctx, utils.ValidationError(40003, "passwords do not match"))
		return
	}
	// bcrypt rejects longer passwords
	if len(req.Password) > maxPasswordBytes {
		utils.Abort(ctx, utils.ValidationError(40006, "password must be at most 72 bytes"))
		return
	}

	db := a.db.WithContext(ctx.Request.Context())
	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		utils.Abort(ctx, utils.InternalError(50001, "failed to create user", err))
		return
	}
	if existing > 0 {
		utils.Abort(ctx, utils.ConflictError(40901, "email already registered"))
		return
	}

	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			utils.Abort(ctx, utils.ValidationError(40006, "password must be at most 72 bytes"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50002, "failed to create user", err))
		return
	}

	_, isAdmin := a.admins[email]
	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if err := db.Create(&user).Error; err != nil {
		// a concurrent registration can still win the race past the pre-check
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Abort(ctx, utils.ConflictError(40901, "email already registered"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50003, "failed to create user", err))
		return
	}

	a.cache.InvalidateByPrefix(ctx.Request.Context(), statsCacheKey)
	utils.Logger.Info("user registered", zap.Uint("user_id", user.ID), zap.Bool("admin", user.IsAdmin))
	utils.Created(ctx, gin.H{"userId": user.ID})
}

// Login verifies credentials and sets the session cookie.
// Unknown email and wrong password produce the same response.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Abort(ctx, utils.ValidationError(40004, "invalid request payload"))
		return
	}

	email := models.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		utils.Abort(ctx, utils.ValidationError(40005, "email and password are required"))
		return
	}

	var user models.User
	err := a.db.WithContext(ctx.Request.Context()).Where("email = ?", email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Abort(ctx, utils.InternalError(50004, "failed to log in", err))
		return
	}
	// accounts created through third-party sign-in have no password
	if err != nil || user.PasswordHash == "" {
		a.hasher.Burn(req.Password)
		utils.Abort(ctx, utils.AuthenticationError(40104, "invalid credentials"))
		return
	}
	if !a.hasher.Check(user.PasswordHash, req.Password) {
		utils.Abort(ctx, utils.AuthenticationError(40104, "invalid credentials"))
		return
	}

	a.startSession(ctx, &user)
}

// startSession issues a token for user, stores it in the cookie and answers with the user.
func (a *AuthController) startSession(ctx *gin.Context, user *models.User) {
	token, _, err := a.tokens.Issue(user.ID)
	if err != nil {
		utils.Abort(ctx, utils.InternalError(50005, "failed to generate token", err))
		return
	}
	a.cookies.SetSessionCookie(ctx, token, a.tokens.TTL())
	utils.Success(ctx, gin.H{"user": user})
}

// Logout clears the session cookie. It needs no authentication and always succeeds.
// With revocation enabled, a still valid token is blacklisted until its natural expiry.
func (a *AuthController) Logout(ctx *gin.Context) {
	if a.blacklist != nil {
		if token, err := ctx.Cookie(utils.SessionCookieName); err == nil && token != "" {
			if _, expiresAt, err := a.tokens.Parse(token); err == nil {
				if err := a.blacklist.Revoke(ctx.Request.Context(), token, expiresAt); err != nil {
					utils.Logger.Warn("token revocation failed", zap.Error(err))
				}
			}
		}
	}
	a.cookies.ClearSessionCookie(ctx)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	user, ok := requireUser(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}
