package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUserKey stores the authenticated *models.User inside Gin context.
	ContextUserKey = "user"
)

// AuthRequired ensures the request carries a valid session cookie that resolves to an existing user.
// blacklist may be nil when tokens are never revoked.
func AuthRequired(tokens *utils.TokenManager, db *gorm.DB, blacklist *utils.TokenBlacklist) gin.HandlerFunc {
	if tokens == nil {
		// fail closed instead of letting every request through
		panic("middleware: AuthRequired needs a token manager")
	}
	return func(ctx *gin.Context) {
		tokenString, err := ctx.Cookie(utils.SessionCookieName)
		if err != nil || tokenString == "" {
			utils.Abort(ctx, utils.AuthenticationError(40101, "no token"))
			return
		}

		userID, _, err := tokens.Parse(tokenString)
		if err != nil {
			utils.Logger.Debug("session token rejected", zap.Error(err), zap.String("ip", ctx.ClientIP()))
			utils.Abort(ctx, utils.AuthenticationError(40102, "invalid or expired token"))
			return
		}

		if blacklist != nil {
			revoked, err := blacklist.IsRevoked(ctx.Request.Context(), tokenString)
			if err != nil {
				utils.Abort(ctx, utils.InternalError(50101, "failed to verify session", err))
				return
			}
			if revoked {
				utils.Abort(ctx, utils.AuthenticationError(40102, "invalid or expired token"))
				return
			}
		}

		var user models.User
		if err := db.WithContext(ctx.Request.Context()).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Abort(ctx, utils.AuthenticationError(40103, "user no longer exists"))
				return
			}
			utils.Abort(ctx, utils.InternalError(50102, "failed to load user", err))
			return
		}

		ctx.Set(ContextUserIDKey, user.ID)
		ctx.Set(ContextUserKey, &user)
		ctx.Next()
	}
}

// CurrentUser returns the user attached by AuthRequired.
func CurrentUser(ctx *gin.Context) (*models.User, bool) {
	value, exists := ctx.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}
