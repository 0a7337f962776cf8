package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/config"
	"github.com/cppla/blogapi/controllers"
	"github.com/cppla/blogapi/middleware"
	"github.com/cppla/blogapi/utils"
)

// Deps carries everything the router needs to build its controllers.
type Deps struct {
	Config config.AppConfig
	DB     *gorm.DB
	// Redis is optional; without it revocations and oauth states live in process memory.
	Redis *redis.Client
	// OAuthProviders overrides the providers derived from Config when non-nil.
	OAuthProviders map[string]controllers.OAuthProvider
	// Clock overrides token issue/verify time when non-nil.
	Clock func() time.Time
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) (*gin.Engine, error) {
	cfg := deps.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.IsProduction() && cfg.AllowsAnyOrigin() {
		return nil, config.ErrWildcardOrigin
	}

	tokens, err := utils.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL())
	if err != nil {
		return nil, err
	}
	if deps.Clock != nil {
		tokens = tokens.WithClock(deps.Clock)
	}

	r := gin.New()
	r.Use(middleware.RequestID())

	// Access log goes to its own rolling file; the application logger is the fallback
	gl := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		} else {
			utils.Logger.Warn("gin access log disabled", zap.String("path", cfg.GinPath), zap.Error(err))
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.AllowsAnyOrigin() {
		// credentials cannot be combined with a literal wildcard origin
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	store := utils.NewTTLStore(deps.Redis)
	cache := utils.NewCache(deps.Redis)

	var blacklist *utils.TokenBlacklist
	if cfg.RevokeOnLogout {
		blacklist = utils.NewTokenBlacklist(store)
		if deps.Clock != nil {
			blacklist = blacklist.WithClock(deps.Clock)
		}
	}

	providers := deps.OAuthProviders
	if providers == nil {
		providers = controllers.NewOAuthProviders(cfg)
	}

	authController := controllers.NewAuthController(deps.DB, controllers.AuthOptions{
		Tokens:      tokens,
		Hasher:      utils.NewPasswordHasher(cfg.BcryptCost),
		Cookies:     utils.NewCookiePolicy(cfg.IsProduction()),
		Blacklist:   blacklist,
		AdminEmails: cfg.AdminEmails,
		Cache:       cache,
	})
	oauthController := controllers.NewOAuthController(authController, utils.NewStateStore(store), providers)
	postController := controllers.NewPostController(deps.DB, cache)
	userController := controllers.NewUserController(deps.DB, cache)
	statsController := controllers.NewStatsController(deps.DB, cache)

	api := r.Group(cfg.BasePath)

	public := api.Group("")
	public.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	public.POST("/register", authController.Register)
	public.POST("/login", authController.Login)
	public.GET("/oauth/:provider/login", oauthController.OAuthRedirect)
	public.GET("/oauth/:provider/callback", oauthController.OAuthCallback)

	api.GET("/logout", authController.Logout)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(tokens, deps.DB, blacklist))
	protected.GET("/me", authController.Me)
	protected.GET("/posts", postController.ListPosts)
	protected.GET("/post/:id", postController.GetPost)
	protected.POST("/post", postController.CreatePost)
	protected.DELETE("/posts/:postId", postController.DeletePost)
	protected.POST("/posts/:postId/commentaire", postController.CreateComment)
	protected.POST("/posts/:postId/comments", postController.CreateComment)
	protected.DELETE("/comments/:commentId", postController.DeleteComment)
	protected.GET("/user/:id", userController.GetUser)
	protected.GET("/users", userController.ListUsers)
	protected.GET("/stats", statsController.GetStats)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r, nil
}
