package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/blogapi/config"
	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/routes"
	"github.com/cppla/blogapi/utils"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.json"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	db, err := config.InitDatabase(cfg, utils.Logger, &models.User{}, &models.Post{}, &models.Comment{})
	if err != nil {
		utils.Logger.Fatal("database init failed", zap.Error(err))
	}

	var rc *redis.Client
	if cfg.RedisEnabled() {
		rc, err = utils.NewRedis(cfg)
		if err != nil {
			utils.Logger.Warn("redis unavailable, using in-memory stores", zap.Error(err))
			rc = nil
		}
	}

	r, err := routes.SetupRouter(routes.Deps{Config: cfg, DB: db, Redis: rc})
	if err != nil {
		utils.Logger.Fatal("router setup failed", zap.Error(err))
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(context.Background(), ":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
