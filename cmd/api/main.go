package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baharkarakas/user-accounts/internal/api"
	"github.com/baharkarakas/user-accounts/internal/auth"
	"github.com/baharkarakas/user-accounts/internal/cache"
	"github.com/baharkarakas/user-accounts/internal/config"
	"github.com/baharkarakas/user-accounts/internal/db"
	"github.com/baharkarakas/user-accounts/internal/logger"
	"github.com/baharkarakas/user-accounts/internal/metrics"
	"github.com/baharkarakas/user-accounts/internal/repository"
	"github.com/baharkarakas/user-accounts/internal/repository/memory"
	"github.com/baharkarakas/user-accounts/internal/repository/postgres"
	"github.com/baharkarakas/user-accounts/internal/services"
	"github.com/baharkarakas/user-accounts/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var users repository.Users
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		users = memory.NewUsers()
	default:
		if cfg.Migrate {
			if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		users = postgres.NewRepositories(pool).Users
	}

	avatars, err := storage.NewLocalAvatars(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.Error("avatar storage", "err", err)
		os.Exit(1)
	}

	userSvc := services.NewUserService(users, avatars, cfg)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, cache calls will fail open", "addr", cfg.RedisAddr, "err", err)
		}
		userSvc.WithCache(cache.NewUserCache(rdb, cfg.CacheTTL))
	}

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{Cfg: cfg, UserSvc: userSvc, Tokens: tm})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
