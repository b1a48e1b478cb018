package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/elisha-et/TutorLink/internal/app"
	"github.com/elisha-et/TutorLink/internal/config"
	"github.com/elisha-et/TutorLink/internal/db"
	internalhttp "github.com/elisha-et/TutorLink/internal/http"
	"github.com/elisha-et/TutorLink/internal/repository"
	"github.com/elisha-et/TutorLink/internal/repository/memstore"
)

func main() {
	cfg := config.Load()
	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store repository.Storage
	if cfg.DevMode {
		logger.Warn("running with in-memory store, data will not survive a restart")
		store = memstore.New()
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connection failed", zap.Error(err))
		}
		defer pool.Close()

		migrator, err := app.NewMigrator(pool, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal("migrator init failed", zap.Error(err))
		}
		if err := migrator.Run(ctx); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		if version, err := migrator.Version(ctx); err == nil {
			logger.Info("database ready", zap.Int64("schema_version", version))
		}
		if err := migrator.Close(); err != nil {
			logger.Warn("migrator close error", zap.Error(err))
		}

		store = repository.NewStore(pool)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		logger.Info("token revocation enabled", zap.String("redis_addr", cfg.RedisAddr))
	} else {
		logger.Info("no redis configured, logout revocation disabled")
	}

	server := internalhttp.NewServer(cfg, store, redisClient)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("tutorlink api listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
