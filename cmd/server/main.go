// Command rms-server starts the retail management REST API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/cache"
	"github.com/and161185/retail-desk/internal/config"
	"github.com/and161185/retail-desk/internal/limiter"
	"github.com/and161185/retail-desk/internal/migrate"
	"github.com/and161185/retail-desk/internal/repository/postgres"
	"github.com/and161185/retail-desk/internal/server/httpapi"
	"github.com/and161185/retail-desk/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves HTTP until SIGINT/SIGTERM.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("could not load .env, using process environment only", zap.Error(err))
	}
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.Dev {
		if dl, err := zap.NewDevelopment(); err == nil {
			logger = dl
		}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.DSN, logger)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Category cache: Redis when reachable, otherwise none
	var cats cache.Categories = cache.Nop{}
	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	switch {
	case err != nil:
		logger.Warn("redis unavailable, category cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	case rdb != nil:
		defer func() { _ = rdb.Close() }()
		cats = cache.NewRedis(rdb, "", cfg.CategoryTTL)
		logger.Info("category cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	// Repositories
	db := &postgres.DB{Pool: pool}
	userRepo := postgres.NewUserRepo(db)
	productRepo := postgres.NewProductRepo(db)
	sellerRepo := postgres.NewSellerRepo(db)

	lim := limiter.NewPG(pool, limiter.Policy{Window: cfg.LoginWindow, MaxFails: cfg.LoginMaxFails, BlockFor: cfg.LoginBlockFor})

	// Services
	authSvc := service.NewAuthService(userRepo, []byte(cfg.JWTKey), cfg.AccessTTL, lim, cfg.BcryptCost)
	productSvc := service.NewProductService(productRepo, cats, logger.Named("products"))
	sellerSvc := service.NewSellerService(sellerRepo, productRepo, logger.Named("sellers"))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.New(authSvc, productSvc, sellerSvc, logger, cfg.CORSOrigins).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
