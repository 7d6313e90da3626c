package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "cashier/internal/domain/common"
	_ "cashier/internal/domain/payment"
	"cashier/internal/pkg/config"
	"cashier/internal/pkg/middleware"
	"cashier/internal/pkg/registry"
	"cashier/pkg/database"
	"cashier/pkg/logger"
	"cashier/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Error("fatal error", zap.Error(err))
		_ = logger.Log.Sync()
		os.Exit(1)
	}
}

func run() error {
	// 1. 配置与日志
	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := &config.GlobalConfig

	if err := logger.Init(cfg.App.Debug); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Log.Sync() }()
	log := logger.FromZap(logger.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 2. 基础设施，未配置时模块自行降级
	mc := &registry.ModuleContext{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.GetGlobalCollector(),
	}

	if cfg.Database.Host != "" {
		db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		mc.DB = db
		defer func() { _ = database.Close(db) }()
	}

	if cfg.Guard.Enabled {
		rdb, err := database.InitRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		mc.Redis = rdb
		defer func() { _ = rdb.Close() }()
	}

	// 3. 路由与中间件
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:   []string{"X-Trace-ID"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware(mc.Metrics))

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimit.QPS), cfg.Server.RateLimit.Burst)
	r.Use(middleware.RateLimitMiddleware(limiter))
	go cleanupLimiter(ctx, limiter)

	mc.Router = r

	// 4. 业务模块
	defer mc.Shutdown()
	if err := registry.InitModules(mc); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("cashier server listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func cleanupLimiter(ctx context.Context, limiter *middleware.IPRateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup(10 * time.Minute)
		}
	}
}
