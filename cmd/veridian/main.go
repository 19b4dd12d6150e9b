package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridian-data/veridian/internal/app"
	"github.com/veridian-data/veridian/internal/audit"
	audithttp "github.com/veridian-data/veridian/internal/audit/http"
	"github.com/veridian-data/veridian/internal/catalog"
	"github.com/veridian-data/veridian/internal/engine"
	"github.com/veridian-data/veridian/internal/observability"
	"github.com/veridian-data/veridian/internal/platform/cache"
	"github.com/veridian-data/veridian/internal/platform/db"
	"github.com/veridian-data/veridian/internal/rbac"
	"github.com/veridian-data/veridian/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo, logger)

	permCache := engine.NewLRUCache(cfg.PermCacheSize, cfg.PermCacheTTL)
	eng := engine.New(engine.Options{
		Store:    engine.NewRepository(pool),
		Recorder: auditService,
		Cache:    permCache,
		Metrics:  metrics,
		Logger:   logger,
	})
	invalidator := engine.NewInvalidator(redisClient, permCache, eng, logger)

	guard := rbac.Middleware{Authorizer: eng, Logger: logger}

	rbacService := rbac.NewService(rbac.NewRepository(pool), invalidator, logger)
	usersService := users.NewService(users.NewRepository(pool), invalidator, logger)
	catalogService := catalog.NewService(catalog.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		UsersHandler:   users.NewHandler(logger, usersService),
		CatalogHandler: catalog.NewHandler(logger, catalogService),
		RBACHandler:    rbac.NewHandler(logger, rbacService, eng),
		AuditHandler:   audithttp.NewHandler(logger, auditService),
		Guard:          guard,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		// Subscribes to invalidation broadcasts from sibling instances.
		return invalidator.Run(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
