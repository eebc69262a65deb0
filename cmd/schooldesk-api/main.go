package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/schooldesk/schooldesk/internal/app"
	"github.com/schooldesk/schooldesk/internal/audit"
	audithttp "github.com/schooldesk/schooldesk/internal/audit/http"
	"github.com/schooldesk/schooldesk/internal/auth"
	"github.com/schooldesk/schooldesk/internal/observability"
	"github.com/schooldesk/schooldesk/internal/platform/cache"
	"github.com/schooldesk/schooldesk/internal/platform/db"
	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
	"github.com/schooldesk/schooldesk/internal/users"
	"github.com/schooldesk/schooldesk/jobs"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := cfg.UnguardedPolicy()
	if err != nil {
		logger.Error("access policy", slog.Any("error", err))
		os.Exit(1)
	}
	if policy == rbac.AllowUnguarded {
		logger.Warn("dashboard routes without a guard entry are open to every signed-in role",
			slog.String("setting", "ACCESS_UNGUARDED_ROUTES=allow"))
	}

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionSecret, cfg.SessionTTL)
	guard := rbac.NewGuard(policy)
	rbacMiddleware := rbac.Middleware{Guard: guard, Logger: logger, Metrics: metrics}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.NewRepository(dbpool), sessionManager, logger)
	authHandler := auth.NewHandler(logger, authService, metrics, cfg.LoginRateLimit)

	usersService := users.NewService(users.NewRepository(dbpool), sessionManager, jobClient, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	accessHandler := rbac.NewHandler(logger, guard, rbacMiddleware)
	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware, cfg.AuditExportRateLimit)
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Sessions:      sessionManager,
		AuthHandler:   authHandler,
		AccessHandler: accessHandler,
		UsersHandler:  usersHandler,
		AuditHandler:  auditHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
