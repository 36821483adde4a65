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

	"github.com/deskhive/deskhive/internal/app"
	"github.com/deskhive/deskhive/internal/auth"
	"github.com/deskhive/deskhive/internal/dashboard"
	"github.com/deskhive/deskhive/internal/departments"
	"github.com/deskhive/deskhive/internal/notifications"
	"github.com/deskhive/deskhive/internal/observability"
	"github.com/deskhive/deskhive/internal/platform/cache"
	"github.com/deskhive/deskhive/internal/platform/db"
	"github.com/deskhive/deskhive/internal/presence"
	"github.com/deskhive/deskhive/internal/rbac"
	"github.com/deskhive/deskhive/internal/shared"
	"github.com/deskhive/deskhive/internal/tickets"
	"github.com/deskhive/deskhive/internal/users"
	"github.com/deskhive/deskhive/jobs"
)

// ticketAuthz adapts the rbac service to the single-permission question the
// ticket service asks.
type ticketAuthz struct {
	rbac *rbac.Service
}

func (a ticketAuthz) Can(ctx context.Context, userID int64, permission string) (bool, error) {
	return a.rbac.CheckPermissions(ctx, userID, rbac.LogicAll, permission)
}

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
	auditLogger := shared.NewAuditLogger(pool)

	rbacRepo := rbac.NewRepository(pool)
	rbacCache := rbac.NewCache(rbacRepo, redisClient, 5*time.Minute)
	rbacService := rbac.NewService(rbacRepo, rbacCache, logger)
	rbacService.SetInvalidator(rbacCache)
	guard := rbac.Middleware{Service: rbacService, Logger: logger, Metrics: metrics}

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, rbacService, tokens)
	authHandler := auth.NewHandler(logger, authService, rbacService)
	authMiddleware := auth.Middleware{Tokens: tokens, Header: cfg.TokenHeader, Logger: logger}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	tracker := presence.NewTracker(redisClient, cfg.PresenceTTL)

	dashboardRepo := dashboard.NewRepository(pool)
	dashboardService := dashboard.NewService(dashboardRepo, tracker, redisClient, cfg.DashboardCacheTTL, logger)

	ticketRepo := tickets.NewRepository(pool)
	ticketService := tickets.NewService(ticketRepo, ticketAuthz{rbac: rbacService}, logger)
	ticketService.SetNotifier(jobClient)
	ticketService.SetAudit(auditLogger)
	ticketService.SetInvalidator(dashboardService)

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo, auditLogger, logger)

	deptRepo := departments.NewRepository(pool)
	deptService := departments.NewService(deptRepo)

	notifRepo := notifications.NewRepository(pool)
	notifService := notifications.NewService(notifRepo, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		AuthHandler:          authHandler,
		AuthMiddleware:       authMiddleware,
		RBACHandler:          rbac.NewHandler(logger, rbacService, guard),
		UsersHandler:         users.NewHandler(logger, userService, guard),
		DepartmentsHandler:   departments.NewHandler(logger, deptService, guard),
		TicketsHandler:       tickets.NewHandler(logger, ticketService, guard),
		NotificationsHandler: notifications.NewHandler(logger, notifService),
		PresenceHandler:      presence.NewHandler(logger, tracker),
		DashboardHandler:     dashboard.NewHandler(logger, dashboardService, guard),
		JobHandler:           jobs.NewHandler(inspector, jobClient, logger),
		Metrics:              metrics,
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
