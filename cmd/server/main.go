// Package main is the entrypoint for the jobclock API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/jobclock/internal/api"
	"github.com/kiranshivaraju/jobclock/internal/api/handler"
	mw "github.com/kiranshivaraju/jobclock/internal/api/middleware"
	"github.com/kiranshivaraju/jobclock/internal/api/response"
	"github.com/kiranshivaraju/jobclock/internal/apikey"
	"github.com/kiranshivaraju/jobclock/internal/cache"
	"github.com/kiranshivaraju/jobclock/internal/config"
	"github.com/kiranshivaraju/jobclock/internal/jobs"
	"github.com/kiranshivaraju/jobclock/internal/notify"
	"github.com/kiranshivaraju/jobclock/internal/store"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "push_enabled", cfg.Push.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Store, bootstrap key and job service
	pgStore := store.NewPostgresStore(pool)

	created, err := apikey.EnsureBootstrap(ctx, pgStore, cfg.Auth.BootstrapAdminKey)
	if err != nil {
		return fmt.Errorf("ensure bootstrap admin key: %w", err)
	}
	if created {
		slog.Info("bootstrap admin key created")
	}

	svc := jobs.NewService(pgStore, redisCache,
		jobs.WithStatusTTL(cfg.Jobs.StatusTTL),
		jobs.WithDefaultTarget(cfg.Jobs.DefaultTargetSeconds),
		jobs.WithLogger(slog.Default().With("component", "jobs")),
	)

	// 6. Push reminders
	if cfg.Push.Enabled() {
		sender := notify.NewWebPushSender(pgStore, notify.VAPID{
			PublicKey:  cfg.Push.VAPIDPublicKey,
			PrivateKey: cfg.Push.VAPIDPrivateKey,
			Subject:    cfg.Push.Subject,
		})
		reminder := notify.NewReminder(svc, sender, redisCache, cfg.Push.ReminderInterval,
			slog.Default().With("component", "reminder"))
		go reminder.Run(ctx)
	}

	// 7. Build router
	router := api.NewRouter(dependencies(cfg, pgStore, redisCache, svc))

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// dependencies wires every route to its handler.
func dependencies(cfg *config.Config, s store.Store, c cache.Cache, svc *jobs.Service) api.Dependencies {
	vapidPublic := ""
	if cfg.Push.Enabled() {
		vapidPublic = cfg.Push.VAPIDPublicKey
	}

	return api.Dependencies{
		Auth:      mw.NewAuth(s),
		RateLimit: mw.NewRateLimit(c, cfg.Auth.RateLimitPerMinute),

		HealthHandler: healthHandler(s, c),

		StartHandler:     handler.NewControlHandler(svc, models.ActionStart),
		PauseHandler:     handler.NewControlHandler(svc, models.ActionPause),
		ResumeHandler:    handler.NewControlHandler(svc, models.ActionResume),
		StopHandler:      handler.NewControlHandler(svc, models.ActionStop),
		PageStateHandler: handler.NewPageStateHandler(svc),
		StatusHandler:    handler.NewStatusHandler(svc),
		GetJobHandler:    handler.NewGetJobHandler(svc),
		PauseLogsHandler: handler.NewPauseLogsHandler(svc),
		MyJobsHandler:    handler.NewMyJobsHandler(svc),
		AcceptHandler:    handler.NewAcceptHandler(svc),
		DeclineHandler:   handler.NewDeclineHandler(svc),

		VAPIDKeyHandler:    handler.NewVAPIDKeyHandler(vapidPublic),
		SubscribeHandler:   handler.NewSubscribeHandler(s),
		UnsubscribeHandler: handler.NewUnsubscribeHandler(s),

		CreateJobHandler: handler.NewCreateJobHandler(svc),
		LiveJobsHandler:  handler.NewLiveJobsHandler(svc),
		ApproveHandler:   handler.NewApproveHandler(svc),
		RetryHandler:     handler.NewRetryHandler(svc),
		CreateKeyHandler: handler.NewCreateKeyHandler(s),
		ListKeysHandler:  handler.NewListKeysHandler(s),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(s),
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
