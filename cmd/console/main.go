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

	"github.com/datainovate/labconsole/internal/app"
	"github.com/datainovate/labconsole/internal/auth"
	"github.com/datainovate/labconsole/internal/backend"
	"github.com/datainovate/labconsole/internal/console"
	"github.com/datainovate/labconsole/internal/observability"
	"github.com/datainovate/labconsole/internal/platform/cache"
	"github.com/datainovate/labconsole/internal/platform/db"
	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
	"github.com/datainovate/labconsole/internal/view"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var recorder auth.SessionRecorder = auth.NopRecorder{}
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Warn("login audit disabled", slog.Any("error", err))
		} else {
			defer pool.Close()
			recorder = auth.NewPGRecorder(pool)
		}
	}

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction(), logger)
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	store := rbac.NewStore()
	resolver := rbac.NewResolver(store)
	registry := console.DefaultRegistry()

	templates, err := view.NewEngine(view.Options{
		Policy:    cfg.ControlPolicy(),
		CSRF:      csrfManager,
		Navigator: registry.Navigator(),
	})
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	rbacMiddleware := rbac.Middleware{
		Logger:   logger,
		Denied:   app.DeniedHandler(logger, templates),
		Recorder: metrics,
	}

	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, logger).WithObserver(metrics)
	authService := auth.NewService(client, sessionManager, store, recorder, sessionManager.TTL(), logger)
	authHandler := auth.NewHandler(logger, authService, templates)
	consoleHandler := console.NewHandler(logger, client, templates, store, rbacMiddleware, registry)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Resolver:       resolver,
		AuthHandler:    authHandler,
		ConsoleHandler: consoleHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendBaseURL),
			slog.String("control_policy", string(templates.Policy())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
