package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiplane/shiplane/internal/app/migrate"
	"github.com/shiplane/shiplane/internal/cache"
	httpx "github.com/shiplane/shiplane/internal/http"
	"github.com/shiplane/shiplane/internal/repository/postgres"
	"github.com/shiplane/shiplane/internal/service/catalog"
	"github.com/shiplane/shiplane/internal/service/configstore"
	"github.com/shiplane/shiplane/internal/service/deploy"
	"github.com/shiplane/shiplane/internal/service/diff"
	"github.com/shiplane/shiplane/internal/service/session"
	"github.com/shiplane/shiplane/internal/service/variables"
	"github.com/shiplane/shiplane/internal/service/version"
	"github.com/shiplane/shiplane/internal/workflow"
	"github.com/shiplane/shiplane/internal/ws"
	"github.com/shiplane/shiplane/pkg/config"
	"github.com/shiplane/shiplane/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	cacheSvc := cache.New()
	deployHub := ws.NewHub()

	sessionSvc := session.New(log, cfg)
	catalogSvc := catalog.New(repo, log)
	configSvc := configstore.New(repo, repo, cacheSvc, log)
	variableSvc := variables.New(repo, configSvc, cacheSvc, log)
	versionSvc := version.New(repo, repo, repo, configSvc, cacheSvc, log)
	diffSvc := diff.New(repo, repo, repo, configSvc, cacheSvc, log)
	engine := workflow.NewClient(cfg.WorkflowEngineURL, cfg.WorkflowTimeout, log)
	deploySvc := deploy.New(repo, repo, repo, configSvc, engine, cacheSvc, deployHub, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, cfg.SessionCookieName, cfg.SessionTTL, httpx.RouterDeps{
		Sessions:     sessionSvc,
		Catalog:      catalogSvc,
		Configs:      configSvc,
		Variables:    variableSvc,
		Versions:     versionSvc,
		Diffs:        diffSvc,
		Deploys:      deploySvc,
		Hub:          deployHub,
		Limiter:      limiter,
		DBHealth:     pool.Ping,
		PollInterval: cfg.DeployPollInterval,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
