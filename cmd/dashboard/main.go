package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/backend"
	"tubeinsight/dashboard/internal/cache"
	"tubeinsight/dashboard/internal/config"
	"tubeinsight/dashboard/internal/database"
	"tubeinsight/dashboard/internal/handlers"
	"tubeinsight/dashboard/internal/identity"
	"tubeinsight/dashboard/internal/jobs"
	"tubeinsight/dashboard/internal/log"
	"tubeinsight/dashboard/internal/metrics"
	"tubeinsight/dashboard/internal/repository"
	"tubeinsight/dashboard/internal/server"
	"tubeinsight/dashboard/internal/service"
	"tubeinsight/dashboard/internal/session"
	"tubeinsight/dashboard/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	backendClient, err := backend.NewClient(cfg.Backend, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid backend config")
	}

	m := metrics.New()

	profiles := cache.NewProfileCache(redisClient, repository.NewProfileRepository(dbPool), cfg.Cache.ProfileTTL, logger)
	publisher := watcher.NewPublisher(redisClient, cfg.Watcher.Stream, cfg.Watcher.MaxLen)
	provider := identity.NewOAuth2Provider(cfg.Identity)

	sessions := session.NewManager(
		session.NewTokenDecoder(cfg.Identity.JWTSecret, cfg.Identity.Audience),
		provider,
		publisher,
		cfg,
		logger,
	)
	sessions.OnRefresh(m.ObserveRefresh)

	hub := watcher.NewHub()
	sessionWatcher := watcher.NewWatcher(
		redisClient,
		cfg.Watcher.Stream,
		cfg.Watcher.Block,
		watcher.NewRevalidator(profiles, hub, logger),
		logger,
	)
	go func() {
		if err := sessionWatcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("session watcher stopped")
		}
	}()

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Dependencies{
		Auth:     service.NewAuthService(provider, sessions, cfg, m, logger),
		Resolver: sessions,
		Profiles: profiles,
		Backend:  backendClient,
		Events:   publisher,
		Hub:      hub,
		Metrics:  m,
		Checks: map[string]handlers.HealthCheck{
			"postgres": dbPool.Ping,
			"redis":    func(ctx context.Context) error { return cache.PingRedis(ctx, redisClient, 0) },
			"backend":  backendClient.Health,
		},
	})

	httpServer, err := server.NewHTTPServer(cfg, logger, m, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	scheduler := jobs.NewScheduler(cfg.Jobs.BackendProbe, backendClient, m, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, sessionWatcher, dbPool, redisClient)
}

func waitForShutdown(
	logger zerolog.Logger,
	srv *server.HTTPServer,
	scheduler *jobs.Scheduler,
	sessionWatcher *watcher.Watcher,
	db *pgxpool.Pool,
	redisClient *redis.Client,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	sessionWatcher.Close()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
