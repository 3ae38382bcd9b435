package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/cache"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/storage"
	"github.com/spec-kit/helpdesk/internal/ticketid"
	"github.com/spec-kit/helpdesk/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	var store repository.Store
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		store = repository.NewPostgresStore(pool)
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		store = newDevStore()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	policy, err := auth.NewPolicy()
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	var statsCache service.StatsCache
	if redis != nil {
		statsCache = cache.NewRedisStatsCache(redis.Client, cfg.Redis.StatsTTL())
	}
	statsService := service.NewStatsService(service.StatsDependencies{
		Store:   store,
		Cache:   statsCache,
		Policy:  policy,
		Logger:  logger,
		Metrics: metrics,
	})

	dispatcher := events.NewInMemoryDispatcher(logger)
	mailWorker := worker.NewNotificationWorker(newMailer(cfg.Notification, logger),
		cfg.Notification.Workers, cfg.Notification.QueueSize, logger, metrics)
	mailWorker.Start()
	defer mailWorker.Stop()
	service.NewNotificationService(dispatcher, store.Users(), mailWorker, logger).RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Allocator:  ticketid.NewAllocator(time.Now),
		Policy:     policy,
		Threads:    service.NewThreadService(logger),
		Stats:      statsService,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	attachments, err := storage.NewLocalStore(cfg.Storage.UploadDir, int64(cfg.Storage.MaxUploadBytes))
	if err != nil {
		return err
	}

	deps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}
	if pg.PoolHandle() != nil {
		deps["postgres"] = pg
	}
	if redis != nil {
		deps["redis"] = redis
	}

	app := httptransport.NewServer(httptransport.ServerOptions{
		Name:           cfg.App.Name,
		RequestTimeout: cfg.App.RequestTimeout(),
		BodyLimit:      cfg.Storage.MaxUploadBytes + 1<<20,
	}, logger, metrics, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Tickets:        handlers.NewTicketsHandler(ticketService, attachments, logger),
		Stats:          handlers.NewStatsHandler(statsService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users()),
		Metrics:        metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-waitForShutdown(logger):
	}
	return app.ShutdownWithTimeout(shutdownTimeout)
}

func waitForShutdown(logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		close(done)
	}()
	return done
}

func newMailer(cfg config.NotificationConfig, logger *zap.Logger) notify.Mailer {
	if !cfg.Enabled() {
		logger.Info("SMTP_HOST not set; notifications are logged only")
		return notify.NewLogMailer(logger)
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	})
}

// newDevStore seeds one account per role so tokens issued by "helpdesk token issue" resolve.
func newDevStore() *memory.Store {
	store := memory.NewStore()
	now := time.Now().UTC()
	for _, u := range []domain.User{
		{ID: 1, Username: "admin", Email: "admin@helpdesk.local", Role: domain.RoleAdmin},
		{ID: 2, Username: "agent", Email: "agent@helpdesk.local", Role: domain.RoleAgent},
		{ID: 3, Username: "user", Email: "user@helpdesk.local", Role: domain.RoleUser},
	} {
		u.IsVerified = true
		u.Status = domain.UserStatusActive
		u.CreatedAt = now
		store.SeedUser(u)
	}
	return store
}
