package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/fieldservice/internal/api/http"
	"github.com/spec-kit/fieldservice/internal/api/http/handlers"
	"github.com/spec-kit/fieldservice/internal/config"
	"github.com/spec-kit/fieldservice/internal/events"
	"github.com/spec-kit/fieldservice/internal/observability"
	"github.com/spec-kit/fieldservice/internal/persistence"
	"github.com/spec-kit/fieldservice/internal/publiclink"
	"github.com/spec-kit/fieldservice/internal/repository"
	"github.com/spec-kit/fieldservice/internal/service"
	"github.com/spec-kit/fieldservice/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	store := repository.NewPostgresStore(pg.PoolHandle())
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	nonces := publiclink.NewRedisNonceStore(redis.Client)
	linkIssuer := publiclink.NewIssuer(cfg.PublicLink.SigningSecret, cfg.PublicLink.TTL(), nonces)

	lifecycleService := service.NewLifecycleService(store, dispatcher, metrics)
	scheduleService := service.NewScheduleService(store, lifecycleService, linkIssuer, dispatcher)
	pendencyService := service.NewPendencyService(lifecycleService)
	approvalService := service.NewApprovalService(store, lifecycleService, dispatcher)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.App.RequestTimeout(),
		WriteTimeout: cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:     handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:    handlers.NewTicketsHandler(lifecycleService),
		Entries:    handlers.NewEntriesHandler(scheduleService),
		Pendencies: handlers.NewPendenciesHandler(pendencyService),
		Budgets:    handlers.NewBudgetsHandler(approvalService),
	})

	metricsServer := &http.Server{Addr: cfg.App.MetricsAddr, Handler: metricsMux(metrics)}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = metricsServer.Shutdown(ctx)
	_ = app.Shutdown()
}

func metricsMux(metrics *observability.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
