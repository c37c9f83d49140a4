package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/notifyhub/notificationsvc/internal/api"
	"github.com/notifyhub/notificationsvc/internal/config"
	"github.com/notifyhub/notificationsvc/internal/db"
	"github.com/notifyhub/notificationsvc/internal/metrics"
	"github.com/notifyhub/notificationsvc/internal/provider"
	"github.com/notifyhub/notificationsvc/internal/queue"
	"github.com/notifyhub/notificationsvc/internal/repository"
	"github.com/notifyhub/notificationsvc/internal/service"
	"github.com/notifyhub/notificationsvc/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := repository.NewPgStore(pool)

	factory, err := provider.NewFactory(cfg)
	if err != nil {
		logger.Fatal("failed to configure email provider", zap.Error(err))
	}
	providers := provider.NewPool(cfg.NotifierPoolSize, factory)
	limiter := rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendRatePerSec)

	svc := service.NewIngressService(store, cfg.MaxRetryAttempts, logger,
		m.NotificationsAccepted.Inc, m.NotificationsRejected.Inc)

	// ---- job monitor (queue + worker pool) ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	onDelivered, onFailed, onRetryScheduled := m.NotifierHooks()
	notifier := worker.NewNotifier(store, providers, limiter, cfg.RetryDelay, logger,
		worker.MetricHooks{
			OnDelivered:      onDelivered,
			OnFailed:         onFailed,
			OnRetryScheduled: onRetryScheduled,
		})

	jobQueue := queue.NewDatabaseJobQueue(store, queueOwner(), cfg.PollInterval,
		logger, m.ClaimConflicts.Inc)
	workers := worker.NewPool(cfg.NotifierThreads, notifier.Send, logger,
		func() { m.BusyWorkers.Inc() }, func() { m.BusyWorkers.Dec() })

	monitor := worker.NewJobMonitor(jobQueue, workers, logger)
	monitor.Start(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(svc, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Close the queue and stop the workers, then wait for in-flight
	// jobs to finish. Jobs still claimed after the join deadline stay
	// claimed in the database and need operator attention.
	monitor.Stop()
	if !monitor.Join(cfg.JoinTimeout) {
		logger.Warn("job monitor did not drain before deadline")
	}
	cancelWorkers()

	logger.Info("server stopped cleanly")
}

// queueOwner identifies this fleet instance in the notification_job.owner
// column. Host plus pid keeps concurrent instances on one host distinct.
func queueOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
