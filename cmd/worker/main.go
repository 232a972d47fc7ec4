package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bellcorp/events/internal/config"
	"github.com/bellcorp/events/internal/db"
	"github.com/bellcorp/events/internal/notifications"
	"github.com/bellcorp/events/internal/observability"
	"github.com/bellcorp/events/internal/queue/redisclient"
	"github.com/bellcorp/events/internal/queue/worker"
	"github.com/bellcorp/events/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "events-worker", cfg.OTLPEndpoint)

	if err != nil {
		log.Warn("tracing disabled", "err", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool)

	notifier := notifications.NewLogNotifier(log)

	// nudge channel from redis, optional
	var nudge <-chan struct{}

	redisClient := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := redisClient.Ping(ctx); err != nil {
		log.Warn("redis unavailable, polling only", "err", err)
	} else {
		nudge = redisClient.SubscribeJobEnqueued(ctx)
		defer redisClient.Close()
	}

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  500 * time.Millisecond,
		WorkerID:      workerID,
		Concurrency:   4,
		ShutdownGrace: 10 * time.Second,
		LockTTL:       30 * time.Second,
	}, jobsRepo, usersRepo, notifier, prom, log, nudge)

	// side-channel health server for probes
	healthSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port+1),
		Handler:           w.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("worker health server failed", "err", err)
		}
	}()

	log.Info("worker starting", "worker_id", workerID)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	sctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	_ = healthSrv.Shutdown(sctx)
	_ = shutdownTracer(sctx)

	log.Info("worker shutdown complete")
}
