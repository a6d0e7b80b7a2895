package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/reminder"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const healthAddr = ":8081"

func setupHealthCheck(reg *prometheus.Registry, ready func(ctx context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	appLogger := logger.Setup(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment})

	workerCfg, err := reminder.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load reminder config")
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid booking timezone")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	failed, err := reminder.NewFailedJobLogger(workerCfg.FailedLog)
	if err != nil {
		log.Fatal().Err(err).Str("path", workerCfg.FailedLog).Msg("Failed to open failed-jobs log")
	}
	defer func() { _ = failed.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	queue := reminder.NewQueue(rdb, workerCfg.Queue)
	scheduler := reminder.NewScheduler(
		postgres.NewVisitRepository(db),
		queue,
		schedule.NewCalculator(cfg.Booking.SlotMinutes, loc),
		clock.New(),
		m,
	)
	worker := reminder.NewWorker(queue, email.NewService(email.NewSender(cfg.Email, appLogger)), failed, m, workerCfg)

	healthSrv := setupHealthCheck(reg, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx, workerCfg.Schedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reminder scheduler")
	}
	log.Info().
		Str("schedule", workerCfg.Schedule).
		Str("queue", workerCfg.Queue).
		Int("concurrency", workerCfg.Concurrency).
		Msg("Reminder worker running")

	worker.Run(ctx)

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
}
