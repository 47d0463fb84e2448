package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.NewWithWriter(os.Stderr, "", "")
		l.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "overdue-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.ScanInterval).Msg("overdue worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	m := metrics.New()
	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		actor.NewPgDirectory(pgPool),
		redisclient.NewStreamPublisher(rdb, cfg.EventStream, cfg.EventStreamMaxLen),
		cfg,
		logger,
	)

	// Expose the overdue gauge for scraping.
	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	// Run once at startup
	runOnce(rootCtx, svc, m, logger)

	ticker := time.NewTicker(cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping overdue worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, m, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, m *metrics.Metrics, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	appts, err := svc.ReportOverdue(runCtx, time.Time{})
	if err != nil {
		logger.Error().Err(err).Msg("overdue run error")
		return
	}
	m.SetOverdue(len(appts))

	for _, a := range appts {
		logger.Warn().
			Stringer("appointment_id", a.ID).
			Stringer("doctor_id", a.DoctorID).
			Time("date", a.Date).
			Str("time_slot", a.TimeSlot.String()).
			Msg("appointment still scheduled after its day")
	}
	logger.Info().Int("overdue", len(appts)).Dur("elapsed", time.Since(start)).Msg("overdue run complete")
}
