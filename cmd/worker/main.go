package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/config"
	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
	"github.com/sagewood/backend-retreats/internal/lock"
	"github.com/sagewood/backend-retreats/internal/notify"
	"github.com/sagewood/backend-retreats/internal/obs"
	"github.com/sagewood/backend-retreats/internal/waitlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, queries := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(connOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	// Promotions triggered by the sweep go through the same email pipeline.
	bus := &events.Bus{
		Store: queries,
		Notifiers: []events.Notifier{
			notify.EmailNotifier{Tasks: taskClient, Enabled: true},
		},
	}
	waitlistSvc := &waitlist.Service{
		Q:         queries,
		Events:    bus,
		NotifyTTL: cfg.WaitlistNotifyTTL,
		Log:       logger,
	}

	var mailer common.EmailSender = common.NopEmailSender{}
	if cfg.SMTPAddr != "" {
		smtp, err := notify.NewSMTPSender(cfg.SMTPAddr, cfg.EmailFrom)
		if err != nil {
			logger.Fatal().Err(err).Msg("configure smtp sender")
		}
		mailer = smtp
		logger.Info().Str("relay", cfg.SMTPAddr).Msg("smtp delivery enabled")
	} else {
		logger.Warn().Msg("no smtp relay configured, email delivery disabled")
	}

	worker := &notify.Worker{
		Mail:     mailer,
		Waitlist: waitlistSvc,
		Locker:   lock.Locker{R: redisClient},
		LockTTL:  envDuration("WORKER_LOCK_TTL", time.Minute),
		Log:      logger,
	}

	mux := asynq.NewServeMux()
	worker.Register(mux)

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 10),
		Logger:      asynqLogger{logger},
	})

	scheduler := asynq.NewScheduler(connOpt, &asynq.SchedulerOpts{})
	sweepInterval := envOrDefault("WAITLIST_SWEEP_INTERVAL", "@every 1m")
	if _, err := scheduler.Register(sweepInterval, notify.NewWaitlistSweepTask()); err != nil {
		logger.Fatal().Err(err).Msg("register waitlist sweep")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	logger.Info().Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, *db.Queries) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool, db.New(pool)
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msgf("%v", args) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msgf("%v", args) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msgf("%v", args) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msgf("%v", args) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msgf("%v", args) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
