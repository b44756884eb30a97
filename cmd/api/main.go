package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/sagewood/backend-retreats/internal/auth"
	"github.com/sagewood/backend-retreats/internal/booking"
	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/config"
	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
	"github.com/sagewood/backend-retreats/internal/health"
	"github.com/sagewood/backend-retreats/internal/notify"
	"github.com/sagewood/backend-retreats/internal/obs"
	"github.com/sagewood/backend-retreats/internal/payment"
	"github.com/sagewood/backend-retreats/internal/promo"
	"github.com/sagewood/backend-retreats/internal/ratelimit"
	"github.com/sagewood/backend-retreats/internal/retreat"
	"github.com/sagewood/backend-retreats/internal/security"
	"github.com/sagewood/backend-retreats/internal/waitlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "retreats")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "retreats-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "retreats-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	queries := db.New(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskConnOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(taskConnOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	emailNotifier := notify.EmailNotifier{
		Tasks:   taskClient,
		Enabled: envBool("NOTIFY_EMAIL_ENABLED", true),
	}
	bus := &events.Bus{
		Store:     queries,
		Notifiers: []events.Notifier{emailNotifier},
	}

	retreatSvc, err := retreat.NewService(retreat.ServiceConfig{
		Queries: queries,
		Cache:   retreat.NewCache(redisClient, envDurationMillis("RETREAT_CACHE_TTL_MS", 60_000)),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise retreat service")
	}
	retreatHandler := retreat.NewHandler(retreat.HandlerConfig{Service: retreatSvc})

	authSvc, err := auth.NewService(auth.Config{
		Queries:        queries,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	if err := authSvc.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap admin account")
	}
	authHandler := &auth.Handler{Service: authSvc}
	authMiddleware := auth.Middleware{Service: authSvc}

	promoSvc := &promo.Service{Q: queries}
	promoHandler := &promo.Handler{Q: queries, Svc: promoSvc}

	waitlistSvc := &waitlist.Service{
		Q:         queries,
		Events:    bus,
		NotifyTTL: cfg.WaitlistNotifyTTL,
		Log:       logger,
	}
	waitlistHandler := &waitlist.Handler{Svc: waitlistSvc}

	stripeProvider := payment.NewStripe(
		cfg.StripeSecretKey,
		cfg.StripeWebhookSecret,
		cfg.StripeBaseURL,
		cfg.CheckoutSuccessURL,
		cfg.CheckoutCancelURL,
	)

	bookingSvc := &booking.Service{
		Q:           queries,
		Pool:        pool,
		Promo:       promoSvc,
		Payments:    stripeProvider,
		Events:      bus,
		Retreats:    retreatSvc,
		Waitlist:    waitlistSvc,
		VAT:         cfg.VATConfig(),
		Currency:    cfg.Currency,
		CheckoutTTL: cfg.CheckoutTTL,
		Log:         logger,
	}
	bookingHandler := booking.NewHandler(bookingSvc, nil)

	paymentHandler := &payment.Handler{Q: queries, Provider: stripeProvider, Events: bus}
	webhookHandler := payment.Webhook{
		Q:         queries,
		Pool:      pool,
		Provider:  stripeProvider,
		Replay:    redisClient,
		ReplayTTL: cfg.IdempotencyTTL,
		Promo:     promoSvc,
		Waitlist:  waitlistSvc,
		Events:    bus,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	promoLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:promo"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.RateLimitPromoWindow,
			Max:    cfg.RateLimitPromoBurst,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("promo rate limiter")
		},
	}

	globalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitGlobal)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse global rate limit")
	}
	limiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "rl:global"})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	globalLimiter := limiterstdlib.NewMiddleware(limiter.New(limiterStore, globalRate))

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: envInt64("SECURE_MAX_BODY_BYTES", 1<<20)}.Middleware)
	r.Use(globalLimiter.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/retreats", retreatHandler.List)
		v.Get("/retreats/{slug}", retreatHandler.Detail)

		v.Post("/bookings/quote", bookingHandler.Quote)
		v.With(idem.Middleware).Post("/bookings", bookingHandler.Create)

		v.With(promoLimit.Middleware).Post("/promo/validate", promoHandler.Validate)

		v.Post("/waitlist", waitlistHandler.Join)

		v.Post("/webhooks/payment", webhookHandler.Handle)

		v.Route("/admin", func(admin chi.Router) {
			admin.Post("/login", authHandler.Login)

			admin.Group(func(g chi.Router) {
				g.Use(authMiddleware.RequireAdmin)
				g.Get("/me", authHandler.Me)

				g.Post("/retreats", retreatHandler.Create)
				g.Put("/retreats/{id}", retreatHandler.Update)
				g.Post("/retreats/{id}/rooms", retreatHandler.AddRoom)
				g.Get("/retreats/{id}/waitlist", waitlistHandler.ListByRetreat)

				g.Get("/promos", promoHandler.List)
				g.Post("/promos", promoHandler.Create)
				g.Put("/promos/{code}", promoHandler.Update)

				g.Get("/bookings", bookingHandler.List)
				g.Get("/bookings/{id}", bookingHandler.Get)
				g.Post("/bookings/{id}/cancel", bookingHandler.Cancel)
				g.Get("/bookings/{id}/payments", paymentHandler.ListByBooking)

				g.Post("/payments/{id}/refund", paymentHandler.Refund)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Fail readiness first so the load balancer drains us before the
	// listener closes.
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15_000))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown incomplete")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
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

func envInt64(key string, fallback int64) int64 {
	return int64(envInt(key, int(fallback)))
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
