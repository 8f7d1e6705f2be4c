package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/stemsi/secureeval-backend/internal/ai"
	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/database"
	"github.com/stemsi/secureeval-backend/internal/events"
	"github.com/stemsi/secureeval-backend/internal/handler"
	"github.com/stemsi/secureeval-backend/internal/logger"
	"github.com/stemsi/secureeval-backend/internal/middleware"
	"github.com/stemsi/secureeval-backend/internal/observability"
	"github.com/stemsi/secureeval-backend/internal/repository"
	"github.com/stemsi/secureeval-backend/internal/router"
	"github.com/stemsi/secureeval-backend/internal/service"
	"github.com/stemsi/secureeval-backend/internal/validator"
	"github.com/stemsi/secureeval-backend/internal/vision"
	"github.com/stemsi/secureeval-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("store_backend", cfg.StoreBackend).
		Msg("Starting SecureEval Backend")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	observability.RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	healthChecks := map[string]handler.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	// ─── Initialize Stores ─────────────────────────────────────────────
	var (
		sessionStore     repository.SessionStore
		questionSetStore repository.QuestionSetStore
		pool             *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		sessionStore = repository.NewRedisSessionStore(rdb)
		questionSetStore = repository.NewRedisQuestionSetStore(rdb)
	case config.StoreBackendPostgres:
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		sessionStore = repository.NewPostgresSessionStore(pool)
		questionSetStore = repository.NewPostgresQuestionSetStore(pool)
		healthChecks["postgres"] = pool.Ping
	default:
		log.Fatal().Str("store_backend", cfg.StoreBackend).Msg("Unknown STORE_BACKEND")
	}

	// ─── Event Fan-out ─────────────────────────────────────────────────
	publishers := events.Multi{events.NewRedisPublisher(rdb)}
	nc, err := database.NewNATSConn(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, publishing to Redis only")
	}
	if nc != nil {
		defer nc.Drain()
		publishers = append(publishers, events.NewNATSPublisher(nc, cfg.NATSSubject))
	}

	// ─── Collaborators ─────────────────────────────────────────────────
	var (
		grader     service.Grader
		summarizer service.Summarizer
		classifier service.FaceClassifier
		extractor  service.QuestionExtractor
	)
	if cfg.OpenAIAPIKey != "" {
		client, err := ai.NewClient(ai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure OpenAI client")
		}
		grader = ai.NewGrader(client)
		summarizer = ai.NewReporter(client)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, free-text grading and reports are degraded")
	}

	if cfg.VisionEnabled {
		visionClient, err := vision.NewClient(ctx, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Cloud Vision")
		}
		defer visionClient.Close()

		classifier = vision.NewFaceCounter(visionClient)
		extractor = vision.NewQuestionExtractor(visionClient)
	} else {
		log.Warn().Msg("VISION_ENABLED is false, frame analysis and question extraction are unavailable")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	engineCfg := service.EngineConfigFromConfig(cfg)
	log.Info().
		Int("penalty", engineCfg.Penalty).
		Int("threshold", engineCfg.Threshold).
		Str("mode", string(engineCfg.Mode)).
		Msg("Integrity engine configured")

	authService := service.NewAuthService(cfg.JWTSecret)
	sessionService := service.NewSessionService(sessionStore, questionSetStore, publishers, engineCfg, log)
	reportService := service.NewReportService(sessionStore, summarizer, publishers, engineCfg, log)
	submissionService := service.NewSubmissionService(
		sessionStore,
		questionSetStore,
		service.NewEvaluator(grader, log),
		worker.NewReportQueue(rdb),
		publishers,
		engineCfg,
		log,
	)
	frameService := service.NewFrameService(sessionService, classifier, engineCfg, log)
	questionSetService := service.NewQuestionSetService(questionSetStore, extractor, engineCfg, log)
	monitorService := service.NewMonitorService(sessionStore, engineCfg)

	limiter := middleware.NewRateLimiter(cfg.FrameRatePerSecond, cfg.FrameRateBurst)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Health:         handler.NewHealthHandler(healthChecks),
		StudentSession: handler.NewStudentSessionHandler(sessionService, submissionService, frameService),
		AdminSession:   handler.NewAdminSessionHandler(sessionService, reportService),
		QuestionSet:    handler.NewQuestionSetHandler(questionSetService, cfg.MaxUploadBytes),
		Monitor:        handler.NewMonitorHandler(rdb, questionSetService, sessionService, monitorService, log),
		System:         handler.NewSystemHandler(rdb, log),
		WS:             handler.NewWSHandler(rdb, sessionService, submissionService, frameService, limiter, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	reportWorker := worker.NewReportWorker(reportService, rdb, log)
	go func() {
		defer close(workerDone)
		reportWorker.Start(workerCtx)
	}()

	limiterStop := make(chan struct{})
	go limiter.Run(limiterStop)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the report queue buffer to be requeued.
	close(limiterStop)
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Report worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
