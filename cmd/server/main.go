package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/cache"
	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/database"
	"github.com/proctorly/proctor-backend/internal/handler"
	"github.com/proctorly/proctor-backend/internal/logger"
	"github.com/proctorly/proctor-backend/internal/repository"
	"github.com/proctorly/proctor-backend/internal/router"
	"github.com/proctorly/proctor-backend/internal/service"
	"github.com/proctorly/proctor-backend/internal/validator"
	"github.com/proctorly/proctor-backend/internal/worker"
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
		Msg("Starting Proctor Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	candidateRepo := repository.NewCandidateRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	batchRepo := repository.NewBatchRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	sessionCache := cache.NewRedis(rdb, cfg.AnswerCacheTTL)
	monitorService := service.NewMonitorService(rdb, sessionRepo, log)
	gradingService := service.NewGradingService(examRepo, questionRepo, sessionRepo, log)
	sessionService := service.NewSessionService(
		examRepo, questionRepo, batchRepo, sessionRepo, submissionRepo,
		gradingService, sessionCache, monitorService, log,
	)
	violationService := service.NewViolationService(examRepo, sessionRepo, sessionService, monitorService, rdb, log)
	examService := service.NewExamService(examRepo, questionRepo, rdb, cfg.PayloadCacheTTL, log)
	batchService := service.NewBatchService(
		examRepo, batchRepo, sessionService,
		time.Duration(cfg.BatchBufferMinutes)*time.Minute, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, sessionService, candidateRepo, adminRepo),
		Session: handler.NewSessionHandler(sessionService, violationService, examService),
		Exam:    handler.NewExamHandler(examService, sessionService, submissionRepo),
		Batch:   handler.NewBatchHandler(batchService),
		Monitor: handler.NewMonitorHandler(monitorService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	sweepWorker := worker.NewSweepWorker(examService, batchService, sessionService, cfg.SweepInterval, log)
	regradeWorker := worker.NewRegradeWorker(gradingService, sessionRepo, submissionRepo, cfg.RegradeInterval, log)
	archiver := worker.NewViolationArchiver(violationRepo, rdb, log)

	go sweepWorker.Start(workerCtx)
	go regradeWorker.Start(workerCtx)
	go archiver.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
