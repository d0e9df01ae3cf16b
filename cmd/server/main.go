package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stepleague/internal/api"
	"stepleague/internal/app/service"
	"stepleague/internal/app/worker"
	"stepleague/internal/common/security"
	"stepleague/internal/domain/repository"
	"stepleague/internal/platform/config"
	"stepleague/internal/platform/database"
	"stepleague/internal/platform/logger"
	"stepleague/internal/platform/queue"
	"stepleague/internal/platform/ratelimit"
	"stepleague/internal/platform/storage"
	"stepleague/internal/platform/verifier"
)

func main() {
	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.Info("Configuration loaded.")

	tokens := security.NewTokenService([]byte(cfg.JWTSecret), cfg.JWTExp(), cfg.UploadTokenTTL())

	// 2. Database
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("%v", err)
	}
	defer database.Close(db)
	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("%v", err)
	}

	// 3. Redis
	rdb, err := queue.ConnectRedis(ctx, cfg)
	if err != nil {
		logger.Fatal("%v", err)
	}
	defer queue.CloseRedis(rdb)

	// 4. Proof storage and the AI verifier
	proofStore, localStore, err := storage.New(cfg)
	if err != nil {
		logger.Fatal("storage: %v", err)
	}
	aiVerifier := verifier.New(cfg)

	// 5. Repositories
	userRepo := repository.NewPgUserRepository(db)
	leagueRepo := repository.NewPgLeagueRepository(db)
	submissionRepo := repository.NewPgSubmissionRepository(db)
	recordRepo := repository.NewPgUserRecordRepository(db)
	jobRepo := repository.NewPgVerificationJobRepository(db)

	// 6. Services
	verifyQueue := queue.NewVerificationQueue(rdb, cfg)
	limiter := ratelimit.NewRedisLimiter(rdb, "verify_rate:", cfg.VerifyRateLimit, cfg.VerifyRateWindow())

	verificationService := service.NewVerificationService(submissionRepo, proofStore, aiVerifier, limiter, cfg.AIVerifyTolerance).
		WithLocker(verifyQueue)
	services := api.Services{
		Auth:         service.NewAuthService(userRepo, tokens),
		League:       service.NewLeagueService(leagueRepo, db),
		Leaderboard:  service.NewLeaderboardService(leagueRepo, submissionRepo, recordRepo),
		Submission:   service.NewSubmissionService(submissionRepo, leagueRepo),
		Verification: verificationService,
		Upload:       service.NewUploadService(tokens, proofStore, cfg.PublicBaseURL, cfg.MaxUploadBytes),
		Jobs:         service.NewVerificationJobService(jobRepo, submissionRepo, verifyQueue),
	}

	// 7. Re-verification worker (as a goroutine)
	verificationWorker := worker.NewVerificationWorker(verifyQueue, jobRepo, submissionRepo, verificationService, cfg.VerificationMaxAttempts)
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		verificationWorker.Start(workerCtx)
	}()

	// 8. Router & HTTP Server
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      api.NewRouter(tokens, services, localStore),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second, // verify waits on the AI call
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting on port %s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen on %s: %v", cfg.APIPort, err)
		}
	}()

	<-stop

	logger.Info("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("worker did not stop before the shutdown deadline")
	}

	logger.Info("Server and worker stopped gracefully.")
}
