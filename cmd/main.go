package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"challengerunner/config"
	"challengerunner/executor"
	applog "challengerunner/logger"
	"challengerunner/natshandler"
	"challengerunner/pkg"
	"challengerunner/routes"
	"challengerunner/service"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg := config.LoadConfig()

	dockerCfg, err := cfg.DockerConfig()
	if err != nil {
		logger.Fatal("Invalid sandbox configuration", zap.Error(err))
	}

	runnerLog, closer, err := applog.NewRunnerLogger(cfg.RunnerLog, cfg.LogLevel)
	if err != nil {
		logger.Fatal("Failed to set up runner log", zap.Error(err))
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := executor.NewRunner(ctx, dockerCfg,
		executor.WithLogger(runnerLog),
		executor.WithWorkspaceRoot(cfg.WorkspaceRoot))
	if err != nil {
		logger.Fatal("Failed to connect to Docker", zap.Error(err))
	}

	// Check if the sandbox image exists
	if err := runner.CheckImage(ctx); err != nil {
		logger.Fatal("Sandbox Docker image not found. Exiting...", zap.String("image", dockerCfg.Image), zap.Error(err))
	}

	// leftovers of a previous crash
	if n, err := runner.CleanupOrphanedContainers(ctx); err != nil {
		logger.Warn("Startup orphan sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("Removed orphaned containers", zap.Int("count", n))
	}
	runner.PurgeStaleWorkspaces()

	if _, err := runner.Prewarm(ctx); err != nil {
		logger.Warn("Failed to prewarm containers, continuing cold", zap.Error(err))
	}
	runner.StartSweeper(ctx, cfg.SweepInterval)

	workerPool, err := executor.NewWorkerPool(runner, runnerLog, cfg.MaxWorkers, cfg.JobCount)
	if err != nil {
		logger.Fatal("Failed to start worker pool", zap.Error(err))
	}

	streamer := applog.NewLogStreamer(cfg.BetterStackSourceToken, cfg.Environment, cfg.BetterStackUploadURL, cfg.AppLog, logger)
	verifier := service.NewVerificationService(workerPool, cfg.ChallengesRoot, cfg.MaxCodeLength, logger, streamer)

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		logger.Fatal("Failed to connect to NATS",
			zap.String("url", cfg.NatsURL),
			zap.Error(err))
	}
	defer nc.Close()

	// Subscribe to verification requests
	if _, err := natshandler.Subscribe(ctx, nc, cfg.NatsSubject, verifier, logger); err != nil {
		logger.Fatal("Failed to subscribe", zap.String("subject", cfg.NatsSubject), zap.Error(err))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	limiter := pkg.NewRateLimiter(cfg.Ratelimit, cfg.RatelimitBurst)
	routes.SetupRoutes(router, routes.NewVerificationHandler(verifier, runner, logger), limiter)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune(10 * time.Minute)
			}
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("subject", cfg.NatsSubject))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), dockerCfg.Timeout+15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
	if err := nc.Drain(); err != nil {
		logger.Warn("NATS drain failed", zap.Error(err))
	}
	workerPool.Shutdown()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Runner shutdown failed", zap.Error(err))
	}
	streamer.Flush()
}
