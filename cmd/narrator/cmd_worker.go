package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/narrator/internal/api"
	"github.com/bobarin/narrator/internal/config"
	"github.com/bobarin/narrator/internal/db"
	"github.com/bobarin/narrator/internal/metrics"
	"github.com/bobarin/narrator/internal/pdf"
	"github.com/bobarin/narrator/internal/queue"
	"github.com/bobarin/narrator/internal/services"
	"github.com/bobarin/narrator/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume generation jobs and serve health, metrics and status endpoints",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, "worker")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("connected to database")

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer q.Close()
	logger.Info("connected to redis queue")

	orchestrator, err := newOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	normalizer, err := newNormalizer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("text normalization configured",
		zap.String("provider", cfg.LLMProvider),
		zap.Float64("requests_per_second", cfg.LLMRequestsPerSecond))

	m := metrics.New()

	w := worker.New(
		worker.Config{
			TXTsPath:             cfg.TXTsPath,
			NormalizeConcurrency: cfg.NormalizeConcurrency,
			LLMProvider:          cfg.LLMProvider,
		},
		database,
		q,
		pdf.NewExtractor(pdf.ExecRunner, logger.Named("pdf")),
		normalizer,
		orchestrator,
		services.NewFFprobe(),
		m,
		logger,
	)

	handler := api.NewHandler(database, map[string]api.Pinger{
		"postgres": api.PingFunc(database.PingContext),
		"redis":    q,
	}, logger.Named("api"))
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.FrontendURL,
		Metrics:            m.Handler(),
	}, logger.Named("http"))

	if cfg.BackendAPIKey == "" {
		logger.Warn("no BACKEND_API_KEY set, status API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ops server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", zap.Error(err))
			stop()
		}
	}()

	w.Start(ctx, cfg.MaxConcurrentJobs)
	orchestrator.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("worker exited")
	return nil
}
