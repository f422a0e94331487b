package main

import (
	"context"
	"fmt"

	"github.com/bobarin/narrator/internal/config"
	"github.com/bobarin/narrator/internal/gcp"
	"github.com/bobarin/narrator/internal/services"
	"github.com/bobarin/narrator/internal/storage"
	"github.com/bobarin/narrator/internal/tts"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// newOrchestrator wires credentials, the GCS gateway and the synthesis
// orchestrator from cfg. Credentials are resolved on first use, so missing
// ones surface as authentication failures of a synthesis run.
func newOrchestrator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*tts.Orchestrator, error) {
	creds := gcp.NewCredentials(cfg.GoogleAccessToken)

	gcs, err := storage.New(ctx, cfg.GCSBucketName, logger.Named("storage"), option.WithTokenSource(creds))
	if err != nil {
		return nil, err
	}

	return tts.New(tts.Config{
		SubmitURL:           cfg.TTSURL,
		StatusURL:           cfg.TTSProgressURL,
		ProjectID:           cfg.GCloudProjectID,
		AudiosDir:           cfg.AudiosPath,
		PollInterval:        cfg.TTSPollInterval,
		MaxWait:             cfg.TTSMaxWait,
		DeleteAfterDownload: cfg.TTSDeleteRemote,
	}, creds, gcs, tts.WithLogger(logger.Named("tts"))), nil
}

// newNormalizer returns the configured LLM normalizer behind a rate limiter.
func newNormalizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.Normalizer, error) {
	var base services.Normalizer
	switch cfg.LLMProvider {
	case "openai":
		base = services.NewOpenAINormalizer(cfg.OpenAIKey, cfg.LLMModel, logger.Named("openai"))
	case "gemini":
		g, err := services.NewGeminiNormalizer(ctx, cfg.GeminiKey, cfg.GeminiModel, logger.Named("gemini"), services.GeminiOptions{})
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}

	return services.NewRateLimited(base, cfg.LLMRequestsPerSecond), nil
}
