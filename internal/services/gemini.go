package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiNormalizer struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// GeminiOptions overrides endpoint details; zero values use the SDK defaults.
type GeminiOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewGeminiNormalizer(ctx context.Context, apiKey, model string, logger *zap.Logger, opts GeminiOptions) (*GeminiNormalizer, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: opts.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiNormalizer{client: client, model: model, logger: logger}, nil
}

func (s *GeminiNormalizer) Normalize(ctx context.Context, text string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(BuildNormalizationPrompt(text), genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini request failed (status=%d): %s", apiErr.Code, strings.TrimSpace(apiErr.Message))
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates from gemini: %w", ErrEmptyCompletion)
	}

	s.logger.Debug("page normalized",
		zap.String("model", s.model),
		zap.Int("input_len", len(text)))

	return cleanCompletion(resp.Text())
}
