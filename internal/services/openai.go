package services

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4.1"

type OpenAINormalizer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAINormalizer(apiKey, model string, logger *zap.Logger) *OpenAINormalizer {
	return NewOpenAINormalizerWithConfig(openai.DefaultConfig(apiKey), model, logger)
}

// NewOpenAINormalizerWithConfig allows a custom base URL or HTTP client.
func NewOpenAINormalizerWithConfig(cfg openai.ClientConfig, model string, logger *zap.Logger) *OpenAINormalizer {
	if model == "" {
		model = defaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAINormalizer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Normalize sends the page through the clean-up prompt as a single user message.
func (s *OpenAINormalizer) Normalize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildNormalizationPrompt(text),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai: %w", ErrEmptyCompletion)
	}

	s.logger.Debug("page normalized",
		zap.String("model", s.model),
		zap.Int("input_len", len(text)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return cleanCompletion(resp.Choices[0].Message.Content)
}
