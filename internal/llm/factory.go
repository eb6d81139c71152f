// Package llm builds the eino chat model used by the reply generator and the brief extractor.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/kolson/planner/backend/internal/config"
	"github.com/kolson/planner/backend/internal/logger"
)

// NewChatModel returns the chat model selected by LLM_PROVIDER.
// It fails when the provider's credentials are missing.
func NewChatModel(ctx context.Context, cfg config.AIConfig) (model.ChatModel, error) {
	log := logger.For("llm")

	switch cfg.Provider {
	case config.ProviderMock:
		log.Warn("LLM_PROVIDER=mock, using deterministic mock chat model")
		return NewMockChatModel(nil), nil
	case config.ProviderArk:
		chatModel, err := cfg.NewArkChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		log.Info("ark chat model ready", "model", cfg.Model)
		return chatModel, nil
	default:
		if !cfg.Enabled() {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		log.Info("anthropic chat model ready", "model", cfg.AnthropicModel)
		return NewAnthropicChatModel(AnthropicConfig{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.AnthropicModel,
			BaseURL:     cfg.AnthropicBaseURL,
			MaxTokens:   cfg.ReplyMaxTokens,
			Temperature: cfg.ReplyTemperature,
			Timeout:     cfg.Timeout,
		}), nil
	}
}
