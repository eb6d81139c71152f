package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrToolsUnsupported is returned by BindTools; neither pipeline uses tool calling.
var ErrToolsUnsupported = errors.New("anthropic chat model: tools are not supported")

// AnthropicConfig configures the Anthropic-backed chat model.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// AnthropicChatModel adapts the Anthropic Messages API to eino's ChatModel.
type AnthropicChatModel struct {
	cfg    AnthropicConfig
	client anthropic.Client
}

var _ model.ChatModel = (*AnthropicChatModel)(nil)

// NewAnthropicChatModel creates the adapter. Per-call options override MaxTokens and Temperature.
func NewAnthropicChatModel(cfg AnthropicConfig) *AnthropicChatModel {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	return &AnthropicChatModel{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}
}

// Generate sends one Messages API request and concatenates the returned text blocks.
func (m *AnthropicChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	maxTokens := m.cfg.MaxTokens
	temperature := float32(m.cfg.Temperature)
	modelName := m.cfg.Model
	common := model.GetCommonOptions(&model.Options{
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Model:       &modelName,
	}, opts...)

	system, messages := convertMessages(input)
	if len(messages) == 0 {
		return nil, fmt.Errorf("anthropic request has no conversation turns")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(*common.Model),
		MaxTokens: int64(*common.MaxTokens),
		Messages:  messages,
	}
	if common.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*common.Temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}

	return schema.AssistantMessage(strings.TrimSpace(strings.Join(parts, "\n")), nil), nil
}

// Stream is served by a single Generate call; callers here never stream.
func (m *AnthropicChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is not supported.
func (m *AnthropicChatModel) BindTools(_ []*schema.ToolInfo) error {
	return ErrToolsUnsupported
}

// convertMessages folds system messages into one system prompt and maps the rest to turns.
func convertMessages(input []*schema.Message) (string, []anthropic.MessageParam) {
	var system []string
	messages := make([]anthropic.MessageParam, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, content)
		case schema.Assistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	return strings.Join(system, "\n\n"), messages
}
