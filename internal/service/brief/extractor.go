// Package brief derives project briefs from conversations and keeps them in the store.
package brief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/kolson/planner/backend/internal/logger"
	briefmodel "github.com/kolson/planner/backend/internal/model/brief"
	"github.com/kolson/planner/backend/internal/model/chat"
)

// ExtractorConfig controls when and how extraction runs.
type ExtractorConfig struct {
	MinUserTurns int
	MaxTokens    int
	Timeout      time.Duration
}

// Extractor asks the model for a JSON brief over the flattened transcript.
type Extractor struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	minUserTurns int
	maxTokens    int
	timeout      time.Duration
	log          *log.Logger
}

// NewExtractor compiles the extraction chain over chatModel.
func NewExtractor(ctx context.Context, chatModel model.ChatModel, cfg ExtractorConfig) (*Extractor, error) {
	if chatModel == nil {
		return nil, errors.New("extractor requires a chat model")
	}
	minTurns := cfg.MinUserTurns
	if minTurns <= 0 {
		minTurns = 2
	}

	// The prompt goes through {system} so FString never parses its contents.
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{transcript}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction chain: %w", err)
	}

	return &Extractor{
		chain:        runnable,
		minUserTurns: minTurns,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		log:          logger.For("extractor"),
	}, nil
}

// Ready reports whether turns carry enough visitor input to be worth extracting.
func (e *Extractor) Ready(turns []chat.Turn) bool {
	return chat.CountUserTurns(turns) >= e.minUserTurns
}

// Extract returns the fields found in the conversation. The second result is false when
// the gate is closed or the model call or parse failed; extraction never returns an error.
func (e *Extractor) Extract(ctx context.Context, turns []chat.Turn) (briefmodel.Fields, bool) {
	if !e.Ready(turns) {
		return briefmodel.Fields{}, false
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	opts := []model.Option{model.WithTemperature(0)}
	if e.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(e.maxTokens))
	}

	msg, err := e.chain.Invoke(ctx, map[string]any{
		"system":     extractionSystemPrompt,
		"transcript": FormatTranscript(turns),
	}, compose.WithChatModelOption(opts...))
	if err != nil {
		e.log.Warn("extraction call failed", "err", err)
		return briefmodel.Fields{}, false
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		e.log.Warn("extraction returned no text")
		return briefmodel.Fields{}, false
	}

	fields, err := ParseFields(msg.Content)
	if err != nil {
		e.log.Warn("extraction output unusable", "err", err)
		return briefmodel.Fields{}, false
	}
	return fields, true
}

// FormatTranscript flattens turns into one role-labeled line per turn.
func FormatTranscript(turns []chat.Turn) string {
	var builder strings.Builder
	builder.WriteString("Conversation:\n")
	for _, turn := range turns {
		content := strings.Join(strings.Fields(turn.Content), " ")
		if content == "" {
			continue
		}
		label := "USER"
		if turn.Role == chat.RoleAssistant {
			label = "ASSISTANT"
		}
		builder.WriteString(label)
		builder.WriteString(": ")
		builder.WriteString(content)
		builder.WriteByte('\n')
	}
	return strings.TrimRight(builder.String(), "\n")
}

// ParseFields decodes the first JSON object in raw, ignoring text around it.
func ParseFields(raw string) (briefmodel.Fields, error) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return briefmodel.Fields{}, errors.New("missing json object")
	}

	var fields briefmodel.Fields
	if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&fields); err != nil {
		return briefmodel.Fields{}, fmt.Errorf("decode brief: %w", err)
	}
	return fields.Normalize(), nil
}

const extractionSystemPrompt = `You extract a structured project brief from a conversation between a website visitor and an AI assistant.
Return only a single JSON object with exactly these keys:
"summary": one sentence describing the project, or null
"goals": array of short strings
"features": array of short strings
"target_audience": string or null
"tech_preferences": string or null
"timeline": string or null
"budget_signals": string or null
"industry": string or null
Use null for unknown text fields and [] for unknown lists.
Only record what the visitor said or clearly implied. Do not invent facts.
Do not add commentary before or after the JSON object.`
