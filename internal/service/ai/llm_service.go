package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/kolson/planner/backend/internal/config"
	"github.com/kolson/planner/backend/internal/logger"
	"github.com/kolson/planner/backend/internal/model/chat"
	"github.com/kolson/planner/backend/internal/model/persona"
)

var (
	// ErrNoUserTurn is returned when the conversation does not end with a visitor message.
	ErrNoUserTurn = errors.New("conversation must end with a user turn")
	// ErrEmptyReply is returned when the model answers without text.
	ErrEmptyReply = errors.New("model returned no text")
)

// Service is the reply generator: persona prompt plus bounded history through an eino chain.
type Service struct {
	chatModel model.ChatModel
	persona   *persona.Persona
	cfg       config.AIConfig
	system    string
	chain     compose.Runnable[map[string]any, *schema.Message]
	log       *log.Logger
}

// NewService compiles the reply chain over chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, p *persona.Persona, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		persona:   p,
		cfg:       cfg,
		system:    BuildSystemPrompt(p),
		chain:     runnable,
		log:       logger.For("ai"),
	}, nil
}

// Persona returns the assistant persona replies are generated for.
func (s *Service) Persona() *persona.Persona {
	return s.persona
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

// GenerateReply produces the assistant's next utterance. The last turn must be the visitor's.
func (s *Service) GenerateReply(ctx context.Context, turns []chat.Turn) (string, error) {
	if len(turns) == 0 || turns[len(turns)-1].Role != chat.RoleUser {
		return "", ErrNoUserTurn
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	input := s.buildChainInput(turns)
	response, err := s.chain.Invoke(ctx, input, compose.WithChatModelOption(
		model.WithMaxTokens(s.cfg.ReplyMaxTokens),
		model.WithTemperature(float32(s.cfg.ReplyTemperature)),
	))
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	reply := ""
	if response != nil {
		reply = strings.TrimSpace(response.Content)
	}
	if reply == "" {
		return "", ErrEmptyReply
	}

	s.log.Debug("generated reply", "turns", len(turns), "length", len(reply))
	return reply, nil
}

func (s *Service) buildChainInput(turns []chat.Turn) map[string]any {
	last := len(turns) - 1
	return map[string]any{
		"system":  s.system,
		"history": s.buildHistoryMessages(turns[:last]),
		"query":   turns[last].Content,
	}
}

func (s *Service) buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	limit := s.cfg.HistoryLimit
	startIdx := 0
	if limit > 0 && len(turns) > limit {
		startIdx = len(turns) - limit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
