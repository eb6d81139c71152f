package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ResponderFunc produces the mock reply for a request.
type ResponderFunc func(input []*schema.Message) (string, error)

// MockChatModel is a deterministic chat model for offline runs and tests.
type MockChatModel struct {
	respond ResponderFunc

	mu       sync.Mutex
	requests [][]*schema.Message
}

var _ model.ChatModel = (*MockChatModel)(nil)

// NewMockChatModel wraps respond; nil selects DefaultResponder.
func NewMockChatModel(respond ResponderFunc) *MockChatModel {
	if respond == nil {
		respond = DefaultResponder
	}
	return &MockChatModel{respond: respond}
}

// Generate records the request and returns the responder's text.
func (m *MockChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.requests = append(m.requests, input)
	m.mu.Unlock()

	text, err := m.respond(input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream returns the Generate result as a single chunk.
func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is a no-op.
func (m *MockChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

// Calls reports how many requests reached the model.
func (m *MockChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every recorded request.
func (m *MockChatModel) Requests() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.requests...)
}

// DefaultResponder echoes chat turns and answers JSON-extraction prompts with a minimal brief
// whose single goal is the first user line of the transcript.
func DefaultResponder(input []*schema.Message) (string, error) {
	var system, last string
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			system += msg.Content
		case schema.User:
			last = msg.Content
		}
	}

	if strings.Contains(system, "JSON object") {
		goal := firstUserLine(last)
		goals := []string{}
		if goal != "" {
			goals = append(goals, goal)
		}
		payload, err := json.Marshal(map[string]any{
			"summary":          nil,
			"goals":            goals,
			"features":         []string{},
			"target_audience":  nil,
			"tech_preferences": nil,
			"timeline":         nil,
			"budget_signals":   nil,
			"industry":         nil,
		})
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}

	if last == "" {
		return "[MOCK] Tell me about the project you have in mind.", nil
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. What problem should it solve first?", truncate(last, 100)), nil
}

func firstUserLine(transcript string) string {
	for _, line := range strings.Split(transcript, "\n") {
		if rest, ok := strings.CutPrefix(line, "USER: "); ok {
			return truncate(strings.TrimSpace(rest), 120)
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
