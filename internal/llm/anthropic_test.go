package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnthropicTestServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAnthropicGenerateJoinsTextBlocks(t *testing.T) {
	var captured map[string]any
	server := newAnthropicTestServer(t, http.StatusOK, `{
		"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
		"content":[{"type":"text","text":"Hello"},{"type":"text","text":"there"}],
		"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}
	}`, &captured)

	m := NewAnthropicChatModel(AnthropicConfig{
		APIKey: "test-key", Model: "claude-test", BaseURL: server.URL, MaxTokens: 220, Temperature: 0.2,
	})

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be brief"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
		schema.UserMessage("plan my app"),
	}, model.WithMaxTokens(800))
	require.NoError(t, err)
	assert.Equal(t, "Hello\nthere", msg.Content)

	assert.Equal(t, "claude-test", captured["model"])
	assert.EqualValues(t, 800, captured["max_tokens"])
	system, ok := captured["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 3)
}

func TestAnthropicGenerateSurfacesAPIError(t *testing.T) {
	server := newAnthropicTestServer(t, http.StatusBadRequest,
		`{"type":"error","error":{"type":"invalid_request_error","message":"Your credit balance is too low"}}`, nil)

	m := NewAnthropicChatModel(AnthropicConfig{APIKey: "k", Model: "claude-test", BaseURL: server.URL})
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit balance is too low")
}

func TestAnthropicGenerateRejectsEmptyConversation(t *testing.T) {
	m := NewAnthropicChatModel(AnthropicConfig{APIKey: "k", Model: "claude-test", BaseURL: "http://127.0.0.1:0"})
	_, err := m.Generate(context.Background(), []*schema.Message{schema.SystemMessage("only system")})
	require.Error(t, err)
}

func TestAnthropicBindToolsUnsupported(t *testing.T) {
	m := NewAnthropicChatModel(AnthropicConfig{APIKey: "k"})
	assert.ErrorIs(t, m.BindTools(nil), ErrToolsUnsupported)
}
