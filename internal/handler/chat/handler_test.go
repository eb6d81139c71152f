package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolson/planner/backend/internal/config"
	"github.com/kolson/planner/backend/internal/llm"
	"github.com/kolson/planner/backend/internal/model/chat"
	"github.com/kolson/planner/backend/internal/model/persona"
	aiService "github.com/kolson/planner/backend/internal/service/ai"
	briefService "github.com/kolson/planner/backend/internal/service/brief"
	chatService "github.com/kolson/planner/backend/internal/service/chat"
	"github.com/kolson/planner/backend/internal/service/ratelimit"
	"github.com/kolson/planner/backend/internal/store"
)

type testEnv struct {
	router *chi.Mux
	mock   *llm.MockChatModel
	chats  *chatService.Service
	briefs *briefService.Service
}

func newAI(t *testing.T, mock *llm.MockChatModel) *aiService.Service {
	t.Helper()
	p := persona.Default("Kevin")
	svc, err := aiService.NewService(context.Background(), mock, &p, config.AIConfig{
		ReplyMaxTokens: 220, ReplyTemperature: 0.2, HistoryLimit: 20,
	})
	require.NoError(t, err)
	return svc
}

func setupRouter(t *testing.T, respond llm.ResponderFunc, maxRequests int, withStore bool) *testEnv {
	t.Helper()
	mock := llm.NewMockChatModel(respond)
	env := &testEnv{mock: mock}

	opts := Options{
		AI:        newAI(t, mock),
		Limiter:   ratelimit.New(time.Minute, maxRequests),
		OwnerName: "Kevin",
	}
	if withStore {
		st, err := store.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })

		extractor, err := briefService.NewExtractor(context.Background(), mock, briefService.ExtractorConfig{MinUserTurns: 2})
		require.NoError(t, err)
		env.chats = chatService.NewService(st)
		env.briefs = briefService.NewService(st, extractor, nil, nil, briefService.Config{})
		opts.Chats = env.chats
		opts.Briefs = env.briefs
	}

	r := chi.NewRouter()
	New(opts).RegisterRoutes(r)
	env.router = r
	return env
}

func postChat(t *testing.T, r http.Handler, body any, ip string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch v := body.(type) {
	case string:
		payload = []byte(v)
	default:
		var err error
		payload, err = json.Marshal(v)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestChatMissingConfiguration(t *testing.T) {
	r := chi.NewRouter()
	New(Options{MissingCredential: "ANTHROPIC_API_KEY"}).RegisterRoutes(r)

	resp := postChat(t, r, map[string]string{"message": "hi"}, "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "Server is missing ANTHROPIC_API_KEY.", body["error"])
	assert.NotEmpty(t, body["userMessage"])
}

func TestChatRejectsBadInput(t *testing.T) {
	env := setupRouter(t, nil, 20, false)

	resp := postChat(t, env.router, "{not json", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = postChat(t, env.router, map[string]string{"message": "   "}, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "A non-empty message is required.", decodeBody(t, resp)["error"])

	assert.Zero(t, env.mock.Calls())
}

func TestChatStatelessReply(t *testing.T) {
	env := setupRouter(t, nil, 20, false)

	history := make([]map[string]string, 0, 12)
	for i := 0; i < 6; i++ {
		history = append(history,
			map[string]string{"role": "user", "text": "question"},
			map[string]string{"role": "assistant", "text": "answer"},
		)
	}
	history = append(history, map[string]string{"role": "system", "text": "ignored"})

	resp := postChat(t, env.router, map[string]any{"message": "I want a booking app", "messages": history}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, decodeBody(t, resp)["reply"], "I want a booking app")

	req := env.mock.Requests()[0]
	assert.Len(t, req, 1+8+1, "system + trailing 8 turns + current message")
}

func TestChatRateLimited(t *testing.T) {
	env := setupRouter(t, nil, 2, false)

	for i := 0; i < 2; i++ {
		resp := postChat(t, env.router, map[string]string{"message": "hi"}, "203.0.113.9")
		require.Equal(t, http.StatusOK, resp.Code)
	}
	resp := postChat(t, env.router, map[string]string{"message": "hi"}, "203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "The assistant is currently handling high traffic. Please wait a moment and try again.",
		decodeBody(t, resp)["userMessage"])

	resp = postChat(t, env.router, map[string]string{"message": "hi"}, "198.51.100.1")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestChatUpstreamFailure(t *testing.T) {
	env := setupRouter(t, func([]*schema.Message) (string, error) {
		return "", errors.New(`anthropic API error: {"type":"error","error":{"type":"invalid_request_error","message":"Your credit balance is too low"}}`)
	}, 20, false)

	resp := postChat(t, env.router, map[string]string{"message": "hi"}, "")
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, decodeBody(t, resp)["userMessage"], "usage credits")
}

func TestChatEmptyModelReply(t *testing.T) {
	env := setupRouter(t, func([]*schema.Message) (string, error) { return "", nil }, 20, false)

	resp := postChat(t, env.router, map[string]string{"message": "hi"}, "")
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestChatSessionTurnPersistsAndRefreshes(t *testing.T) {
	env := setupRouter(t, nil, 20, true)
	ctx := context.Background()

	session, err := env.chats.StartSession(ctx, "visitor-1")
	require.NoError(t, err)

	resp := postChat(t, env.router, map[string]string{"message": "I want a booking app", "session_id": session.ID}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, decodeBody(t, resp)["reply"])

	messages, err := env.chats.LoadTranscript(ctx, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, chat.RoleAssistant, messages[1].Role)

	// One user turn: the brief is seeded without an extraction call.
	b, err := env.briefs.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "exploring", string(b.Status))
	assert.Equal(t, 1, env.mock.Calls())

	resp = postChat(t, env.router, map[string]string{"message": "For hair salons", "session_id": session.ID}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 3, env.mock.Calls(), "second reply plus one extraction")

	b, err = env.briefs.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"I want a booking app"}, b.Goals)
}

func TestChatUnknownSession(t *testing.T) {
	env := setupRouter(t, nil, 20, true)

	resp := postChat(t, env.router, map[string]string{"message": "hi", "session_id": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, env.mock.Calls())
}

func TestFriendlyMessage(t *testing.T) {
	cases := map[string]string{
		"Anthropic API error: credit balance is too low": "usage credits",
		"authentication_error: invalid x-api-key":        "configuration issue",
		"not_found_error: model: claude-x":               "model configuration update",
		"Rate limit exceeded":                            "high traffic",
		"connection reset":                               "temporary issue",
	}
	for raw, want := range cases {
		assert.Contains(t, FriendlyMessage(raw, "Ada"), want, raw)
	}
	assert.Contains(t, FriendlyMessage("invalid x-api-key", "Ada"), "reach Ada directly")
}
