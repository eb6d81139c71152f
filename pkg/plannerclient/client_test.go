package plannerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	chats      atomic.Int32
	briefReads atomic.Int32
	lastChat   atomic.Value
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "visitor-1", body["visitor_id"])
		writeJSON(w, http.StatusOK, map[string]any{
			"session":  map[string]string{"id": "s1"},
			"messages": []map[string]string{{"id": "m1", "role": "user", "content": "hi"}},
			"brief":    nil,
		})
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.lastChat.Store(body)
		f.chats.Add(1)
		if body["message"] == "fail" {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream", "userMessage": "try later"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"reply": "echo: " + body["message"]})
	})
	mux.HandleFunc("GET /api/brief", func(w http.ResponseWriter, r *http.Request) {
		f.briefReads.Add(1)
		assert.Equal(t, "s1", r.URL.Query().Get("session_id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"brief":        map[string]any{"goals": []string{"book"}, "features": []string{}, "status": "defining"},
			"completeness": map[string]any{"score": 15, "next_hint": "What should it do?"},
		})
	})
	mux.HandleFunc("PATCH /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1", body["session_id"])
		assert.Equal(t, "a@b.com", body["email"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "share_id": "0123456789ab"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestClientConversation(t *testing.T) {
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	updates := make(chan BriefUpdate, 4)
	c := New(server.URL+"/", "visitor-1")
	c.RefreshDelay = 10 * time.Millisecond
	c.OnBrief = func(u BriefUpdate) { updates <- u }
	defer c.Close()

	ctx := context.Background()
	history, b, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Nil(t, b)
	assert.Equal(t, "s1", c.SessionID())

	reply, err := c.Send(ctx, "I want a booking app")
	require.NoError(t, err)
	assert.Equal(t, "echo: I want a booking app", reply)
	assert.Equal(t, "s1", api.lastChat.Load().(map[string]string)["session_id"])

	select {
	case u := <-updates:
		require.NoError(t, u.Err)
		require.NotNil(t, u.Brief)
		assert.Equal(t, "defining", u.Brief.Status)
		assert.Equal(t, 15, u.Completeness.Score)
	case <-time.After(2 * time.Second):
		t.Fatal("brief refresh did not fire")
	}

	shareID, err := c.Share(ctx, "a@b.com", "")
	require.NoError(t, err)
	assert.Equal(t, "0123456789ab", shareID)
}

func TestClientRefreshIsDebounced(t *testing.T) {
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	c := New(server.URL, "visitor-1")
	c.RefreshDelay = 100 * time.Millisecond
	c.OnBrief = func(BriefUpdate) {}
	defer c.Close()

	ctx := context.Background()
	_, _, err := c.Start(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := c.Send(ctx, "hello")
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return api.briefReads.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), api.briefReads.Load())
}

func TestClientErrors(t *testing.T) {
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	c := New(server.URL, "visitor-1")
	ctx := context.Background()

	_, _, err := c.Brief(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = c.Share(ctx, "a@b.com", "")
	assert.ErrorIs(t, err, ErrNoSession)

	reply, err := c.Send(ctx, "stateless works")
	require.NoError(t, err)
	assert.Equal(t, "echo: stateless works", reply)
	_, hasSession := api.lastChat.Load().(map[string]string)["session_id"]
	assert.False(t, hasSession)

	_, err = c.Send(ctx, "fail")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "try later", apiErr.UserMessage)
}
