package notify

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

	"github.com/kolson/planner/backend/internal/config"
	"github.com/kolson/planner/backend/internal/model/brief"
)

func strPtr(s string) *string { return &s }

func sampleBrief() *brief.Brief {
	return &brief.Brief{
		SessionID: "s1",
		Fields: brief.Fields{
			Summary:  strPtr("Booking app for salons"),
			Goals:    []string{"cut no-shows"},
			Features: []string{"online booking", "reminders"},
			Industry: strPtr("beauty"),
		},
		Status:  brief.StatusShared,
		ShareID: "0123456789ab",
	}
}

func TestNotifySubmitsEmail(t *testing.T) {
	var got map[string]any
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer server.Close()

	n := New(config.NotifyConfig{
		ResendAPIKey: "re_test",
		From:         "Planner <planner@example.dev>",
		To:           "owner@example.dev",
		Timeout:      time.Second,
	}, WithBaseURL(server.URL))
	require.True(t, n.Enabled())

	n.Notify(context.Background(), "a@b.com", sampleBrief(), "https://example.dev/brief/0123456789ab")

	require.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "Planner <planner@example.dev>", got["from"])
	assert.Equal(t, []any{"owner@example.dev"}, got["to"])
	assert.Equal(t, "a@b.com", got["reply_to"])
	assert.Equal(t, "New project brief from a@b.com", got["subject"])
	assert.Contains(t, got["text"], "https://example.dev/brief/0123456789ab")
}

func TestNotifySwallowsAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"bad from"}`))
	}))
	defer server.Close()

	n := New(config.NotifyConfig{ResendAPIKey: "re_test", To: "owner@example.dev"}, WithBaseURL(server.URL))
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "a@b.com", sampleBrief(), "")
	})
}

func TestNotifyWithoutCredentialsIsNoop(t *testing.T) {
	n := New(config.NotifyConfig{To: "owner@example.dev"})
	assert.False(t, n.Enabled())
	n.Notify(context.Background(), "a@b.com", sampleBrief(), "")

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestBody(t *testing.T) {
	body := Body("a@b.com", sampleBrief(), "https://example.dev/brief/0123456789ab")

	assert.Contains(t, body, "Contact: a@b.com")
	assert.Contains(t, body, "Summary: Booking app for salons")
	assert.Contains(t, body, "- online booking\n- reminders\n")
	assert.Contains(t, body, "Industry: beauty")
	assert.Contains(t, body, "Timeline: -")
	assert.Contains(t, body, "View the brief: https://example.dev/brief/0123456789ab")

	empty := Body("", &brief.Brief{Status: brief.StatusShared}, "")
	assert.Contains(t, empty, "Summary: Not captured yet")
	assert.Contains(t, empty, "Goals:\n- none yet")
	assert.NotContains(t, empty, "View the brief")
}
