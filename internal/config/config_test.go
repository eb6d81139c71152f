package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"PORT", "CORS_ALLOWED_ORIGINS", "LLM_PROVIDER", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "LLM_TIMEOUT_MS",
	"CHAT_REPLY_MAX_TOKENS", "CHAT_REPLY_TEMPERATURE", "BRIEF_EXTRACT_MAX_TOKENS", "CHAT_HISTORY_LIMIT",
	"CHAT_RATE_LIMIT_WINDOW_MS", "CHAT_RATE_LIMIT_MAX_REQUESTS", "STORAGE_ENABLED", "DATABASE_URL",
	"BRIEF_MERGE_FIELDS", "BRIEF_WORKERS", "BRIEF_QUEUE_SIZE", "RESEND_API_KEY", "NOTIFY_TO",
	"NOTIFY_FROM", "NOTIFY_TIMEOUT_MS", "PUBLIC_BASE_URL", "SITE_OWNER_NAME", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedEnv {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.AI.MissingCredential())
	assert.Equal(t, 220, cfg.AI.ReplyMaxTokens)
	assert.InDelta(t, 0.2, cfg.AI.ReplyTemperature, 1e-9)
	assert.Equal(t, 800, cfg.AI.ExtractMaxTokens)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 8, cfg.AI.StatelessTurnLimit)

	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 20, cfg.RateLimit.MaxRequests)

	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "planner.db", cfg.Storage.DatabaseURL)
	assert.False(t, cfg.Brief.MergeFields)
	assert.Equal(t, 2, cfg.Brief.MinUserTurns)

	assert.False(t, cfg.Notify.Enabled())
	assert.Equal(t, "Kevin", cfg.Site.OwnerName)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://kevin.dev, ,http://localhost:3000")
	t.Setenv("LLM_PROVIDER", "Mock")
	t.Setenv("CHAT_RATE_LIMIT_WINDOW_MS", "1000")
	t.Setenv("CHAT_RATE_LIMIT_MAX_REQUESTS", "3")
	t.Setenv("CHAT_REPLY_TEMPERATURE", "0.5")
	t.Setenv("STORAGE_ENABLED", "false")
	t.Setenv("BRIEF_MERGE_FIELDS", "true")
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("NOTIFY_TO", "owner@example.dev")
	t.Setenv("PUBLIC_BASE_URL", "https://kevin.dev/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://kevin.dev", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, ProviderMock, cfg.AI.Provider)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.RateLimit.MaxRequests)
	assert.InDelta(t, 0.5, cfg.AI.ReplyTemperature, 1e-9)
	assert.False(t, cfg.Storage.Enabled)
	assert.True(t, cfg.Brief.MergeFields)
	assert.True(t, cfg.Notify.Enabled())
	assert.Equal(t, "https://kevin.dev", cfg.Site.PublicBaseURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                      "80 80",
		"LLM_PROVIDER":              "openai",
		"CHAT_RATE_LIMIT_WINDOW_MS": "-5",
		"CHAT_REPLY_MAX_TOKENS":     "many",
		"STORAGE_ENABLED":           "maybe",
		"CHAT_REPLY_TEMPERATURE":    "warm",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestArkEnabled(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk, Model: "ep-123", APIKey: "key"}
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "ARK_API_KEY", cfg.MissingCredential())

	cfg.APIKey = ""
	assert.False(t, cfg.Enabled())
	cfg.AccessKey, cfg.SecretKey = "ak", "sk"
	assert.True(t, cfg.Enabled())
}
