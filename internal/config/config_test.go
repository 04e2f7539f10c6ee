package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.Session.Duration)
	assert.Equal(t, 20, cfg.Session.MessageCap)
	assert.Equal(t, 500, cfg.Session.MaxMessageLength)
	assert.Equal(t, 25, cfg.Rating.WinDelta)
	assert.Equal(t, -20, cfg.Rating.LossDelta)
	assert.Equal(t, 25, cfg.Match.SampleSize)
	assert.Equal(t, 12*time.Second, cfg.Match.Timeout)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.InDelta(t, 0.9, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 150, cfg.LLM.MaxTokens)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SESSION_DURATION", "60s")
	t.Setenv("SESSION_MESSAGE_CAP", "10")
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Session.Duration)
	assert.Equal(t, 10, cfg.Session.MessageCap)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  LLMConfig
		want string
	}{
		{"explicit key wins", LLMConfig{Provider: "gemini", APIKey: "a", GeminiAPIKey: "b"}, "a"},
		{"gemini fallback", LLMConfig{Provider: "gemini", GeminiAPIKey: "b"}, "b"},
		{"anthropic fallback", LLMConfig{Provider: "Anthropic", AnthropicAPIKey: "c"}, "c"},
		{"mock has no key", LLMConfig{Provider: "mock", GeminiAPIKey: "b"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ResolveAPIKey())
		})
	}
}

func TestValidateRejectsZeroCap(t *testing.T) {
	t.Setenv("SESSION_MESSAGE_CAP", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsHeartbeatAboveIdleTimeout(t *testing.T) {
	t.Setenv("SERVER_HEARTBEAT_INTERVAL", "1m")
	t.Setenv("SESSION_IDLE_TIMEOUT", "45s")

	_, err := Load()
	require.Error(t, err)
}
