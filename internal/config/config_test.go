package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every recognised key so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
	}
	for _, key := range []string{
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL",
		"ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("ANTHROPIC_BASE_URL", "http://127.0.0.1:48271")
	clearEnv(t)

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, ":8001", cfg.Proxy.Addr)
	assert.Equal(t, "https://api.anthropic.com", cfg.Proxy.UpstreamURL)
	assert.Equal(t, "2023-06-01", cfg.Proxy.APIVersion)
	assert.InDelta(t, 5, cfg.Proxy.RateLimit, 1e-9)
	assert.Equal(t, 10, cfg.Proxy.Burst)
	assert.Equal(t, BackendProxy, cfg.Chat.Backend)
	assert.Equal(t, "http://localhost:8001", cfg.Chat.ProxyURL)
	assert.Equal(t, 1000, cfg.Chat.MaxTokens)
	assert.Equal(t, 120*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, EngineKeyword, cfg.Analysis.Engine)
	assert.Equal(t, 15, cfg.Analysis.ChunkWords)
	assert.Equal(t, 5, cfg.Analysis.CarryWords)
	assert.Equal(t, 20, cfg.Analysis.TrajectoryCapacity)
	assert.False(t, cfg.AI.Enabled())
	assert.Nil(t, cfg.AI.Temperature)
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CHAT_BACKEND", "ARK")
	t.Setenv("PROXY_URL", "http://proxy.local/")
	t.Setenv("ANALYSIS_CHUNK_WORDS", "10")
	t.Setenv("ANALYSIS_CARRY_WORDS", "2")
	t.Setenv("ARK_MODEL", "doubao")
	t.Setenv("ARK_API_KEY", "k")
	t.Setenv("ARK_TEMPERATURE", "0.2")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, BackendArk, cfg.Chat.Backend)
	assert.Equal(t, "http://proxy.local", cfg.Chat.ProxyURL)
	assert.Equal(t, 10, cfg.Analysis.ChunkWords)
	assert.Equal(t, 2, cfg.Analysis.CarryWords)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.2, *cfg.AI.Temperature, 1e-9)
}

func TestInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad port":      {"PORT", "80 80"},
		"bad chunk":     {"ANALYSIS_CHUNK_WORDS", "many"},
		"zero capacity": {"TRAJECTORY_CAPACITY", "0"},
		"bad backend":   {"CHAT_BACKEND", "carrier-pigeon"},
		"bad engine":    {"ANALYSIS_ENGINE", "tea-leaves"},
		"carry too big": {"ANALYSIS_CARRY_WORDS", "15"},
		"bad timeout":   {"CHAT_TIMEOUT", "soon"},
		"bad top p":     {"ARK_TOP_P", "high"},
		"negative rate": {"PROXY_RATE_LIMIT", "-1"},
	}
	clearEnv(t)
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := FromViper(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}
