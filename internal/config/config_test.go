package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "project:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.Groq.BaseURL)
	assert.False(t, cfg.Worker.Enabled)
	assert.Equal(t, 30, cfg.Pipeline.LedgerTTLMinutes)
	assert.Equal(t, 4, cfg.Pipeline.QueueConcurrency)
	assert.False(t, cfg.Server.IsProduction())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ENV", "Production")
	t.Setenv("LLM_PROVIDER", "OpenRouter")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("WORKER_ENABLED", "true")
	t.Setenv("WORKER_SERVICE_URL", "http://worker:8080")
	t.Setenv("LEDGER_TTL_MINUTES", "5")
	t.Setenv("QUEUE_CONCURRENCY", "8")
	t.Setenv("REDIS_PROJECT_TTL_HOURS", "48")
	t.Setenv("REDIS_KEY_PREFIX", "staging:project:")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "openrouter", cfg.LLM.Provider)
	assert.Equal(t, "or-key", cfg.LLM.OpenRouter.APIKey)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, "http://worker:8080", cfg.Worker.ServiceURL)
	assert.Equal(t, 5, cfg.Pipeline.LedgerTTLMinutes)
	assert.Equal(t, 8, cfg.Pipeline.QueueConcurrency)
	assert.Equal(t, 48, cfg.Redis.ProjectTTLHours)
	assert.Equal(t, "staging:project:", cfg.Redis.KeyPrefix)
}

func TestLoad_SecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groq_key")
	require.NoError(t, os.WriteFile(path, []byte("  file-key\n"), 0o600))

	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GROQ_API_KEY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.LLM.Groq.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("provider", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "bard")
		_, err := Load()
		assert.ErrorContains(t, err, "unsupported llm provider")
	})

	t.Run("concurrency", func(t *testing.T) {
		t.Setenv("QUEUE_CONCURRENCY", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "queue_concurrency")
	})
}
