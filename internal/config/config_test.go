package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Point at a nonexistent file so only defaults apply.
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "menu_items", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, uint64(1536), cfg.VectorStore.Qdrant.VectorSize)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 3, cfg.Memory.RetentionDays)
	assert.Equal(t, 72*time.Hour, cfg.Memory.RetentionWindow())
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 20, cfg.Search.HistoryLimit)
	assert.Equal(t, 10*time.Second, cfg.Search.RetrievalTimeout)
	assert.Equal(t, "anonymous", cfg.Search.DefaultUserID)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
memory:
  retention_days: 7
search:
  top_k: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7, cfg.Memory.RetentionDays)
	assert.Equal(t, 5, cfg.Search.TopK)

	// Unset fields still get defaults.
	assert.Equal(t, "menu_items", cfg.VectorStore.Qdrant.Collection)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("FEASTD_SERVER_PORT", "7070")
	t.Setenv("FEASTD_MEMORY_RETENTION_DAYS", "14")
	t.Setenv("FEASTD_EMBEDDINGS_BASE_URL", "http://tei:8081/v1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "environment wins over file")
	assert.Equal(t, 14, cfg.Memory.RetentionDays)
	assert.Equal(t, "http://tei:8081/v1", cfg.Embeddings.BaseURL)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		ApplyDefaults(cfg)
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad server port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown provider", func(c *Config) { c.VectorStore.Provider = "pinecone" }},
		{"zero retention", func(c *Config) { c.Memory.RetentionDays = 0 }},
		{"zero top_k", func(c *Config) { c.Search.TopK = 0 }},
		{"zero retrieval timeout", func(c *Config) { c.Search.RetrievalTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/.config/feastd/chat_history.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "feastd", "chat_history.db"), got)

	got, err = ExpandPath("/var/lib/feastd/chat.db")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/feastd/chat.db", got)
}
