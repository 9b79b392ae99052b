// Package config provides configuration loading for feastd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, then filled with defaults. See Load for details.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/unifeast/feastd/internal/logging"
)

// Config holds the complete feastd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Memory      MemoryConfig      `koanf:"memory"`
	Search      SearchConfig      `koanf:"search"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "chromem" (embedded, default).
	Provider string        `koanf:"provider"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant gRPC client configuration.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// ChromemConfig holds embedded chromem-go store configuration.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// EmbeddingsConfig holds the embedding endpoint configuration.
// The endpoint must be OpenAI-compatible (OpenAI API or TEI).
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// MemoryConfig holds conversation memory configuration.
type MemoryConfig struct {
	// Path is the SQLite database file for conversation history.
	Path string `koanf:"path"`

	// RetentionDays is how long an idle session is kept before purge.
	RetentionDays int `koanf:"retention_days"`

	// PurgeInterval is how often the background purge runs while serving.
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// RetentionWindow returns the retention period as a duration.
func (c MemoryConfig) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// SearchConfig holds retrieval and chat defaults.
type SearchConfig struct {
	// TopK is the number of results requested from the vector index.
	TopK int `koanf:"top_k"`

	// HistoryLimit bounds how many prior turns are loaded per request.
	HistoryLimit int `koanf:"history_limit"`

	// RetrievalTimeout bounds a single vector search call.
	RetrievalTimeout time.Duration `koanf:"retrieval_timeout"`

	// DefaultUserID is used when a chat request carries no user id.
	DefaultUserID string `koanf:"default_user_id"`
}

// ApplyDefaults sets default values for unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	cfg.Logging.ApplyDefaults()

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "menu_items"
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 1536 // text-embedding-3-small
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/feastd/vectorstore"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "menu_items"
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}

	if cfg.Memory.Path == "" {
		cfg.Memory.Path = "~/.config/feastd/chat_history.db"
	}
	if cfg.Memory.RetentionDays == 0 {
		cfg.Memory.RetentionDays = 3
	}
	if cfg.Memory.PurgeInterval == 0 {
		cfg.Memory.PurgeInterval = time.Hour
	}

	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 10
	}
	if cfg.Search.HistoryLimit == 0 {
		cfg.Search.HistoryLimit = 20
	}
	if cfg.Search.RetrievalTimeout == 0 {
		cfg.Search.RetrievalTimeout = 10 * time.Second
	}
	if cfg.Search.DefaultUserID == "" {
		cfg.Search.DefaultUserID = "anonymous"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	case "chromem":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: qdrant, chromem)", c.VectorStore.Provider)
	}

	if c.Memory.RetentionDays < 1 {
		return fmt.Errorf("memory retention days must be at least 1, got %d", c.Memory.RetentionDays)
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("search top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.RetrievalTimeout <= 0 {
		return errors.New("retrieval timeout must be positive")
	}

	return nil
}
