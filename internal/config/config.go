// Package config provides configuration loading for ragd.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. Defaults are applied for anything unset.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config holds the complete ragd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Provider  ProviderConfig  `koanf:"provider"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Store     StoreConfig     `koanf:"store"`
	Memory    MemoryConfig    `koanf:"memory"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Context   ContextConfig   `koanf:"context"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	HTTPPort        int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ProviderConfig holds LLM provider configuration.
type ProviderConfig struct {
	Default string       `koanf:"default"`
	OpenAI  OpenAIConfig `koanf:"openai"`
	Ollama  OllamaConfig `koanf:"ollama"`
}

// OpenAIConfig holds OpenAI-compatible backend settings.
type OpenAIConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// OllamaConfig holds Ollama backend settings.
type OllamaConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// EmbeddingConfig holds embedding backend configuration.
type EmbeddingConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	TopK           int     `koanf:"top_k"`
	ScoreThreshold float64 `koanf:"score_threshold"`
}

// StoreConfig holds vector store persistence configuration.
type StoreConfig struct {
	Path         string        `koanf:"path"`
	SaveInterval time.Duration `koanf:"save_interval"`
}

// IndexPath is the on-disk location of the serialized vector index.
func (s StoreConfig) IndexPath() string {
	return filepath.Join(s.Path, "index.gob")
}

// MetadataPath is the on-disk location of the document metadata file.
func (s StoreConfig) MetadataPath() string {
	return filepath.Join(s.Path, "documents.json")
}

// MemoryConfig holds session memory configuration.
type MemoryConfig struct {
	Window        int           `koanf:"window"`
	MaxTurns      int           `koanf:"max_turns"`
	IdleTTL       time.Duration `koanf:"idle_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// IngestConfig holds document ingestion configuration.
type IngestConfig struct {
	MaxFileSize  int64  `koanf:"max_file_size"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
	ParserURL    string `koanf:"parser_url"`
}

// ContextConfig holds prompt assembly configuration.
type ContextConfig struct {
	TokenBudget int `koanf:"token_budget"`
}

// TelemetryConfig holds metrics configuration.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Provider.Default != "openai" && c.Provider.Default != "ollama" {
		return fmt.Errorf("unknown default provider: %q (must be openai or ollama)", c.Provider.Default)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval score_threshold must be in [0,1], got %g", c.Retrieval.ScoreThreshold)
	}
	if c.Memory.Window <= 0 {
		return fmt.Errorf("memory window must be positive, got %d", c.Memory.Window)
	}
	if c.Memory.MaxTurns > 0 && c.Memory.MaxTurns < c.Memory.Window*2 {
		return fmt.Errorf("memory max_turns (%d) must hold at least the window (%d exchanges)",
			c.Memory.MaxTurns, c.Memory.Window)
	}
	if c.Ingest.MaxFileSize <= 0 {
		return errors.New("ingest max_file_size must be positive")
	}
	if c.Ingest.ChunkSize <= 0 {
		return errors.New("ingest chunk_size must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	if c.Context.TokenBudget <= 0 {
		return errors.New("context token_budget must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	return nil
}
