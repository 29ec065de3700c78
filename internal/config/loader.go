package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefixes maps compound environment variable prefixes to nested config
// paths. Anything not listed falls back to the section.field_name split.
var envPrefixes = []struct {
	env  string
	path string
}{
	{"PROVIDER_OPENAI_", "provider.openai."},
	{"PROVIDER_OLLAMA_", "provider.ollama."},
}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables, then applies defaults and validates.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, RETRIEVAL_TOP_K, ...)
//  2. YAML config file (configPath, skipped when empty or absent)
//  3. Hardcoded defaults
//
// Environment variables use underscore separator and are uppercased:
//
//	SERVER_HTTP_PORT          -> server.http_port
//	RETRIEVAL_SCORE_THRESHOLD -> retrieval.score_threshold
//	PROVIDER_OPENAI_API_KEY   -> provider.openai.api_key
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := readConfigFile(configPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnvKey maps an environment variable name to a config path.
//
// Compound provider keys are handled by the prefix table; everything else
// splits on the first underscore into section.field_name.
func transformEnvKey(s string) string {
	for _, p := range envPrefixes {
		if strings.HasPrefix(s, p.env) {
			return p.path + strings.ToLower(strings.TrimPrefix(s, p.env))
		}
	}

	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile reads a config file with a size cap, using a single open
// file descriptor for both validation and reading.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Provider.Default == "" {
		cfg.Provider.Default = "openai"
	}
	if cfg.Provider.OpenAI.Model == "" {
		cfg.Provider.OpenAI.Model = "gpt-4"
	}
	if cfg.Provider.Ollama.BaseURL == "" {
		cfg.Provider.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Provider.Ollama.Model == "" {
		cfg.Provider.Ollama.Model = "llama3"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.ScoreThreshold == 0 {
		cfg.Retrieval.ScoreThreshold = 0.3
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "./vector_store"
	}
	if cfg.Store.SaveInterval == 0 {
		cfg.Store.SaveInterval = 5 * time.Minute
	}

	if cfg.Memory.Window == 0 {
		cfg.Memory.Window = 3
	}
	if cfg.Memory.MaxTurns == 0 {
		cfg.Memory.MaxTurns = 20
	}
	if cfg.Memory.IdleTTL > 0 && cfg.Memory.SweepInterval == 0 {
		cfg.Memory.SweepInterval = time.Minute
	}

	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}

	if cfg.Context.TokenBudget == 0 {
		cfg.Context.TokenBudget = 6000
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragd"
	}
}
