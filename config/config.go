// Package config holds the assistant configuration tree and its validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the assistant.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig  `json:"vectordb" yaml:"vectordb"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Chat      ChatConfig      `json:"chat" yaml:"chat"`
	LogLevel  string          `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// ServerConfig holds the HTTP binding settings.
type ServerConfig struct {
	Port        int `json:"port,omitempty" yaml:"port,omitempty"`
	MetricsPort int `json:"metrics_port,omitempty" yaml:"metrics_port,omitempty"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // Available options: openai, ollama
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// EmbeddingConfig configures the embedding model used by the Milvus index.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: openai, hash
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// VectorDBConfig configures the nearest-neighbor index backend.
type VectorDBConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: memory, milvus
	Host       string `json:"host,omitempty" yaml:"host,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
}

// DatabaseConfig points at the retail SQLite database that backs both the
// corpus extractor and the SQL agent.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// SessionConfig governs session lifecycle.
type SessionConfig struct {
	TimeoutMinutes int `json:"timeout_minutes,omitempty" yaml:"timeout_minutes,omitempty"`
	SweepEvery     int `json:"sweep_every,omitempty" yaml:"sweep_every,omitempty"`
	MaxHistory     int `json:"max_history,omitempty" yaml:"max_history,omitempty"`
}

// ChatConfig tunes the orchestrator and the retrieval adapter.
type ChatConfig struct {
	TopK                 int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	HybridTimeoutSeconds int     `json:"hybrid_timeout_seconds,omitempty" yaml:"hybrid_timeout_seconds,omitempty"`
	MaxContextTokens     int     `json:"max_context_tokens,omitempty" yaml:"max_context_tokens,omitempty"`
	SQLWorkers           int     `json:"sql_workers,omitempty" yaml:"sql_workers,omitempty"`
	CacheSize            int     `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
	CacheTTLSeconds      int     `json:"cache_ttl_seconds,omitempty" yaml:"cache_ttl_seconds,omitempty"`
	RetrievalThreshold   float64 `json:"retrieval_threshold,omitempty" yaml:"retrieval_threshold,omitempty"`
}

// Default returns a configuration with the baked-in defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, MetricsPort: 9091},
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "deepseek-coder",
			Temperature: 0.5,
			MaxTokens:   2048,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Model:      "text-embedding-3-small",
			Dimensions: 256,
		},
		VectorDB: VectorDBConfig{Provider: "memory", Collection: "product_descriptions"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "northwind.db"},
		Session:  SessionConfig{TimeoutMinutes: 30, SweepEvery: 10},
		Chat: ChatConfig{
			TopK:                 3,
			HybridTimeoutSeconds: 30,
			MaxContextTokens:     1500,
			SQLWorkers:           4,
			CacheSize:            256,
			CacheTTLSeconds:      300,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML configuration file on top of the defaults and applies
// environment overrides for secrets.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secret material from the environment so keys never need
// to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ASKDB_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ASKDB_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("ASKDB_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("ASKDB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// SessionTimeout returns the idle timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

// HybridTimeout returns the hybrid-dispatch join timeout as a duration.
func (c *Config) HybridTimeout() time.Duration {
	return time.Duration(c.Chat.HybridTimeoutSeconds) * time.Second
}
