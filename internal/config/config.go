// Package config provides configuration loading for infrad.
//
// Configuration comes from a YAML file with environment variable
// overrides, applied on top of hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete infrad configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	NATS        NATSConfig        `koanf:"nats"`
	LLM         LLMConfig         `koanf:"llm"`
	Federation  FederationConfig  `koanf:"federation"`
	Assembler   AssemblerConfig   `koanf:"assembler"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Inventory   InventoryConfig   `koanf:"inventory"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default), "qdrant", or
	// "memory" (ephemeral, local runs only).
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds external Qdrant gRPC settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (local, default) or "tei" (HTTP).
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
}

// NATSConfig holds the JetStream session store settings.
type NATSConfig struct {
	URL        string   `koanf:"url"`
	Bucket     string   `koanf:"bucket"`
	SessionTTL Duration `koanf:"session_ttl"`
}

// LLMConfig holds the completion client settings.
type LLMConfig struct {
	APIKey    Secret `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	MaxTokens int    `koanf:"max_tokens"`
}

// FederationConfig tunes fan-out queries.
type FederationConfig struct {
	PerCollectionTimeout Duration `koanf:"per_collection_timeout"`
	MaxConcurrency       int      `koanf:"max_concurrency"`
}

// AssemblerConfig tunes context assembly.
type AssemblerConfig struct {
	MaxContextTokens int `koanf:"max_context_tokens"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// InventoryConfig points local runs at a static resource inventory.
type InventoryConfig struct {
	// Path is a JSON file mapping resource type to records. Empty
	// means no fetcher is wired and observed-inventory operations are
	// unavailable.
	Path string `koanf:"path"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Chromem.Path == "" {
		c.VectorStore.Chromem.Path = "~/.config/infrad/vectorstore"
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.VectorStore.Qdrant.VectorSize == 0 {
		c.VectorStore.Qdrant.VectorSize = 384
	}

	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "fastembed"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:8080"
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.Bucket == "" {
		c.NATS.Bucket = "infrad_sessions"
	}
	if c.NATS.SessionTTL == 0 {
		c.NATS.SessionTTL = Duration(1 * time.Hour)
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.anthropic.com"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-3-5-sonnet-20241022"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}

	if c.Federation.PerCollectionTimeout == 0 {
		c.Federation.PerCollectionTimeout = Duration(2 * time.Second)
	}
	if c.Federation.MaxConcurrency == 0 {
		c.Federation.MaxConcurrency = 8
	}

	if c.Assembler.MaxContextTokens == 0 {
		c.Assembler.MaxContextTokens = 4000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "infrad"
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = "localhost:4317"
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

	switch c.VectorStore.Provider {
	case "chromem", "qdrant", "memory":
	default:
		return fmt.Errorf("unknown vectorstore provider: %q", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" {
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "mock":
	default:
		return fmt.Errorf("unknown embeddings provider: %q", c.Embeddings.Provider)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format: %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.Assembler.MaxContextTokens < 0 {
		return errors.New("max context tokens cannot be negative")
	}

	return nil
}
