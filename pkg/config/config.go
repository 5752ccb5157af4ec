// Package config loads and validates agentmem's runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Profile    string           `mapstructure:"profile"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Engine     EngineConfig     `mapstructure:"engine"`
	RestAPI    RestAPIConfig    `mapstructure:"rest_api"`
	Session    SessionConfig    `mapstructure:"session"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Embedder   EmbedderConfig   `mapstructure:"embedder"`
	VectorIdx  VectorIndexConfig `mapstructure:"vector_index"`
}

// DatabaseConfig holds storage-kernel configuration.
type DatabaseConfig struct {
	Path        string `mapstructure:"path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// EngineConfig holds the engine's tunable thresholds and budgets.
type EngineConfig struct {
	AutoCheckpointThreshold int     `mapstructure:"auto_checkpoint_threshold"`
	ErrorBurstThreshold     int     `mapstructure:"error_burst_threshold"`
	ToolBurstCount          int     `mapstructure:"tool_burst_count"`
	ToolBurstWindowSeconds  int     `mapstructure:"tool_burst_window_seconds"`
	DisclosureThreshold     int     `mapstructure:"disclosure_threshold"`
	ContextThresholdPercent int     `mapstructure:"context_threshold_percent"`
	ContextTokenBudget      int     `mapstructure:"context_token_budget"`
	DecayRate               float64 `mapstructure:"decay_rate"`
	DecayFloor              float64 `mapstructure:"decay_floor"`
	ReinforceBoost          float64 `mapstructure:"reinforce_boost"`
	ArchivableThreshold     float64 `mapstructure:"archivable_threshold"`
	TokenizerPath           string  `mapstructure:"tokenizer_path"`
	InlineBlobLimitBytes    int     `mapstructure:"inline_blob_limit_bytes"`
	MaxFactsPerUtterance    int     `mapstructure:"max_facts_per_utterance"`
}

// RestAPIConfig holds the optional REST driver's configuration.
type RestAPIConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AutoPort     bool     `mapstructure:"auto_port"`
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	CORS         bool     `mapstructure:"cors"`
	APIKey       string   `mapstructure:"api_key"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds REST driver request throughput. Only a global
// bucket is exposed; the API's operation surface is narrow enough that
// per-route buckets would just duplicate the global one.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// SessionConfig holds session-identity configuration.
type SessionConfig struct {
	Strategy string `mapstructure:"strategy"` // "git-directory", "manual", or "hash"
	ManualID string `mapstructure:"manual_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// EmbedderConfig holds the pluggable Embedder/Extractor backend settings.
type EmbedderConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Dimension      int    `mapstructure:"dimension"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// VectorIndexConfig selects and configures the Vector Index backend.
type VectorIndexConfig struct {
	Backend string `mapstructure:"backend"` // "sqlite" or "qdrant"
	URL     string `mapstructure:"url"`     // qdrant only
}

// DefaultConfig returns configuration with the engine's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Profile: "default",
		Database: DatabaseConfig{
			Path:        DatabasePath(),
			AutoMigrate: true,
		},
		Engine: EngineConfig{
			AutoCheckpointThreshold: 10,
			ErrorBurstThreshold:     3,
			ToolBurstCount:          10,
			ToolBurstWindowSeconds:  120,
			DisclosureThreshold:     15,
			ContextThresholdPercent: 50,
			ContextTokenBudget:      200000,
			DecayRate:               0.05,
			DecayFloor:              0.01,
			ReinforceBoost:          0.15,
			ArchivableThreshold:     0.1,
			InlineBlobLimitBytes:    1000,
			MaxFactsPerUtterance:    3,
		},
		RestAPI: RestAPIConfig{
			Enabled:  false,
			AutoPort: true,
			Port:     7654,
			Host:     "localhost",
			CORS:     true,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 20,
				BurstSize:         40,
			},
		},
		Session: SessionConfig{
			Strategy: "git-directory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Embedder: EmbedderConfig{
			Enabled:        true,
			BaseURL:        "http://localhost:11434",
			EmbeddingModel: "nomic-embed-text",
			Dimension:      768,
			TimeoutSeconds: 10,
			MaxRetries:     2,
		},
		VectorIdx: VectorIndexConfig{
			Backend: "sqlite",
			URL:     "http://localhost:6333",
		},
	}
}

// Load loads configuration from YAML with fallback to defaults. Searches,
// in order: ./config.yaml, ~/.agentmem/config.yaml, /etc/agentmem/config.yaml.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".agentmem"))
	v.AddConfigPath("/etc/agentmem")

	setDefaults(v)

	var cfg *Config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg = DefaultConfig()
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	if dbPath := os.Getenv("AGENTMEM_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if os.Getenv("AGENTMEM_EMBEDDER_DISABLED") != "" {
		cfg.Embedder.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("profile", d.Profile)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("engine.auto_checkpoint_threshold", d.Engine.AutoCheckpointThreshold)
	v.SetDefault("engine.error_burst_threshold", d.Engine.ErrorBurstThreshold)
	v.SetDefault("engine.tool_burst_count", d.Engine.ToolBurstCount)
	v.SetDefault("engine.tool_burst_window_seconds", d.Engine.ToolBurstWindowSeconds)
	v.SetDefault("engine.disclosure_threshold", d.Engine.DisclosureThreshold)
	v.SetDefault("engine.context_threshold_percent", d.Engine.ContextThresholdPercent)
	v.SetDefault("engine.context_token_budget", d.Engine.ContextTokenBudget)
	v.SetDefault("engine.decay_rate", d.Engine.DecayRate)
	v.SetDefault("engine.decay_floor", d.Engine.DecayFloor)
	v.SetDefault("engine.reinforce_boost", d.Engine.ReinforceBoost)
	v.SetDefault("engine.archivable_threshold", d.Engine.ArchivableThreshold)
	v.SetDefault("engine.tokenizer_path", d.Engine.TokenizerPath)
	v.SetDefault("engine.inline_blob_limit_bytes", d.Engine.InlineBlobLimitBytes)
	v.SetDefault("engine.max_facts_per_utterance", d.Engine.MaxFactsPerUtterance)

	v.SetDefault("rest_api.enabled", d.RestAPI.Enabled)
	v.SetDefault("rest_api.auto_port", d.RestAPI.AutoPort)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.cors", d.RestAPI.CORS)
	v.SetDefault("rest_api.rate_limit.enabled", d.RestAPI.RateLimit.Enabled)
	v.SetDefault("rest_api.rate_limit.requests_per_second", d.RestAPI.RateLimit.RequestsPerSecond)
	v.SetDefault("rest_api.rate_limit.burst_size", d.RestAPI.RateLimit.BurstSize)

	v.SetDefault("session.strategy", d.Session.Strategy)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("embedder.enabled", d.Embedder.Enabled)
	v.SetDefault("embedder.base_url", d.Embedder.BaseURL)
	v.SetDefault("embedder.embedding_model", d.Embedder.EmbeddingModel)
	v.SetDefault("embedder.dimension", d.Embedder.Dimension)
	v.SetDefault("embedder.timeout_seconds", d.Embedder.TimeoutSeconds)
	v.SetDefault("embedder.max_retries", d.Embedder.MaxRetries)

	v.SetDefault("vector_index.backend", d.VectorIdx.Backend)
	v.SetDefault("vector_index.url", d.VectorIdx.URL)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	validStrategies := map[string]bool{"git-directory": true, "manual": true, "hash": true}
	if !validStrategies[c.Session.Strategy] {
		return fmt.Errorf("session.strategy must be one of: git-directory, manual, hash")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	if c.Engine.DecayRate < 0 {
		return fmt.Errorf("engine.decay_rate must be >= 0")
	}
	if c.Engine.DecayFloor <= 0 || c.Engine.DecayFloor > 1 {
		return fmt.Errorf("engine.decay_floor must be in (0,1]")
	}

	validBackends := map[string]bool{"sqlite": true, "qdrant": true}
	if !validBackends[c.VectorIdx.Backend] {
		return fmt.Errorf("vector_index.backend must be one of: sqlite, qdrant")
	}

	return nil
}

// EnsureConfigDir creates the memory root directory if it doesn't exist.
func (c *Config) EnsureConfigDir() error {
	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the memory-root directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".agentmem")
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "memory.db")
}
