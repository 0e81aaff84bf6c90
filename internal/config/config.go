// Package config loads and validates the engine configuration from
// .codescope/config.json, falling back to defaults when absent.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete codescope configuration
type Config struct {
	Version int    `json:"version" mapstructure:"version"`
	DataDir string `json:"dataDir" mapstructure:"dataDir"`

	Ranking   RankingConfig   `json:"ranking" mapstructure:"ranking"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
	Indexing  IndexingConfig  `json:"indexing" mapstructure:"indexing"`
	Sessions  SessionsConfig  `json:"sessions" mapstructure:"sessions"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// RankingConfig contains the score-fusion tuning surface. The values are
// configuration, not contract; defaults match DefaultConfig.
type RankingConfig struct {
	SemanticWeight      float64 `json:"semanticWeight" mapstructure:"semanticWeight"`
	GraphWeight         float64 `json:"graphWeight" mapstructure:"graphWeight"`
	MaxGraphDepth       int     `json:"maxGraphDepth" mapstructure:"maxGraphDepth"`
	SeedCount           int     `json:"seedCount" mapstructure:"seedCount"`
	SeedThreshold       float64 `json:"seedThreshold" mapstructure:"seedThreshold"`
	CandidateMultiplier int     `json:"candidateMultiplier" mapstructure:"candidateMultiplier"`
	DampingFactor       float64 `json:"dampingFactor" mapstructure:"dampingFactor"`
	BoostFactor         float64 `json:"boostFactor" mapstructure:"boostFactor"`
}

// EmbeddingConfig contains the external embedding provider configuration
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // "openai", "ollama", or "static"
	Model     string `json:"model" mapstructure:"model"`
	BaseURL   string `json:"baseUrl" mapstructure:"baseUrl"`
	APIKeyEnv string `json:"apiKeyEnv" mapstructure:"apiKeyEnv"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
}

// IndexingConfig contains indexing job configuration
type IndexingConfig struct {
	Workers          int      `json:"workers" mapstructure:"workers"`
	MaxFileSizeBytes int      `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	Ignore           []string `json:"ignore" mapstructure:"ignore"`
	WatchForChanges  bool     `json:"watchForChanges" mapstructure:"watchForChanges"`
	DebounceMs       int      `json:"debounceMs" mapstructure:"debounceMs"`
}

// SessionsConfig contains recommendation-session lifecycle configuration
type SessionsConfig struct {
	IdleTimeoutMinutes   int `json:"idleTimeoutMinutes" mapstructure:"idleTimeoutMinutes"`
	SweepIntervalMinutes int `json:"sweepIntervalMinutes" mapstructure:"sweepIntervalMinutes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: ".codescope",
		Ranking: RankingConfig{
			SemanticWeight:      1.0,
			GraphWeight:         0.5,
			MaxGraphDepth:       2,
			SeedCount:           3,
			SeedThreshold:       0.6,
			CandidateMultiplier: 3,
			DampingFactor:       0.3,
			BoostFactor:         1.5,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			APIKeyEnv: "CODESCOPE_EMBED_API_KEY",
			TimeoutMs: 15000,
			Dimension: 768,
		},
		Indexing: IndexingConfig{
			Workers:          4,
			MaxFileSizeBytes: 1000000,
			Ignore:           []string{"node_modules", "vendor", "build", ".git", "__pycache__"},
			WatchForChanges:  true,
			DebounceMs:       500,
		},
		Sessions: SessionsConfig{
			IdleTimeoutMinutes:   30,
			SweepIntervalMinutes: 5,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <root>/.codescope/config.json
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".codescope"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to <root>/.codescope/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".codescope")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Ranking.SemanticWeight < 0 {
		return &ConfigError{Field: "ranking.semanticWeight", Message: "must be non-negative"}
	}
	if c.Ranking.GraphWeight < 0 {
		return &ConfigError{Field: "ranking.graphWeight", Message: "must be non-negative"}
	}
	if c.Ranking.MaxGraphDepth < 0 {
		return &ConfigError{Field: "ranking.maxGraphDepth", Message: "must be non-negative"}
	}
	if c.Ranking.DampingFactor <= 0 || c.Ranking.DampingFactor >= 1 {
		return &ConfigError{Field: "ranking.dampingFactor", Message: "must be in (0, 1)"}
	}
	if c.Ranking.BoostFactor <= 1 {
		return &ConfigError{Field: "ranking.boostFactor", Message: "must be greater than 1"}
	}
	if c.Ranking.CandidateMultiplier < 1 {
		return &ConfigError{Field: "ranking.candidateMultiplier", Message: "must be at least 1"}
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "static":
	default:
		return &ConfigError{Field: "embedding.provider", Message: "unknown provider"}
	}
	if c.Sessions.IdleTimeoutMinutes <= 0 {
		return &ConfigError{Field: "sessions.idleTimeoutMinutes", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
