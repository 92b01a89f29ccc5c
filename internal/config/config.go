package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Generation GenerationConfig `mapstructure:"generation"`
	State      StateConfig      `mapstructure:"state"`
	Server     ServerConfig     `mapstructure:"server"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PolicyConfig is the default admission policy.
type PolicyConfig struct {
	MinConfidence     float64            `mapstructure:"min_confidence"`
	NumSamples        int                `mapstructure:"num_samples"`
	HardReject        []HardRejectConfig `mapstructure:"hard_reject"`
	SeverityOverrides map[string]string  `mapstructure:"severity_overrides"`
}

// HardRejectConfig is one hard-reject rule. Severity is low, medium or high.
type HardRejectConfig struct {
	Category string `mapstructure:"category"`
	Severity string `mapstructure:"severity"`
}

// ScoringConfig holds the severity penalty weights.
type ScoringConfig struct {
	Weights WeightsConfig `mapstructure:"weights"`
}

// WeightsConfig mirrors service.SeverityWeights.
type WeightsConfig struct {
	Low    float64 `mapstructure:"low"`
	Medium float64 `mapstructure:"medium"`
	High   float64 `mapstructure:"high"`
}

// ClusteringConfig selects the clustering algorithm.
type ClusteringConfig struct {
	Strategy string `mapstructure:"strategy"`  // greedy, components
	ScanMode string `mapstructure:"scan_mode"` // members, representatives
}

// OracleConfig selects and tunes the similarity oracle.
type OracleConfig struct {
	Type               string        `mapstructure:"type"` // exact, keyword, embedding
	KeywordThreshold   float64       `mapstructure:"keyword_threshold"`
	EmbeddingThreshold float64       `mapstructure:"embedding_threshold"`
	EmbeddingModel     string        `mapstructure:"embedding_model"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	CacheSize          int           `mapstructure:"cache_size"`
}

// ExtractionConfig controls which extractors run.
type ExtractionConfig struct {
	Disabled []string                `mapstructure:"disabled"`
	Custom   []CustomExtractorConfig `mapstructure:"custom"`
}

// CustomExtractorConfig defines a regex extractor. Each pattern may have one
// capture group; its match, lowercased, is the variant.
type CustomExtractorConfig struct {
	Name     string   `mapstructure:"name"`
	Category string   `mapstructure:"category"`
	Patterns []string `mapstructure:"patterns"`
}

// GenerationConfig configures the provider used by sampling commands.
type GenerationConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Organization string        `mapstructure:"organization"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Concurrency  int           `mapstructure:"concurrency"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RateLimit    float64       `mapstructure:"rate_limit"` // calls per second, 0 disables
	Burst        int           `mapstructure:"burst"`
}

// StateConfig configures report persistence.
type StateConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"` // sqlite, json
	Path    string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}
