package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "GATE",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "GATE",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (GATE_*, plus OPENAI_API_KEY for the key)
// 3. Project config (.gate.yaml in current directory)
// 4. User config (~/.config/gate/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	_ = l.v.BindEnv("generation.api_key", l.envPrefix+"_GENERATION_API_KEY", "OPENAI_API_KEY")

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".gate")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config
		l.v.AddConfigPath(".")
		if dir, err := UserConfigDir(); err == nil {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// The user config is named config.yaml, not .gate.yaml.
		if l.configFile == "" {
			if path, err := UserConfigPath(); err == nil {
				if _, statErr := os.Stat(path); statErr == nil {
					l.v.SetConfigFile(path)
					if err := l.v.ReadInConfig(); err != nil {
						return nil, fmt.Errorf("reading config: %w", err)
					}
				}
			}
		}
	}

	return l.unmarshal()
}

// Reload re-reads the current viper state, e.g. after a file change event.
func (l *Loader) Reload() (*Config, error) {
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Policy defaults
	l.v.SetDefault("policy.min_confidence", 0.6)
	l.v.SetDefault("policy.num_samples", 5)

	// Scoring defaults
	l.v.SetDefault("scoring.weights.low", 0.08)
	l.v.SetDefault("scoring.weights.medium", 0.20)
	l.v.SetDefault("scoring.weights.high", 0.40)

	// Clustering defaults
	l.v.SetDefault("clustering.strategy", "greedy")
	l.v.SetDefault("clustering.scan_mode", "members")

	// Oracle defaults
	l.v.SetDefault("oracle.type", "keyword")
	l.v.SetDefault("oracle.keyword_threshold", 0.75)
	l.v.SetDefault("oracle.embedding_threshold", 0.92)
	l.v.SetDefault("oracle.embedding_model", "text-embedding-3-small")
	l.v.SetDefault("oracle.timeout", "30s")
	l.v.SetDefault("oracle.max_retries", 3)
	l.v.SetDefault("oracle.cache_size", 1024)

	// Extraction defaults
	l.v.SetDefault("extraction.disabled", []string{})

	// Generation defaults
	l.v.SetDefault("generation.provider", "openai")
	l.v.SetDefault("generation.model", "gpt-4o-mini")
	l.v.SetDefault("generation.base_url", "")
	l.v.SetDefault("generation.organization", "")
	l.v.SetDefault("generation.system_prompt", "")
	l.v.SetDefault("generation.temperature", 0.9)
	l.v.SetDefault("generation.max_tokens", 0)
	l.v.SetDefault("generation.concurrency", 4)
	l.v.SetDefault("generation.call_timeout", "60s")
	l.v.SetDefault("generation.max_retries", 3)
	l.v.SetDefault("generation.rate_limit", 1.0)
	l.v.SetDefault("generation.burst", 10)

	// State defaults
	l.v.SetDefault("state.enabled", true)
	l.v.SetDefault("state.backend", "sqlite")
	l.v.SetDefault("state.path", ".gate/reports.db")

	// Server defaults
	l.v.SetDefault("server.host", "127.0.0.1")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.cors_origins", []string{})
	l.v.SetDefault("server.read_timeout", "30s")
	l.v.SetDefault("server.write_timeout", "5m")
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.max_body_bytes", 4<<20)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// AllSettings returns all settings as a map.
func (l *Loader) AllSettings() map[string]interface{} {
	return l.v.AllSettings()
}
