package config

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateScoring(&cfg.Scoring)
	v.validateClustering(&cfg.Clustering)
	v.validateOracle(&cfg.Oracle)
	v.validateExtraction(&cfg.Extraction)
	v.validatePolicy(cfg)
	v.validateGeneration(&cfg.Generation)
	v.validateState(&cfg.State)
	v.validateServer(&cfg.Server)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !oneOf(cfg.Level, "debug", "info", "warn", "error") {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	if !oneOf(cfg.Format, "auto", "text", "json") {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateScoring(cfg *ScoringConfig) {
	w := cfg.Weights
	if !(w.Low > 0 && w.Low <= w.Medium && w.Medium <= w.High && w.High <= 1) {
		v.addError("scoring.weights", fmt.Sprintf("low=%v medium=%v high=%v", w.Low, w.Medium, w.High),
			"must satisfy 0 < low <= medium <= high <= 1")
	}
}

func (v *Validator) validateClustering(cfg *ClusteringConfig) {
	if !oneOf(cfg.Strategy, core.ClusterGreedy, core.ClusterComponents) {
		v.addError("clustering.strategy", cfg.Strategy, "must be one of: greedy, components")
	}
	if !oneOf(cfg.ScanMode, service.ScanMembers, service.ScanRepresentatives) {
		v.addError("clustering.scan_mode", cfg.ScanMode, "must be one of: members, representatives")
	}
}

func (v *Validator) validateOracle(cfg *OracleConfig) {
	if !oneOf(cfg.Type, core.OracleExact, core.OracleKeyword, core.OracleEmbedding) {
		v.addError("oracle.type", cfg.Type, "must be one of: exact, keyword, embedding")
	}
	if cfg.KeywordThreshold <= 0 || cfg.KeywordThreshold > 1 {
		v.addError("oracle.keyword_threshold", cfg.KeywordThreshold, "must be in (0, 1]")
	}
	if cfg.EmbeddingThreshold <= 0 || cfg.EmbeddingThreshold > 1 {
		v.addError("oracle.embedding_threshold", cfg.EmbeddingThreshold, "must be in (0, 1]")
	}
	if cfg.Timeout < 0 {
		v.addError("oracle.timeout", cfg.Timeout, "must not be negative")
	}
	if cfg.MaxRetries < 0 {
		v.addError("oracle.max_retries", cfg.MaxRetries, "must not be negative")
	}
}

func (v *Validator) validateExtraction(cfg *ExtractionConfig) {
	seen := make(map[string]bool)
	for _, e := range builtinExtractorNames() {
		seen[e] = true
	}
	for _, name := range cfg.Disabled {
		if !seen[name] {
			v.addError("extraction.disabled", name, "unknown built-in extractor")
		}
	}
	for i, c := range cfg.Custom {
		field := fmt.Sprintf("extraction.custom[%d]", i)
		if seen[c.Name] {
			v.addError(field+".name", c.Name, "duplicates another extractor")
		}
		seen[c.Name] = true
		if _, err := c.build(); err != nil {
			v.addError(field, c.Name, err.Error())
		}
	}
}

func (v *Validator) validatePolicy(cfg *Config) {
	p := cfg.Policy
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		v.addError("policy.min_confidence", p.MinConfidence, "must be in [0, 1]")
	}
	if p.NumSamples < 0 || p.NumSamples > core.MaxSampleRequest {
		v.addError("policy.num_samples", p.NumSamples, fmt.Sprintf("must be between 0 and %d", core.MaxSampleRequest))
	}
	for i, rule := range p.HardReject {
		if _, err := core.ParseSeverity(rule.Severity); err != nil {
			v.addError(fmt.Sprintf("policy.hard_reject[%d].severity", i), rule.Severity, "must be one of: low, medium, high")
		}
		if strings.TrimSpace(rule.Category) == "" {
			v.addError(fmt.Sprintf("policy.hard_reject[%d].category", i), rule.Category, "required")
		}
	}
	for category, sev := range p.SeverityOverrides {
		if _, err := core.ParseSeverity(sev); err != nil {
			v.addError("policy.severity_overrides."+category, sev, "must be one of: low, medium, high")
		}
	}
	if len(v.errors) > 0 {
		return
	}

	// Category names are checked against what the extractors can emit.
	policy, err := cfg.PolicyConfig()
	if err != nil {
		v.addError("policy", nil, err.Error())
		return
	}
	engine, err := cfg.EngineConfig()
	if err != nil {
		return
	}
	if err := policy.Validate(KnownCategories(engine.Extractors)); err != nil {
		v.addError("policy", nil, err.Error())
	}
}

func (v *Validator) validateGeneration(cfg *GenerationConfig) {
	if cfg.Provider != core.ProviderOpenAI {
		v.addError("generation.provider", cfg.Provider, "must be: openai")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		v.addError("generation.temperature", cfg.Temperature, "must be in [0, 2]")
	}
	if cfg.MaxTokens < 0 {
		v.addError("generation.max_tokens", cfg.MaxTokens, "must not be negative")
	}
	if cfg.Concurrency < 1 {
		v.addError("generation.concurrency", cfg.Concurrency, "must be at least 1")
	}
	if cfg.CallTimeout <= 0 {
		v.addError("generation.call_timeout", cfg.CallTimeout, "must be positive")
	}
	if cfg.MaxRetries < 0 {
		v.addError("generation.max_retries", cfg.MaxRetries, "must not be negative")
	}
	if cfg.RateLimit < 0 {
		v.addError("generation.rate_limit", cfg.RateLimit, "must not be negative")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	if !cfg.Enabled {
		return
	}
	if !oneOf(cfg.Backend, "sqlite", "json") {
		v.addError("state.backend", cfg.Backend, "must be one of: sqlite, json")
	}
	if strings.TrimSpace(cfg.Path) == "" {
		v.addError("state.path", cfg.Path, "required when state is enabled")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.MaxBodyBytes < 0 {
		v.addError("server.max_body_bytes", cfg.MaxBodyBytes, "must not be negative")
	}
}

// ValidateConfig is a convenience function to validate configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
