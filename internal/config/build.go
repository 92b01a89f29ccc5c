package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

// PolicyConfig builds the domain policy from the policy section.
func (c *Config) PolicyConfig() (core.PolicyConfig, error) {
	p := core.PolicyConfig{
		MinConfidence: c.Policy.MinConfidence,
		NumSamples:    c.Policy.NumSamples,
	}
	for i, rule := range c.Policy.HardReject {
		sev, err := core.ParseSeverity(rule.Severity)
		if err != nil {
			return core.PolicyConfig{}, core.InvalidPolicy(fmt.Sprintf("hard_reject[%d]: %v", i, err))
		}
		p.HardReject = append(p.HardReject, core.HardRejectRule{Category: rule.Category, Severity: sev})
	}
	if len(c.Policy.SeverityOverrides) > 0 {
		p.SeverityOverrides = make(map[string]core.Severity, len(c.Policy.SeverityOverrides))
		for category, raw := range c.Policy.SeverityOverrides {
			sev, err := core.ParseSeverity(raw)
			if err != nil {
				return core.PolicyConfig{}, core.InvalidPolicy(fmt.Sprintf("severity_overrides[%s]: %v", category, err))
			}
			p.SeverityOverrides[category] = sev
		}
	}
	return p, nil
}

// EngineConfig builds the engine configuration: algorithms, weights and the
// built-in extractors minus disabled ones, followed by custom extractors.
func (c *Config) EngineConfig() (service.EngineConfig, error) {
	extractors := service.FilterExtractors(service.DefaultExtractors(), c.Extraction.Disabled)
	for _, custom := range c.Extraction.Custom {
		e, err := custom.build()
		if err != nil {
			return service.EngineConfig{}, core.ErrValidation(core.CodeInvalidConfig, err.Error())
		}
		extractors = append(extractors, e)
	}
	return service.EngineConfig{
		Clustering: c.Clustering.Strategy,
		ScanMode:   c.Clustering.ScanMode,
		Weights: service.SeverityWeights{
			Low:    c.Scoring.Weights.Low,
			Medium: c.Scoring.Weights.Medium,
			High:   c.Scoring.Weights.High,
		},
		Extractors: extractors,
	}, nil
}

// SamplerConfig builds the sampler settings from the generation section.
func (c *Config) SamplerConfig() service.SamplerConfig {
	g := c.Generation
	burst := float64(g.Burst)
	if burst < 1 {
		burst = 1
	}
	return service.SamplerConfig{
		Concurrency: g.Concurrency,
		CallTimeout: g.CallTimeout,
		RateLimit: service.RateLimiterConfig{
			MaxTokens:  burst,
			RefillRate: g.RateLimit,
		},
		Retry: service.NewRetryPolicy(service.WithMaxAttempts(g.MaxRetries + 1)),
	}
}

// OracleRetry builds the retry policy for remote oracle calls.
func (c *Config) OracleRetry() *service.RetryPolicy {
	return service.NewRetryPolicy(
		service.WithMaxAttempts(c.Oracle.MaxRetries+1),
		service.WithBaseDelay(500*time.Millisecond),
	)
}

// Temperature returns the configured sampling temperature.
func (c *Config) Temperature() *float32 {
	t := float32(c.Generation.Temperature)
	return &t
}

// KnownCategories returns the built-in categories plus those of extractors.
func KnownCategories(extractors []core.Extractor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range append(append([]string{}, core.Categories...), service.ExtractorCategories(extractors)...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func builtinExtractorNames() []string {
	defaults := service.DefaultExtractors()
	names := make([]string, len(defaults))
	for i, e := range defaults {
		names[i] = e.Name()
	}
	return names
}

func (c CustomExtractorConfig) build() (*service.PatternExtractor, error) {
	return service.NewPatternExtractor(c.Name, c.Category, c.Patterns...)
}
