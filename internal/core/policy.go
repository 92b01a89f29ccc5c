package core

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// HardRejectRule rejects a generation set whenever a divergence of the given
// category reaches the given severity, regardless of the confidence score.
type HardRejectRule struct {
	Category string   `json:"category" yaml:"category" mapstructure:"category"`
	Severity Severity `json:"severity" yaml:"severity" mapstructure:"severity"`
}

// Matches reports whether the rule fires for a divergence.
func (r HardRejectRule) Matches(d DivergencePoint) bool {
	if r.Category != CategoryAny && r.Category != d.Category {
		return false
	}
	return d.Severity >= r.Severity
}

// String renders the rule for reasons and logs.
func (r HardRejectRule) String() string {
	return fmt.Sprintf("category %q at severity %s", r.Category, r.Severity)
}

// PolicyConfig holds the admission policy applied to one evaluation.
type PolicyConfig struct {
	// MinConfidence is the inclusive acceptance threshold in [0,1].
	MinConfidence float64 `json:"min_confidence"`
	// NumSamples is the number of generations the caller expected. Sets with
	// fewer usable generations fail with InsufficientSamples. Zero disables the check.
	NumSamples int `json:"num_samples"`
	// HardReject lists category/severity rules that reject regardless of score.
	HardReject []HardRejectRule `json:"hard_reject,omitempty"`
	// SeverityOverrides replaces the default severity of a category.
	SeverityOverrides map[string]Severity `json:"severity_overrides,omitempty"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		MinConfidence: DefaultMinConfidence,
		NumSamples:    DefaultNumSamples,
	}
}

// Validate checks the policy against the categories the configured extractors
// can emit. It fails with InvalidPolicyConfig.
func (p PolicyConfig) Validate(knownCategories []string) error {
	if math.IsNaN(p.MinConfidence) || p.MinConfidence < 0 || p.MinConfidence > 1 {
		return InvalidPolicy(fmt.Sprintf("min_confidence %v outside [0,1]", p.MinConfidence)).
			WithDetail("field", "min_confidence")
	}
	if p.NumSamples < 0 {
		return InvalidPolicy(fmt.Sprintf("num_samples %d must not be negative", p.NumSamples)).
			WithDetail("field", "num_samples")
	}

	known := make(map[string]bool, len(knownCategories))
	for _, c := range knownCategories {
		known[c] = true
	}

	for i, rule := range p.HardReject {
		if !rule.Severity.Valid() {
			return InvalidPolicy(fmt.Sprintf("hard_reject[%d]: invalid severity %d", i, int(rule.Severity))).
				WithDetail("field", fmt.Sprintf("hard_reject[%d].severity", i))
		}
		if rule.Category == CategoryAny {
			continue
		}
		if !known[rule.Category] {
			return InvalidPolicy(unknownCategoryMessage(fmt.Sprintf("hard_reject[%d]", i), rule.Category, knownCategories)).
				WithDetail("field", fmt.Sprintf("hard_reject[%d].category", i))
		}
	}

	overrides := make([]string, 0, len(p.SeverityOverrides))
	for c := range p.SeverityOverrides {
		overrides = append(overrides, c)
	}
	sort.Strings(overrides)
	for _, c := range overrides {
		if !known[c] {
			return InvalidPolicy(unknownCategoryMessage("severity_overrides", c, knownCategories)).
				WithDetail("field", "severity_overrides."+c)
		}
		if !p.SeverityOverrides[c].Valid() {
			return InvalidPolicy(fmt.Sprintf("severity_overrides: invalid severity for %q", c)).
				WithDetail("field", "severity_overrides."+c)
		}
	}
	return nil
}

// Clone returns a copy that shares no slice or map with p.
func (p PolicyConfig) Clone() PolicyConfig {
	p.HardReject = slices.Clone(p.HardReject)
	p.SeverityOverrides = maps.Clone(p.SeverityOverrides)
	return p
}

// SeverityFor resolves the severity of a category under this policy.
func (p PolicyConfig) SeverityFor(category string) Severity {
	if s, ok := p.SeverityOverrides[category]; ok {
		return s
	}
	if s, ok := DefaultCategorySeverity[category]; ok {
		return s
	}
	return SeverityMedium
}

// MatchingRule returns the first hard-reject rule firing for any divergence.
func (p PolicyConfig) MatchingRule(divergences []DivergencePoint) (HardRejectRule, DivergencePoint, bool) {
	for _, rule := range p.HardReject {
		for _, d := range divergences {
			if rule.Matches(d) {
				return rule, d, true
			}
		}
	}
	return HardRejectRule{}, DivergencePoint{}, false
}

func unknownCategoryMessage(field, category string, known []string) string {
	msg := fmt.Sprintf("%s: unknown category %q", field, category)
	if matches := fuzzy.Find(category, known); len(matches) > 0 {
		return fmt.Sprintf("%s (did you mean %q?)", msg, matches[0].Str)
	}
	if len(known) > 0 {
		msg += " (known: " + strings.Join(known, ", ") + ")"
	}
	return msg
}
