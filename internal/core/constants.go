// Package core provides the domain model of the stability gate: generation sets,
// clusters, divergences, policies and decisions, plus the ports the engine
// consumes. All packages should import from here to ensure consistency.
package core

// Divergence categories known to the gate.
const (
	CategorySecurityParameter = "security-parameter"
	CategoryAlgorithmChoice   = "algorithm-choice"
	CategoryEdgeCase          = "edge-case"
	CategoryConfigParameter   = "configuration-parameter"
	CategoryStyle             = "style"
	CategoryStructure         = "structure"

	// CategoryAny matches every category in a hard-reject rule.
	CategoryAny = "*"
)

// DefaultCategorySeverity maps each built-in category to its default severity.
// Security-relevant categories are HIGH, stylistic ones LOW.
var DefaultCategorySeverity = map[string]Severity{
	CategorySecurityParameter: SeverityHigh,
	CategoryAlgorithmChoice:   SeverityMedium,
	CategoryEdgeCase:          SeverityMedium,
	CategoryConfigParameter:   SeverityMedium,
	CategoryStyle:             SeverityLow,
	CategoryStructure:         SeverityHigh,
}

// Categories is the ordered list of built-in categories.
var Categories = []string{
	CategorySecurityParameter,
	CategoryAlgorithmChoice,
	CategoryEdgeCase,
	CategoryConfigParameter,
	CategoryStyle,
	CategoryStructure,
}

// Clustering strategies.
const (
	ClusterGreedy     = "greedy"
	ClusterComponents = "components"
)

// Similarity oracle identifiers.
const (
	OracleExact     = "exact"
	OracleKeyword   = "keyword"
	OracleEmbedding = "embedding"
)

// Policy and sampling defaults.
const (
	DefaultMinConfidence = 0.6
	DefaultNumSamples    = 5
	MinSampleRequest     = 2
	MaxSampleRequest     = 10
)

// Generation provider identifiers.
const (
	ProviderOpenAI = "openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"
