package core

import (
	"context"
	"time"
)

// =============================================================================
// Similarity Oracle Port
// =============================================================================

// SimilarityOracle decides whether two generations are semantically equivalent.
// Remote implementations must honor ctx and fail with OracleUnavailable rather
// than block or silently degrade.
type SimilarityOracle interface {
	// Name identifies the oracle in logs and errors.
	Name() string

	// Equivalent reports whether a and b belong in the same cluster.
	Equivalent(ctx context.Context, a, b string) (bool, error)
}

// GradedOracle is an oracle that can also report a similarity score in [0,1].
type GradedOracle interface {
	SimilarityOracle

	// Similarity returns the graded similarity between a and b.
	Similarity(ctx context.Context, a, b string) (float64, error)

	// Threshold returns the score at or above which texts are equivalent.
	Threshold() float64
}

// =============================================================================
// Category Extractor Port
// =============================================================================

// Extractor classifies one aspect of a generation. Classify must be pure and
// total: it never panics and returns ok=false when the text says nothing about
// the aspect.
type Extractor interface {
	// Name identifies the aspect, e.g. "token_expiration".
	Name() string

	// Category is the divergence category the aspect belongs to.
	Category() string

	// Classify returns the variant value the text commits to.
	Classify(text string) (variant string, ok bool)
}

// =============================================================================
// Generation Provider Port
// =============================================================================

// GenerateOptions configures a single generation call.
type GenerateOptions struct {
	Model        string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
	Timeout      time.Duration
}

// GenerationProvider produces candidate outputs for a prompt.
type GenerationProvider interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Generate returns one completion for the prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// =============================================================================
// Report Store Port
// =============================================================================

// ReportRecord is a persisted evaluation outcome.
type ReportRecord struct {
	ID             string    `json:"id"`
	Prompt         string    `json:"prompt"`
	Model          string    `json:"model,omitempty"`
	NumGenerations int       `json:"num_generations"`
	Decision       Decision  `json:"decision"`
	Recommendation string    `json:"recommendation,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	// Passed filters by outcome when non-nil.
	Passed *bool
	Limit  int
}

// ReportStore persists evaluation reports for later inspection.
type ReportStore interface {
	// Save persists a report.
	Save(ctx context.Context, record *ReportRecord) error

	// Get loads a report by ID.
	Get(ctx context.Context, id string) (*ReportRecord, error)

	// List returns reports, newest first.
	List(ctx context.Context, filter ReportFilter) ([]*ReportRecord, error)

	// Close releases resources.
	Close() error
}
