package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// DefaultKeywordThreshold is the Jaccard index at or above which two
// generations share enough vocabulary to be treated as equivalent.
const DefaultKeywordThreshold = 0.75

// DefaultEmbeddingThreshold is the cosine similarity at or above which two
// embeddings are treated as equivalent.
const DefaultEmbeddingThreshold = 0.92

// ExactOracle treats generations as equivalent when their normalized text is
// identical. Normalization only unifies line endings and trailing whitespace.
type ExactOracle struct{}

// NewExactOracle creates an exact-match oracle.
func NewExactOracle() *ExactOracle {
	return &ExactOracle{}
}

// Name implements core.SimilarityOracle.
func (o *ExactOracle) Name() string { return core.OracleExact }

// Equivalent implements core.SimilarityOracle.
func (o *ExactOracle) Equivalent(_ context.Context, a, b string) (bool, error) {
	return normalizeWhitespace(a) == normalizeWhitespace(b), nil
}

func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// KeywordOracle compares the keyword sets of two generations with the
// Jaccard index.
type KeywordOracle struct {
	threshold float64
}

// NewKeywordOracle creates a keyword-overlap oracle. A non-positive threshold
// selects DefaultKeywordThreshold.
func NewKeywordOracle(threshold float64) *KeywordOracle {
	if threshold <= 0 {
		threshold = DefaultKeywordThreshold
	}
	return &KeywordOracle{threshold: threshold}
}

// Name implements core.SimilarityOracle.
func (o *KeywordOracle) Name() string { return core.OracleKeyword }

// Threshold implements core.GradedOracle.
func (o *KeywordOracle) Threshold() float64 { return o.threshold }

// Similarity implements core.GradedOracle.
func (o *KeywordOracle) Similarity(_ context.Context, a, b string) (float64, error) {
	return JaccardSimilarity(Keywords(a), Keywords(b)), nil
}

// Equivalent implements core.SimilarityOracle.
func (o *KeywordOracle) Equivalent(ctx context.Context, a, b string) (bool, error) {
	score, err := o.Similarity(ctx, a, b)
	if err != nil {
		return false, err
	}
	return score >= o.threshold, nil
}

// JaccardSimilarity calculates Jaccard index: |A ∩ B| / |A ∪ B|
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0 // Both empty = perfect agreement
	}

	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for item := range setA {
		if setB[item] {
			intersection++
		}
	}

	union := len(setA)
	for item := range setB {
		if !setA[item] {
			union++
		}
	}

	if union == 0 {
		return 1.0
	}

	return float64(intersection) / float64(union)
}

// Keywords returns the distinct content words of a generation.
func Keywords(text string) []string {
	words := strings.Fields(NormalizeText(text))
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// NormalizeText lowercases text and collapses punctuation into single spaces.
func NormalizeText(text string) string {
	text = strings.ToLower(text)

	var builder strings.Builder
	prevSpace := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' {
			builder.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			builder.WriteRune(' ')
			prevSpace = true
		}
	}

	return strings.TrimSpace(builder.String())
}

func toSet(items []string) map[string]bool {
	result := make(map[string]bool, len(items))
	for _, item := range items {
		result[item] = true
	}
	return result
}

var stopwords = toSet([]string{
	"the", "and", "for", "with", "that", "this", "are", "was", "you", "your",
	"from", "have", "has", "but", "not", "can", "will", "its", "into", "then",
	"than", "also", "here", "there", "which", "when", "where", "what", "use",
	"uses", "used", "using", "our", "all", "any", "each", "let", "should",
})

// Embedder turns texts into dense vectors.
type Embedder interface {
	// Name identifies the backend.
	Name() string

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingOracle compares generations by cosine similarity of their embeddings.
// Backend failures surface as OracleUnavailable; there is no fallback.
type EmbeddingOracle struct {
	embedder  Embedder
	threshold float64
	retry     *RetryPolicy

	mu       sync.Mutex
	cache    map[string][]float32
	maxCache int
}

// EmbeddingOracleOption configures an EmbeddingOracle.
type EmbeddingOracleOption func(*EmbeddingOracle)

// WithEmbeddingRetry sets the retry policy applied to embedding calls.
func WithEmbeddingRetry(p *RetryPolicy) EmbeddingOracleOption {
	return func(o *EmbeddingOracle) {
		o.retry = p
	}
}

// WithEmbeddingCacheSize bounds the number of cached vectors.
func WithEmbeddingCacheSize(n int) EmbeddingOracleOption {
	return func(o *EmbeddingOracle) {
		o.maxCache = n
	}
}

// NewEmbeddingOracle creates an oracle backed by an embedder. A non-positive
// threshold selects DefaultEmbeddingThreshold.
func NewEmbeddingOracle(embedder Embedder, threshold float64, opts ...EmbeddingOracleOption) *EmbeddingOracle {
	if threshold <= 0 {
		threshold = DefaultEmbeddingThreshold
	}
	o := &EmbeddingOracle{
		embedder:  embedder,
		threshold: threshold,
		retry:     NewRetryPolicy(WithMaxAttempts(1)),
		cache:     make(map[string][]float32),
		maxCache:  1024,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name implements core.SimilarityOracle.
func (o *EmbeddingOracle) Name() string {
	return core.OracleEmbedding + ":" + o.embedder.Name()
}

// Threshold implements core.GradedOracle.
func (o *EmbeddingOracle) Threshold() float64 { return o.threshold }

// Prepare embeds all texts in one batch so later comparisons hit the cache.
func (o *EmbeddingOracle) Prepare(ctx context.Context, texts []string) error {
	_, err := o.vectors(ctx, texts)
	return err
}

// Similarity implements core.GradedOracle.
func (o *EmbeddingOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	vecs, err := o.vectors(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(vecs[0], vecs[1]), nil
}

// Equivalent implements core.SimilarityOracle.
func (o *EmbeddingOracle) Equivalent(ctx context.Context, a, b string) (bool, error) {
	score, err := o.Similarity(ctx, a, b)
	if err != nil {
		return false, err
	}
	return score >= o.threshold, nil
}

func (o *EmbeddingOracle) vectors(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	missingSeen := make(map[string]bool)

	o.mu.Lock()
	for i, t := range texts {
		if v, ok := o.cache[t]; ok {
			out[i] = v
		} else if !missingSeen[t] {
			missingSeen[t] = true
			missing = append(missing, t)
		}
	}
	o.mu.Unlock()

	if len(missing) > 0 {
		var fetched [][]float32
		err := o.retry.Execute(ctx, func(ctx context.Context) error {
			var embedErr error
			fetched, embedErr = o.embedder.Embed(ctx, missing)
			return embedErr
		})
		if err != nil {
			return nil, core.OracleUnavailable(o.Name(), err)
		}
		if len(fetched) != len(missing) {
			return nil, core.OracleUnavailable(o.Name(),
				fmt.Errorf("embedder returned %d vectors for %d texts", len(fetched), len(missing)))
		}

		o.mu.Lock()
		if len(o.cache)+len(missing) > o.maxCache {
			o.cache = make(map[string][]float32)
		}
		for i, t := range missing {
			o.cache[t] = fetched[i]
		}
		for i, t := range texts {
			if out[i] == nil {
				out[i] = o.cache[t]
			}
		}
		o.mu.Unlock()
	}
	return out, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either is empty, zero, or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
