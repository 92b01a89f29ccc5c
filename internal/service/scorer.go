package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// SeverityWeights sets how strongly a perfectly even divergence of each
// severity discounts the score.
type SeverityWeights struct {
	Low    float64 `json:"low" yaml:"low" mapstructure:"low"`
	Medium float64 `json:"medium" yaml:"medium" mapstructure:"medium"`
	High   float64 `json:"high" yaml:"high" mapstructure:"high"`
}

// DefaultSeverityWeights returns the default penalty weights.
func DefaultSeverityWeights() SeverityWeights {
	return SeverityWeights{
		Low:    0.08,
		Medium: 0.20,
		High:   0.40,
	}
}

// Validate checks 0 < low <= medium <= high <= 1.
func (w SeverityWeights) Validate() error {
	if !(w.Low > 0 && w.Low <= w.Medium && w.Medium <= w.High && w.High <= 1) {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("severity weights must satisfy 0 < low <= medium <= high <= 1, got low=%v medium=%v high=%v",
				w.Low, w.Medium, w.High))
	}
	return nil
}

// For returns the weight of a severity. Unknown severities weigh as medium.
func (w SeverityWeights) For(s core.Severity) float64 {
	switch s {
	case core.SeverityLow:
		return w.Low
	case core.SeverityHigh:
		return w.High
	default:
		return w.Medium
	}
}

// Scorer reduces clusters and divergences to a confidence score in [0,1].
//
// The base term ranks sets by the size of the dominant cluster and breaks
// ties with the normalized negentropy of the cluster sizes (see Agreement).
// One cluster scores 1, N singletons score 0. Each divergence then multiplies the score by 1 - weight(severity)*evenness,
// where evenness is the normalized entropy of its variant counts, so a 3-vs-2
// split costs more than a 4-vs-1 split.
type Scorer struct {
	weights SeverityWeights
}

// NewScorer creates a scorer with validated weights.
func NewScorer(weights SeverityWeights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights}, nil
}

// Weights returns the configured severity weights.
func (s *Scorer) Weights() SeverityWeights {
	return s.weights
}

// Score computes the confidence for n generations.
func (s *Scorer) Score(clusters []core.Cluster, divergences []core.DivergencePoint, n int) (float64, error) {
	if n <= 0 {
		return 0, core.InsufficientSamples(n, 1)
	}
	sizes := core.ClusterSizes(clusters)
	total := 0
	for _, size := range sizes {
		if size <= 0 {
			return 0, &core.DomainError{
				Category: core.ErrCatInternal,
				Code:     core.CodeInvalidClustering,
				Message:  "empty cluster",
			}
		}
		total += size
	}
	if total != n {
		return 0, &core.DomainError{
			Category: core.ErrCatInternal,
			Code:     core.CodeInvalidClustering,
			Message:  fmt.Sprintf("cluster sizes sum to %d, want %d", total, n),
		}
	}

	score := Agreement(sizes, n)
	for _, d := range divergences {
		score *= 1 - s.weights.For(d.Severity)*Evenness(variantCounts(d))
	}
	return clampScore(score), nil
}

// Agreement maps cluster sizes to [0,1]. With m the largest cluster it is
//
//	(m - 1 + t) / (N - 1)
//
// where t is the normalized negentropy 1 - H(p)/ln(N) of the sizes, and
// t < 1 whenever there are two or more clusters. The result therefore lies in
// [(m-1)/(N-1), m/(N-1)): it strictly increases with m for fixed N, and among
// sets with the same m the more concentrated remainder scores higher.
func Agreement(sizes []int, n int) float64 {
	if n <= 1 || len(sizes) <= 1 {
		return 1
	}
	largest := 0
	for _, size := range sizes {
		largest = max(largest, size)
	}
	negentropy := 1 - entropy(sizes, n)/math.Log(float64(n))
	return (float64(largest-1) + negentropy) / float64(n-1)
}

// Evenness is the entropy of counts normalized by its maximum, ln(k). It is 0
// for fewer than two counts and 1 for a perfectly even split.
func Evenness(counts []int) float64 {
	k := 0
	total := 0
	for _, c := range counts {
		if c > 0 {
			k++
			total += c
		}
	}
	if k < 2 {
		return 0
	}
	return entropy(counts, total) / math.Log(float64(k))
}

// entropy returns -sum(p ln p) for counts/total, in the order given.
func entropy(counts []int, total int) float64 {
	h := 0.0
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log(p)
	}
	return h
}

// variantCounts returns counts in a fixed order so float summation does not
// depend on map iteration.
func variantCounts(d core.DivergencePoint) []int {
	counts := make([]int, 0, len(d.Variants))
	for _, c := range d.Variants {
		counts = append(counts, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))
	return counts
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return math.Round(v*1e9) / 1e9
}
