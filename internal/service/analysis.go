package service

import (
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// Recommendation tiers.
const (
	RecommendHigh           = "HIGH CONFIDENCE - Output appears reliable"
	RecommendMediumFlagged  = "MEDIUM CONFIDENCE - Review flagged issues before use"
	RecommendMedium         = "MEDIUM CONFIDENCE - Acceptable with review"
	RecommendLow            = "LOW CONFIDENCE - Manual review required, significant uncertainty"
	RecommendVeryLow        = "VERY LOW CONFIDENCE - Do not use, highly unreliable output"
	significantDiffLines    = 5
	defaultUnifiedDiffLines = 3
)

// Evaluation is the full result of one gate evaluation: the decision plus the
// analysis shown to humans.
type Evaluation struct {
	ID             string            `json:"id,omitempty"`
	Prompt         string            `json:"prompt"`
	Model          string            `json:"model,omitempty"`
	Decision       core.Decision     `json:"decision"`
	Clusters       []core.Cluster    `json:"clusters"`
	Warnings       []string          `json:"warnings,omitempty"`
	Recommendation string            `json:"recommendation"`
	Consensus      []string          `json:"consensus_parts"`
	PairDiffs      []PairDiff        `json:"divergent_pairs"`
	Generations    []core.Generation `json:"generations,omitempty"`
	NumGenerations int               `json:"num_generations"`
	Oracle         string            `json:"oracle"`
	CreatedAt      time.Time         `json:"created_at,omitempty"`
	Duration       time.Duration     `json:"duration_ns,omitempty"`
}

// Record converts the evaluation into its persisted form.
func (e *Evaluation) Record() core.ReportRecord {
	return core.ReportRecord{
		ID:             e.ID,
		Prompt:         e.Prompt,
		Model:          e.Model,
		NumGenerations: e.NumGenerations,
		Decision:       e.Decision,
		Recommendation: e.Recommendation,
		Warnings:       e.Warnings,
		CreatedAt:      e.CreatedAt,
	}
}

// PairDiff describes how much two generations differ textually.
type PairDiff struct {
	A          int     `json:"a"`
	B          int     `json:"b"`
	DiffLines  int     `json:"diff_lines"`
	Similarity float64 `json:"similarity"`
}

// Recommend maps a score to a human-readable recommendation tier.
func Recommend(score float64, divergences []core.DivergencePoint) string {
	switch {
	case score >= 0.8:
		return RecommendHigh
	case score >= 0.6:
		for _, d := range divergences {
			if d.Severity == core.SeverityHigh {
				return RecommendMediumFlagged
			}
		}
		return RecommendMedium
	case score >= 0.4:
		return RecommendLow
	default:
		return RecommendVeryLow
	}
}

// ConsensusLines returns the non-blank lines present in every generation, in
// the order they appear in the first one.
func ConsensusLines(set core.GenerationSet) []string {
	out := make([]string, 0)
	if set.Len() == 0 {
		return out
	}

	common := lineSet(set.Items[0].Text)
	for _, g := range set.Items[1:] {
		other := lineSet(g.Text)
		for line := range common {
			if !other[line] {
				delete(common, line)
			}
		}
	}

	for _, line := range strings.Split(set.Items[0].Text, "\n") {
		key := strings.TrimSpace(line)
		if common[key] {
			out = append(out, key)
			delete(common, key)
		}
	}
	return out
}

func lineSet(text string) map[string]bool {
	lines := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		if key := strings.TrimSpace(line); key != "" {
			lines[key] = true
		}
	}
	return lines
}

// PairwiseDiffs compares every pair of generations and keeps the pairs whose
// unified diff exceeds five lines. Pairs are ordered by index.
func PairwiseDiffs(set core.GenerationSet) []PairDiff {
	out := make([]PairDiff, 0)
	for i := 0; i < set.Len(); i++ {
		for j := i + 1; j < set.Len(); j++ {
			a, b := set.Items[i], set.Items[j]
			lines := diffLineCount(a.Text, b.Text)
			if lines <= significantDiffLines {
				continue
			}
			out = append(out, PairDiff{
				A:          a.Index,
				B:          b.Index,
				DiffLines:  lines,
				Similarity: TextSimilarity(a.Text, b.Text),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// diffLineCount counts unified diff lines, file headers included.
func diffLineCount(a, b string) int {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "a",
		ToFile:   "b",
		Context:  defaultUnifiedDiffLines,
	})
	if err != nil || diff == "" {
		return 0
	}
	return strings.Count(diff, "\n")
}

// UnifiedDiff renders a labelled unified diff between two generations.
func UnifiedDiff(a, b core.Generation) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a.Text),
		B:        difflib.SplitLines(b.Text),
		FromFile: a.Label(),
		ToFile:   b.Label(),
		Context:  defaultUnifiedDiffLines,
	})
	if err != nil {
		return ""
	}
	return diff
}

// TextSimilarity is the character-level matching ratio of two texts in [0,1].
func TextSimilarity(a, b string) float64 {
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
