package service

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

func TestRecommend(t *testing.T) {
	t.Parallel()
	high := []core.DivergencePoint{{Category: core.CategorySecurityParameter, Severity: core.SeverityHigh}}
	medium := []core.DivergencePoint{{Category: core.CategoryEdgeCase, Severity: core.SeverityMedium}}

	tests := []struct {
		score float64
		divs  []core.DivergencePoint
		want  string
	}{
		{1, nil, RecommendHigh},
		{0.8, high, RecommendHigh},
		{0.7, high, RecommendMediumFlagged},
		{0.7, medium, RecommendMedium},
		{0.6, nil, RecommendMedium},
		{0.59, high, RecommendLow},
		{0.4, nil, RecommendLow},
		{0.39, nil, RecommendVeryLow},
		{0, nil, RecommendVeryLow},
	}
	for _, tt := range tests {
		if got := Recommend(tt.score, tt.divs); got != tt.want {
			t.Errorf("Recommend(%v, %d divs) = %q, want %q", tt.score, len(tt.divs), got, tt.want)
		}
	}
}

func TestConsensusLines(t *testing.T) {
	t.Parallel()
	set := core.NewGenerationSet("p", []string{
		"import jwt\n\nexp = 1h\nreturn token\nimport jwt",
		"return token\nimport jwt\nexp = 24h",
		"  import jwt  \nreturn token\n",
	})
	got := ConsensusLines(set)
	want := []string{"import jwt", "return token"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConsensusLines() = %q, want %q", got, want)
	}

	if got := ConsensusLines(core.GenerationSet{}); got == nil || len(got) != 0 {
		t.Errorf("empty set = %v, want empty non-nil slice", got)
	}
}

func TestPairwiseDiffs(t *testing.T) {
	t.Parallel()
	digits := "1\n2\n3\n4\n5\n6"
	letters := "a\nb\nc\nd\ne\nf"
	set := core.NewGenerationSet("p", []string{digits, letters, digits})

	diffs := PairwiseDiffs(set)
	if len(diffs) != 2 {
		t.Fatalf("PairwiseDiffs() = %+v, want 2 pairs", diffs)
	}
	if diffs[0].A != 0 || diffs[0].B != 1 || diffs[1].A != 1 || diffs[1].B != 2 {
		t.Errorf("pairs = %+v, want (0,1) and (1,2)", diffs)
	}
	for _, d := range diffs {
		if d.DiffLines <= significantDiffLines {
			t.Errorf("pair %d-%d has %d diff lines", d.A, d.B, d.DiffLines)
		}
		if d.Similarity < 0 || d.Similarity >= 1 {
			t.Errorf("pair %d-%d similarity = %v", d.A, d.B, d.Similarity)
		}
	}
}

func TestPairwiseDiffs_SmallChangesIgnored(t *testing.T) {
	t.Parallel()
	set := core.NewGenerationSet("p", []string{"use bcrypt", "use scrypt"})
	if diffs := PairwiseDiffs(set); len(diffs) != 0 {
		t.Errorf("one-line change should not be significant, got %+v", diffs)
	}
}

func TestUnifiedDiff(t *testing.T) {
	t.Parallel()
	a := core.Generation{Index: 0, Text: "exp = 1h\nalg = HS256\n"}
	b := core.Generation{Index: 2, Text: "exp = 24h\nalg = HS256\n"}

	diff := UnifiedDiff(a, b)
	for _, want := range []string{"--- solution #1", "+++ solution #3", "-exp = 1h", "+exp = 24h", " alg = HS256"} {
		if !strings.Contains(diff, want) {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}
	if UnifiedDiff(a, a) != "" {
		t.Error("identical generations should produce an empty diff")
	}
}

func TestTextSimilarity(t *testing.T) {
	t.Parallel()
	if got := TextSimilarity("abc", "abc"); got != 1 {
		t.Errorf("identical = %v, want 1", got)
	}
	if got := TextSimilarity("abc", "xyz"); got != 0 {
		t.Errorf("disjoint = %v, want 0", got)
	}
	if got := TextSimilarity("abcd", "abce"); got != 0.75 {
		t.Errorf("one char changed = %v, want 0.75", got)
	}
}

func TestEvaluation_Record(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	eval := &Evaluation{
		ID:             "abc",
		Prompt:         "p",
		Model:          "gpt-4o-mini",
		Decision:       core.Decision{Passed: true, ConfidenceScore: 0.9, Divergences: []core.DivergencePoint{}},
		Recommendation: RecommendHigh,
		Warnings:       []string{"w"},
		NumGenerations: 5,
		CreatedAt:      created,
	}
	rec := eval.Record()
	want := core.ReportRecord{
		ID:             "abc",
		Prompt:         "p",
		Model:          "gpt-4o-mini",
		NumGenerations: 5,
		Decision:       eval.Decision,
		Recommendation: RecommendHigh,
		Warnings:       []string{"w"},
		CreatedAt:      created,
	}
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("Record() = %+v, want %+v", rec, want)
	}
}
