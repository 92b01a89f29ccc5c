package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// clustersOf builds clusters with consecutive member indexes.
func clustersOf(sizes ...int) []core.Cluster {
	out := make([]core.Cluster, 0, len(sizes))
	next := 0
	for _, size := range sizes {
		c := core.Cluster{RepresentativeIndex: next}
		for i := 0; i < size; i++ {
			c.Members = append(c.Members, next)
			next++
		}
		out = append(out, c)
	}
	return out
}

func split(sev core.Severity, counts ...int) core.DivergencePoint {
	variants := make(map[string]int, len(counts))
	for i, c := range counts {
		variants[string(rune('a'+i))] = c
	}
	return core.DivergencePoint{Category: core.CategoryEdgeCase, Severity: sev, Variants: variants}
}

func defaultScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultSeverityWeights())
	require.NoError(t, err)
	return s
}

func TestSeverityWeights_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		weights SeverityWeights
		wantErr bool
	}{
		{"defaults", DefaultSeverityWeights(), false},
		{"all equal", SeverityWeights{Low: 0.5, Medium: 0.5, High: 0.5}, false},
		{"full penalty", SeverityWeights{Low: 0.1, Medium: 0.5, High: 1}, false},
		{"zero low", SeverityWeights{Low: 0, Medium: 0.2, High: 0.4}, true},
		{"low above medium", SeverityWeights{Low: 0.3, Medium: 0.2, High: 0.4}, true},
		{"medium above high", SeverityWeights{Low: 0.1, Medium: 0.5, High: 0.4}, true},
		{"high above one", SeverityWeights{Low: 0.1, Medium: 0.2, High: 1.5}, true},
		{"NaN", SeverityWeights{Low: math.NaN(), Medium: 0.2, High: 0.4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				_, scorerErr := NewScorer(tt.weights)
				assert.Error(t, scorerErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSeverityWeights_For(t *testing.T) {
	t.Parallel()
	w := DefaultSeverityWeights()
	assert.Equal(t, 0.08, w.For(core.SeverityLow))
	assert.Equal(t, 0.20, w.For(core.SeverityMedium))
	assert.Equal(t, 0.40, w.For(core.SeverityHigh))
	assert.Equal(t, 0.20, w.For(core.Severity(0)))
}

func TestScorer_Bounds(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)

	score, err := s.Score(clustersOf(1), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "a single generation is trivially consistent")

	score, err = s.Score(clustersOf(5), nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "one cluster without divergences")

	score, err = s.Score(clustersOf(1, 1, 1, 1, 1), nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "all singletons")
}

func TestScorer_OneClusterWithDivergenceIsBelowOne(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)
	score, err := s.Score(clustersOf(5), []core.DivergencePoint{split(core.SeverityLow, 4, 1)}, 5)
	require.NoError(t, err)
	assert.Less(t, score, 1.0)
	assert.Greater(t, score, 0.9)
}

func TestScorer_TokenExpirationSplit(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)

	even, err := s.Score(clustersOf(5), []core.DivergencePoint{split(core.SeverityHigh, 3, 2)}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.6116, even, 1e-4)

	skewed, err := s.Score(clustersOf(5), []core.DivergencePoint{split(core.SeverityHigh, 4, 1)}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.7112, skewed, 1e-4)

	assert.Less(t, even, skewed, "an even split costs more than a lopsided one")
}

func TestScorer_SeverityMonotonic(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)
	clusters := clustersOf(3, 2)

	scores := make([]float64, 0, len(core.Severities))
	for _, sev := range core.Severities {
		score, err := s.Score(clusters, []core.DivergencePoint{split(sev, 3, 2)}, 5)
		require.NoError(t, err)
		scores = append(scores, score)
	}
	assert.Greater(t, scores[0], scores[1], "low vs medium")
	assert.Greater(t, scores[1], scores[2], "medium vs high")
}

func TestScorer_MoreDivergencesNeverRaise(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)
	clusters := clustersOf(4, 1)

	divs := []core.DivergencePoint{}
	prev, err := s.Score(clusters, divs, 5)
	require.NoError(t, err)
	for _, sev := range []core.Severity{core.SeverityLow, core.SeverityHigh, core.SeverityMedium} {
		divs = append(divs, split(sev, 4, 1))
		score, err := s.Score(clusters, divs, 5)
		require.NoError(t, err)
		assert.Less(t, score, prev)
		prev = score
	}
}

func TestScorer_RefinementNeverRaises(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)
	partitions := [][]int{
		{5},
		{4, 1},
		{3, 1, 1},
		{2, 1, 1, 1},
		{1, 1, 1, 1, 1},
	}
	prev := 2.0
	for _, sizes := range partitions {
		score, err := s.Score(clustersOf(sizes...), nil, 5)
		require.NoError(t, err)
		assert.LessOrEqual(t, score, prev, "sizes %v", sizes)
		assert.GreaterOrEqual(t, score, 0.0)
		prev = score
	}
}

func TestScorer_Deterministic(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)
	divs := []core.DivergencePoint{split(core.SeverityMedium, 3, 1, 2, 1, 1), split(core.SeverityLow, 5, 3)}

	first, err := s.Score(clustersOf(4, 3, 1), divs, 8)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		score, err := s.Score(clustersOf(4, 3, 1), divs, 8)
		require.NoError(t, err)
		require.Equal(t, first, score)
	}
}

func TestScorer_Errors(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)

	_, err := s.Score(nil, nil, 0)
	assert.True(t, core.IsInsufficientSamples(err))

	_, err = s.Score(clustersOf(2, 2), nil, 5)
	assert.Equal(t, core.CodeInvalidClustering, core.GetCode(err))

	_, err = s.Score([]core.Cluster{{}, {Members: []int{0}}}, nil, 1)
	assert.Equal(t, core.CodeInvalidClustering, core.GetCode(err))
}

func TestEvenness(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Evenness(nil))
	assert.Equal(t, 0.0, Evenness([]int{5}))
	assert.Equal(t, 0.0, Evenness([]int{0, 3}))
	assert.InDelta(t, 1.0, Evenness([]int{2, 2}), 1e-12)
	assert.InDelta(t, 1.0, Evenness([]int{1, 1, 1}), 1e-12)
	assert.InDelta(t, 0.971, Evenness([]int{3, 2}), 1e-3)
	assert.InDelta(t, 0.722, Evenness([]int{4, 1}), 1e-3)
}

func TestAgreement(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, Agreement([]int{1}, 1))
	assert.Equal(t, 1.0, Agreement([]int{7}, 7))
	assert.InDelta(t, 0.0, Agreement([]int{1, 1, 1}, 3), 1e-12)
	assert.InDelta(t, 0.6455, Agreement([]int{3, 2}, 5), 1e-4)
}

func TestAgreement_DominantClusterOrders(t *testing.T) {
	t.Parallel()
	s := defaultScorer(t)

	// N=10: a larger dominant cluster always scores higher, however the
	// remainder is split.
	partitions := [][]int{
		{5, 5},
		{6, 1, 1, 1, 1},
		{8, 1, 1},
		{9, 1},
		{10},
	}
	prev := -1.0
	for _, sizes := range partitions {
		score, err := s.Score(clustersOf(sizes...), nil, 10)
		require.NoError(t, err)
		assert.Greater(t, score, prev, "sizes %v", sizes)
		prev = score
	}

	split55, err := s.Score(clustersOf(5, 5), nil, 10)
	require.NoError(t, err)
	skewed, err := s.Score(clustersOf(6, 1, 1, 1, 1), nil, 10)
	require.NoError(t, err)
	assert.Less(t, split55, skewed)
}

func TestAgreement_TieBreakWithinDominantSize(t *testing.T) {
	t.Parallel()
	// Same dominant cluster; the more fragmented remainder scores lower but
	// never drops into the band of a smaller dominant cluster.
	concentrated := Agreement([]int{3, 2}, 5)
	fragmented := Agreement([]int{3, 1, 1}, 5)
	assert.Greater(t, concentrated, fragmented)
	assert.GreaterOrEqual(t, fragmented, 0.5, "m=3 of 5 is at least (3-1)/(5-1)")
	assert.Less(t, concentrated, 0.75, "m=3 of 5 is below 3/(5-1)")
}
