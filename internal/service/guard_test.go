package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/testutil"
)

type guardFixture struct {
	guard    *service.Guard
	provider *testutil.MockProvider
	store    *testutil.MockReportStore
}

func newGuard(t *testing.T, oracle core.SimilarityOracle, provider *testutil.MockProvider, policy core.PolicyConfig) guardFixture {
	t.Helper()
	engine, err := service.NewEngine(service.DefaultEngineConfig(), oracle)
	require.NoError(t, err)
	store := testutil.NewMockReportStore()
	sampler := service.NewSampler(provider, sequentialConfig(), nil)
	return guardFixture{
		guard:    service.NewGuard(engine, policy, service.WithStore(store), service.WithSampler(sampler)),
		provider: provider,
		store:    store,
	}
}

func TestGuard_ReviewAccepted(t *testing.T) {
	t.Parallel()
	provider := testutil.NewMockProvider("mock").WithResponses(testutil.JWTSolution("1h"))
	f := newGuard(t, service.NewExactOracle(), provider, core.DefaultPolicy())

	before := time.Now().UTC()
	eval, err := f.guard.Review(context.Background(), testutil.TokenExpirationPrompt, service.ReviewOptions{})
	require.NoError(t, err)

	assert.True(t, eval.Decision.Passed)
	assert.Equal(t, 1.0, eval.Decision.ConfidenceScore)
	assert.Equal(t, core.DefaultNumSamples, provider.CallCount("Generate"))
	assert.Equal(t, core.DefaultModel, eval.Model)
	assert.Empty(t, eval.Warnings)
	_, err = uuid.Parse(eval.ID)
	assert.NoError(t, err, "evaluations get a UUID")
	assert.False(t, eval.CreatedAt.Before(before.Truncate(time.Second)))
	assert.Equal(t, time.UTC, eval.CreatedAt.Location())

	rec, err := f.store.Get(context.Background(), eval.ID)
	require.NoError(t, err)
	assert.Equal(t, eval.Decision.ConfidenceScore, rec.Decision.ConfidenceScore)
	assert.Equal(t, testutil.TokenExpirationPrompt, rec.Prompt)
}

func TestGuard_ReviewRejected(t *testing.T) {
	t.Parallel()
	provider := testutil.NewMockProvider("mock").WithResponses(testutil.TokenExpirationGenerations()...)
	f := newGuard(t, testutil.NewMockOracle().MatchAll(), provider, core.DefaultPolicy())

	strict := core.PolicyConfig{MinConfidence: 0.7, NumSamples: 5}
	eval, err := f.guard.Review(context.Background(), "p", service.ReviewOptions{Policy: &strict, Model: "gpt-4o"})
	require.NoError(t, err)

	assert.False(t, eval.Decision.Passed)
	assert.Contains(t, eval.Decision.Reason, "below required threshold 0.70")
	assert.Equal(t, "gpt-4o", eval.Model)
	require.Len(t, eval.Decision.Divergences, 1)
	assert.Equal(t, map[string]int{"1h": 3, "24h": 2}, eval.Decision.Divergences[0].Variants)
	assert.Equal(t, 1, f.store.Len())
}

func TestGuard_ReviewFailedGenerations(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	provider := testutil.NewMockProvider("mock").WithGenerateFunc(
		func(context.Context, string, core.GenerateOptions) (string, error) {
			if calls.Add(1) == 2 {
				return "", errors.New("stream closed")
			}
			return "same answer", nil
		})
	f := newGuard(t, service.NewExactOracle(), provider, core.PolicyConfig{MinConfidence: 0.6, NumSamples: 3})

	eval, err := f.guard.Review(context.Background(), "p", service.ReviewOptions{Samples: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, eval.NumGenerations)
	require.Len(t, eval.Warnings, 1)
	assert.Contains(t, eval.Warnings[0], "generation #2 failed")
	assert.Contains(t, eval.Warnings[0], "stream closed")
}

func TestGuard_ReviewTooFewGenerations(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	provider := testutil.NewMockProvider("mock").WithGenerateFunc(
		func(context.Context, string, core.GenerateOptions) (string, error) {
			if calls.Add(1)%2 == 0 {
				return "", errors.New("boom")
			}
			return "x", nil
		})
	f := newGuard(t, service.NewExactOracle(), provider, core.DefaultPolicy())

	_, err := f.guard.Review(context.Background(), "p", service.ReviewOptions{})
	assert.True(t, core.IsInsufficientSamples(err), "got %v", err)
	assert.Equal(t, 0, f.store.Len())
}

func TestGuard_ReviewValidation(t *testing.T) {
	t.Parallel()
	f := newGuard(t, service.NewExactOracle(), testutil.NewMockProvider("mock"), core.DefaultPolicy())
	ctx := context.Background()

	for _, n := range []int{1, 11} {
		_, err := f.guard.Review(ctx, "p", service.ReviewOptions{Samples: n})
		assert.Equal(t, core.CodeInvalidConfig, core.GetCode(err), "samples=%d", n)
	}
	assert.Equal(t, 0, f.provider.CallCount("Generate"))

	engine, err := service.NewEngine(service.DefaultEngineConfig(), service.NewExactOracle())
	require.NoError(t, err)
	_, err = service.NewGuard(engine, core.DefaultPolicy()).Review(ctx, "p", service.ReviewOptions{})
	assert.Equal(t, core.CodeProviderUnavailable, core.GetCode(err))
}

func TestGuard_Evaluate(t *testing.T) {
	t.Parallel()
	engine, err := service.NewEngine(service.DefaultEngineConfig(), service.NewExactOracle())
	require.NoError(t, err)
	store := testutil.NewMockReportStore().WithSaveError(errors.New("disk full"))
	g := service.NewGuard(engine, core.PolicyConfig{MinConfidence: 0.5, NumSamples: 2}, service.WithStore(store))

	eval, err := g.Evaluate(context.Background(), "p", []string{"a", "a", "b"}, nil, "external")
	require.NoError(t, err, "a failed save does not fail the evaluation")
	assert.NotEmpty(t, eval.ID)
	assert.Equal(t, "external", eval.Model)
	assert.Len(t, eval.Clusters, 2)

	override := core.PolicyConfig{MinConfidence: 0.5, NumSamples: 4}
	_, err = g.Evaluate(context.Background(), "p", []string{"a", "a", "b"}, &override, "")
	assert.True(t, core.IsInsufficientSamples(err))
}

func TestGuard_SetPolicy(t *testing.T) {
	t.Parallel()
	engine, err := service.NewEngine(service.DefaultEngineConfig(), service.NewExactOracle())
	require.NoError(t, err)
	g := service.NewGuard(engine, core.DefaultPolicy())

	err = g.SetPolicy(core.PolicyConfig{MinConfidence: 2})
	assert.True(t, core.IsInvalidPolicy(err))
	assert.Equal(t, core.DefaultPolicy(), g.Policy(), "invalid policy is not applied")

	next := core.PolicyConfig{
		MinConfidence: 0.8,
		NumSamples:    3,
		HardReject:    []core.HardRejectRule{{Category: core.CategorySecurityParameter, Severity: core.SeverityHigh}},
	}
	require.NoError(t, g.SetPolicy(next))
	assert.Equal(t, 0.8, g.Policy().MinConfidence)
	assert.Len(t, g.Policy().HardReject, 1)
}

func TestGuard_PolicyIsCopy(t *testing.T) {
	t.Parallel()
	engine, err := service.NewEngine(service.DefaultEngineConfig(), service.NewExactOracle())
	require.NoError(t, err)
	rules := []core.HardRejectRule{{Category: core.CategorySecurityParameter, Severity: core.SeverityHigh}}
	g := service.NewGuard(engine, core.PolicyConfig{MinConfidence: 0.6, HardReject: rules})

	p := g.Policy()
	p.HardReject[0] = core.HardRejectRule{Category: core.CategoryStyle, Severity: core.SeverityLow}
	rules[0].Severity = core.SeverityLow

	assert.Equal(t, core.CategorySecurityParameter, g.Policy().HardReject[0].Category)
	assert.Equal(t, core.SeverityHigh, g.Policy().HardReject[0].Severity)
}

func TestGuard_Compare(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	provider := testutil.NewMockProvider("mock").WithGenerateFunc(
		func(_ context.Context, _ string, opts core.GenerateOptions) (string, error) {
			switch opts.Model {
			case "stable":
				return "always the same", nil
			case "broken":
				return "", errors.New("model not found")
			default:
				return fmt.Sprintf("random %d", n.Add(1)), nil
			}
		})
	f := newGuard(t, service.NewExactOracle(), provider, core.PolicyConfig{MinConfidence: 0.5, NumSamples: 3})

	_, err := f.guard.Compare(context.Background(), "p", []string{"only"}, service.ReviewOptions{})
	assert.Equal(t, core.CodeInvalidConfig, core.GetCode(err))

	entries, err := f.guard.Compare(context.Background(), "p", []string{"broken", "chaotic", "stable"}, service.ReviewOptions{Samples: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "stable", entries[0].Model)
	assert.Equal(t, "chaotic", entries[1].Model)
	assert.Equal(t, "broken", entries[2].Model)
	assert.Nil(t, entries[2].Evaluation)
	assert.Contains(t, entries[2].Error, "model not found")
	assert.Greater(t, entries[0].Evaluation.Decision.ConfidenceScore, entries[1].Evaluation.Decision.ConfidenceScore)
}

func TestGuard_Batch(t *testing.T) {
	t.Parallel()
	provider := testutil.NewMockProvider("mock").WithResponses("stable answer")
	f := newGuard(t, service.NewExactOracle(), provider, core.PolicyConfig{MinConfidence: 0.5, NumSamples: 2})

	var seen []int
	items, summary, err := f.guard.Batch(context.Background(), []string{"first", " ", "third"},
		service.ReviewOptions{Samples: 2},
		func(i, total int, _ string) {
			assert.Equal(t, 3, total)
			seen = append(seen, i)
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
	require.Len(t, items, 3)
	assert.NotNil(t, items[0].Evaluation)
	assert.Contains(t, items[1].Error, "prompt cannot be empty")
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.FailuresByCode[core.CodeEmptyPrompt])
	assert.Equal(t, 2, f.store.Len())
}

func TestGuard_BatchCancelled(t *testing.T) {
	t.Parallel()
	f := newGuard(t, service.NewExactOracle(), testutil.NewMockProvider("mock"), core.DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, _, err := f.guard.Batch(ctx, []string{"a", "b"}, service.ReviewOptions{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, items)
}

func TestRankComparison(t *testing.T) {
	t.Parallel()
	eval := func(score float64) *service.Evaluation {
		return &service.Evaluation{Decision: core.Decision{ConfidenceScore: score}}
	}
	entries := []service.ComparisonEntry{
		{Model: "failed", Error: "boom"},
		{Model: "low", Evaluation: eval(0.2)},
		{Model: "high", Evaluation: eval(0.9)},
	}
	service.RankComparison(entries)
	assert.Equal(t, "high", entries[0].Model)
	assert.Equal(t, "low", entries[1].Model)
	assert.Equal(t, "failed", entries[2].Model)
}
