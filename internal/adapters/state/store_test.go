package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestReport(id string, passed bool, offset time.Duration) *core.ReportRecord {
	decision := core.Decision{
		Passed:          passed,
		ConfidenceScore: 0.9,
		Divergences:     []core.DivergencePoint{},
	}
	if !passed {
		decision.ConfidenceScore = 0.6116
		decision.Reason = "confidence 0.6116 below required threshold 0.70"
		decision.Divergences = []core.DivergencePoint{{
			Category: core.CategorySecurityParameter,
			Severity: core.SeverityHigh,
			Aspect:   "token_expiration",
			Variants: map[string]int{"1h": 3, "24h": 2},
			Members:  map[string][]int{"1h": {0, 1, 3}, "24h": {2, 4}},
		}}
	}
	return &core.ReportRecord{
		ID:             id,
		Prompt:         "Write a JWT login handler",
		Model:          "gpt-4o-mini",
		NumGenerations: 5,
		Decision:       decision,
		Recommendation: "review before use",
		Warnings:       []string{"generation #2 failed"},
		CreatedAt:      baseTime.Add(offset),
	}
}

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, store core.ReportStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		want := newTestReport("rep-rejected", false, 0)
		require.NoError(t, store.Save(ctx, want))

		got, err := store.Get(ctx, "rep-rejected")
		require.NoError(t, err)
		assert.Equal(t, want.Prompt, got.Prompt)
		assert.Equal(t, want.Model, got.Model)
		assert.Equal(t, want.NumGenerations, got.NumGenerations)
		assert.Equal(t, want.Recommendation, got.Recommendation)
		assert.Equal(t, want.Warnings, got.Warnings)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, want.CreatedAt)
		assert.Equal(t, want.Decision, got.Decision)
	})

	t.Run("save replaces", func(t *testing.T) {
		rec := newTestReport("rep-replace", false, time.Minute)
		require.NoError(t, store.Save(ctx, rec))
		rec.Recommendation = "regenerate"
		require.NoError(t, store.Save(ctx, rec))

		got, err := store.Get(ctx, "rep-replace")
		require.NoError(t, err)
		assert.Equal(t, "regenerate", got.Recommendation)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "does-not-exist")
		require.Error(t, err)
		assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
	})

	t.Run("save requires id", func(t *testing.T) {
		err := store.Save(ctx, &core.ReportRecord{})
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidConfig, core.GetCode(err))
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newTestReport("rep-accepted-1", true, 2*time.Minute)))
		require.NoError(t, store.Save(ctx, newTestReport("rep-accepted-2", true, 3*time.Minute)))

		all, err := store.List(ctx, core.ReportFilter{})
		require.NoError(t, err)
		ids := reportIDs(all)
		assert.Equal(t, []string{"rep-accepted-2", "rep-accepted-1", "rep-replace", "rep-rejected"}, ids)

		passed := true
		accepted, err := store.List(ctx, core.ReportFilter{Passed: &passed})
		require.NoError(t, err)
		assert.Equal(t, []string{"rep-accepted-2", "rep-accepted-1"}, reportIDs(accepted))

		failed := false
		rejected, err := store.List(ctx, core.ReportFilter{Passed: &failed, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"rep-replace"}, reportIDs(rejected))
	})
}

func reportIDs(recs []*core.ReportRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}
