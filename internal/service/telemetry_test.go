package service_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
	gatetest "github.com/hugo-lorenzo-mato/stability-gate/internal/testutil"
)

func TestTelemetry_ObservesEngine(t *testing.T) {
	t.Parallel()
	tel := service.NewTelemetry()
	collector := service.NewMetricsCollector()
	engine, err := service.NewEngine(service.DefaultEngineConfig(), gatetest.NewMockOracle().MatchAll(),
		service.WithObserver(service.Observers{tel, collector}))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.Evaluate(ctx, "p", gatetest.TokenExpirationGenerations(), core.PolicyConfig{MinConfidence: 0.7, NumSamples: 5})
	require.NoError(t, err)
	_, err = engine.Evaluate(ctx, "p", gatetest.Repeat("x", 3), core.PolicyConfig{MinConfidence: 0.7, NumSamples: 3})
	require.NoError(t, err)
	_, err = engine.Evaluate(ctx, "p", gatetest.Repeat("x", 2), core.PolicyConfig{MinConfidence: 0.7, NumSamples: 3})
	require.Error(t, err)

	require.NotNil(t, tel.Registry())
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Decisions().WithLabelValues(string(core.OutcomeRejected))))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Decisions().WithLabelValues(string(core.OutcomeAccepted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Failures().WithLabelValues(core.CodeInsufficientSamples)))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Divergences().WithLabelValues(core.CategorySecurityParameter, "high")))
	assert.Equal(t, 2, testutil.CollectAndCount(tel.Decisions()))

	s := collector.Summary()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Failed)
}

func TestTelemetry_UnknownFailureCode(t *testing.T) {
	t.Parallel()
	tel := service.NewTelemetry()
	tel.ObserveFailure(context.DeadlineExceeded)
	tel.ObserveEvaluation(nil, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Failures().WithLabelValues("UNKNOWN")))
	assert.Equal(t, 0, testutil.CollectAndCount(tel.Decisions()))
}

func TestTelemetry_Handler(t *testing.T) {
	t.Parallel()
	tel := service.NewTelemetry()
	tel.ObserveEvaluation(&service.Evaluation{
		Decision: core.Decision{Passed: true, ConfidenceScore: 0.95, Divergences: []core.DivergencePoint{}},
		Clusters: []core.Cluster{{Members: []int{0}}},
	}, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `gate_decisions_total{outcome="accepted"} 1`), text)
	assert.Contains(t, text, "gate_confidence_score_bucket")
	assert.Contains(t, text, "gate_evaluation_duration_seconds_count 1")
}
