package service

import (
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// MetricsCollector accumulates evaluation outcomes for a session or batch.
// It implements Observer.
type MetricsCollector struct {
	mu          sync.RWMutex
	start       time.Time
	evaluations []EvaluationMetrics
	failures    map[string]int
}

// EvaluationMetrics holds per-evaluation metrics.
type EvaluationMetrics struct {
	Prompt         string        `json:"prompt"`
	Model          string        `json:"model,omitempty"`
	Confidence     float64       `json:"confidence"`
	Passed         bool          `json:"passed"`
	Clusters       int           `json:"clusters"`
	Divergences    int           `json:"divergences"`
	HighSeverity   int           `json:"high_severity"`
	NumGenerations int           `json:"num_generations"`
	Duration       time.Duration `json:"duration"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// Summary aggregates a collector's evaluations.
type Summary struct {
	Total          int            `json:"total"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Failed         int            `json:"failed"`
	FailuresByCode map[string]int `json:"failures_by_code,omitempty"`
	AvgConfidence  float64        `json:"avg_confidence"`
	HighConfidence int            `json:"high_confidence"`
	MedConfidence  int            `json:"medium_confidence"`
	LowConfidence  int            `json:"low_confidence"`
	TotalDuration  time.Duration  `json:"total_duration"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		start:       time.Now(),
		evaluations: make([]EvaluationMetrics, 0),
		failures:    make(map[string]int),
	}
}

// ObserveEvaluation records a completed evaluation.
func (m *MetricsCollector) ObserveEvaluation(eval *Evaluation, elapsed time.Duration) {
	if eval == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evaluations = append(m.evaluations, EvaluationMetrics{
		Prompt:         eval.Prompt,
		Model:          eval.Model,
		Confidence:     eval.Decision.ConfidenceScore,
		Passed:         eval.Decision.Passed,
		Clusters:       len(eval.Clusters),
		Divergences:    len(eval.Decision.Divergences),
		HighSeverity:   eval.Decision.CountBySeverity()[core.SeverityHigh],
		NumGenerations: eval.NumGenerations,
		Duration:       elapsed,
		CompletedAt:    time.Now(),
	})
}

// ObserveFailure records an aborted evaluation by error code.
func (m *MetricsCollector) ObserveFailure(err error) {
	code := core.GetCode(err)
	if code == "" {
		code = string(core.GetCategory(err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[code]++
}

// Evaluations returns a copy of the recorded evaluations.
func (m *MetricsCollector) Evaluations() []EvaluationMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EvaluationMetrics, len(m.evaluations))
	copy(out, m.evaluations)
	return out
}

// Summary computes aggregate statistics. Confidence buckets follow the
// recommendation tiers: >= 0.8 high, >= 0.6 medium, below that low.
func (m *MetricsCollector) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		Total:         len(m.evaluations),
		TotalDuration: time.Since(m.start),
	}
	if len(m.failures) > 0 {
		s.FailuresByCode = make(map[string]int, len(m.failures))
		for code, n := range m.failures {
			s.FailuresByCode[code] = n
			s.Failed += n
		}
	}

	sum := 0.0
	for _, e := range m.evaluations {
		sum += e.Confidence
		if e.Passed {
			s.Passed++
		} else {
			s.Rejected++
		}
		switch {
		case e.Confidence >= 0.8:
			s.HighConfidence++
		case e.Confidence >= 0.6:
			s.MedConfidence++
		default:
			s.LowConfidence++
		}
	}
	if s.Total > 0 {
		s.AvgConfidence = sum / float64(s.Total)
	}
	return s
}

// Reset clears all recorded data.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = time.Now()
	m.evaluations = make([]EvaluationMetrics, 0)
	m.failures = make(map[string]int)
}
