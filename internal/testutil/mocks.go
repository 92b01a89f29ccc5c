package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

// MockCall records a call to a mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

type callRecorder struct {
	mu    sync.Mutex
	calls []MockCall
}

func (r *callRecorder) record(method string, args interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, MockCall{Method: method, Args: args, Timestamp: time.Now()})
}

// Calls returns recorded calls.
func (r *callRecorder) Calls() []MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MockCall{}, r.calls...)
}

// CallCount returns the number of calls to a method.
func (r *callRecorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MockProvider implements core.GenerationProvider for testing. Responses are
// handed out in call order and cycle when exhausted.
type MockProvider struct {
	callRecorder
	name         string
	responses    []string
	next         int
	generateFunc func(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error)
}

// NewMockProvider creates a provider that echoes the prompt.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name implements core.GenerationProvider.
func (m *MockProvider) Name() string {
	return m.name
}

// Generate implements core.GenerationProvider.
func (m *MockProvider) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	m.record("Generate", opts)
	if m.generateFunc != nil {
		return m.generateFunc(ctx, prompt, opts)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return fmt.Sprintf("Mock response for: %s", prompt), nil
	}
	out := m.responses[m.next%len(m.responses)]
	m.next++
	return out, nil
}

// WithResponses configures the texts returned in order.
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.responses = responses
	return m
}

// WithGenerateFunc sets a custom generate function.
func (m *MockProvider) WithGenerateFunc(fn func(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error)) *MockProvider {
	m.generateFunc = fn
	return m
}

// WithError configures every call to fail.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.generateFunc = func(context.Context, string, core.GenerateOptions) (string, error) {
		return "", err
	}
	return m
}

// MockOracle implements core.SimilarityOracle for testing. By default texts
// are equivalent when they are equal; Link declares extra equivalent pairs.
type MockOracle struct {
	callRecorder
	name   string
	pairs  map[[2]string]bool
	all    bool
	err    error
	failAt int
}

// NewMockOracle creates an oracle that matches identical texts only.
func NewMockOracle() *MockOracle {
	return &MockOracle{name: "mock", pairs: make(map[[2]string]bool)}
}

// Name implements core.SimilarityOracle.
func (m *MockOracle) Name() string {
	return m.name
}

// Equivalent implements core.SimilarityOracle.
func (m *MockOracle) Equivalent(ctx context.Context, a, b string) (bool, error) {
	m.record("Equivalent", [2]string{a, b})
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	n := len(m.calls)
	m.mu.Unlock()
	if m.err != nil && n >= m.failAt {
		return false, m.err
	}
	if m.all || a == b {
		return true, nil
	}
	return m.pairs[pairKey(a, b)], nil
}

// Link declares a and b equivalent (symmetrically).
func (m *MockOracle) Link(a, b string) *MockOracle {
	m.pairs[pairKey(a, b)] = true
	return m
}

// MatchAll makes every pair equivalent.
func (m *MockOracle) MatchAll() *MockOracle {
	m.all = true
	return m
}

// WithError fails every comparison from the n-th call on (1-based).
func (m *MockOracle) WithError(err error, n int) *MockOracle {
	m.err = err
	m.failAt = n
	return m
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// MockEmbedder returns fixed vectors per text.
type MockEmbedder struct {
	callRecorder
	vectors map[string][]float32
	err     error
}

// NewMockEmbedder creates an embedder with no known texts.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{vectors: make(map[string][]float32)}
}

// Name identifies the embedder.
func (m *MockEmbedder) Name() string {
	return "mock"
}

// Set assigns a vector to a text.
func (m *MockEmbedder) Set(text string, vec ...float32) *MockEmbedder {
	m.vectors[text] = vec
	return m
}

// WithError configures every call to fail.
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.err = err
	return m
}

// Embed returns the configured vectors; unknown texts get a zero vector.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.record("Embed", append([]string{}, texts...))
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 0}
		}
	}
	return out, nil
}

// MockReportStore is an in-memory core.ReportStore.
type MockReportStore struct {
	mu      sync.Mutex
	records map[string]core.ReportRecord
	saveErr error
}

// NewMockReportStore creates an empty store.
func NewMockReportStore() *MockReportStore {
	return &MockReportStore{records: make(map[string]core.ReportRecord)}
}

// WithSaveError makes Save fail.
func (m *MockReportStore) WithSaveError(err error) *MockReportStore {
	m.saveErr = err
	return m
}

// Save implements core.ReportStore.
func (m *MockReportStore) Save(_ context.Context, rec *core.ReportRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = *rec
	return nil
}

// Get implements core.ReportStore.
func (m *MockReportStore) Get(_ context.Context, id string) (*core.ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, core.ErrNotFound("report", id)
	}
	return &rec, nil
}

// List implements core.ReportStore.
func (m *MockReportStore) List(_ context.Context, filter core.ReportFilter) ([]*core.ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.ReportRecord, 0, len(m.records))
	for _, rec := range m.records {
		if filter.Passed != nil && rec.Decision.Passed != *filter.Passed {
			continue
		}
		r := rec
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of stored reports.
func (m *MockReportStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Close implements core.ReportStore.
func (m *MockReportStore) Close() error {
	return nil
}
