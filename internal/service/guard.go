package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/logging"
)

// ReviewOptions configures one sampled review.
type ReviewOptions struct {
	// Samples is the number of generations to request. Zero uses the
	// policy's NumSamples.
	Samples      int
	Model        string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
	// Policy overrides the guard's policy for this review.
	Policy *core.PolicyConfig
}

// Guard samples a prompt, evaluates the generations and persists the report.
type Guard struct {
	engine  *Engine
	sampler *Sampler
	store   core.ReportStore
	logger  *logging.Logger

	mu     sync.RWMutex
	policy core.PolicyConfig

	defaultModel string
	now          func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithStore persists every evaluation.
func WithStore(store core.ReportStore) GuardOption {
	return func(g *Guard) {
		g.store = store
	}
}

// WithSampler enables sampled reviews.
func WithSampler(s *Sampler) GuardOption {
	return func(g *Guard) {
		g.sampler = s
	}
}

// WithDefaultModel sets the model used when a review names none.
func WithDefaultModel(model string) GuardOption {
	return func(g *Guard) {
		g.defaultModel = model
	}
}

// WithGuardLogger sets the logger.
func WithGuardLogger(l *logging.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard creates a guard around an engine and a default policy.
func NewGuard(engine *Engine, policy core.PolicyConfig, opts ...GuardOption) *Guard {
	g := &Guard{
		engine:       engine,
		policy:       policy.Clone(),
		logger:       logging.NewNop(),
		defaultModel: core.DefaultModel,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns a copy of the current default policy.
func (g *Guard) Policy() core.PolicyConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy.Clone()
}

// SetPolicy replaces the default policy after validating it.
func (g *Guard) SetPolicy(policy core.PolicyConfig) error {
	if err := policy.Validate(g.engine.KnownCategories()); err != nil {
		return err
	}
	g.mu.Lock()
	g.policy = policy.Clone()
	g.mu.Unlock()
	return nil
}

// Store returns the report store, or nil when persistence is disabled.
func (g *Guard) Store() core.ReportStore {
	return g.store
}

// Review samples prompt through the provider and evaluates the result.
// Failed generation calls are reported as warnings; when they leave fewer
// generations than the policy's NumSamples (capped at the request size) the
// review fails with InsufficientSamples.
func (g *Guard) Review(ctx context.Context, prompt string, opts ReviewOptions) (*Evaluation, error) {
	if g.sampler == nil {
		return nil, core.ErrProviderUnavailable("none", "sampling is not configured")
	}
	policy := g.Policy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	samples := opts.Samples
	if samples == 0 {
		samples = policy.NumSamples
	}
	if samples < core.MinSampleRequest || samples > core.MaxSampleRequest {
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("samples must be between %d and %d, got %d", core.MinSampleRequest, core.MaxSampleRequest, samples))
	}
	if policy.NumSamples > samples {
		policy.NumSamples = samples
	}

	model := opts.Model
	if model == "" {
		model = g.defaultModel
	}
	logger := g.logger.WithPrompt(prompt).WithProvider(g.sampler.provider.Name())

	logger.Info("sampling generations", "samples", samples, "model", model)
	res, err := g.sampler.Sample(ctx, prompt, samples, core.GenerateOptions{
		Model:        model,
		SystemPrompt: opts.SystemPrompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	eval, err := g.engine.Evaluate(ctx, prompt, res.Generations, policy)
	if err != nil {
		if core.IsInsufficientSamples(err) && len(res.Failures) > 0 {
			logger.Warn("generation failures left too few samples",
				"failed", len(res.Failures), "requested", samples)
		}
		return nil, err
	}
	for _, f := range res.Failures {
		eval.Warnings = append(eval.Warnings, fmt.Sprintf("generation #%d failed: %v", f.Index+1, f.Err))
	}
	eval.Model = model

	g.finish(ctx, eval, logger)
	return eval, nil
}

// Evaluate runs the engine on caller-supplied generations. A nil policy uses
// the guard's default.
func (g *Guard) Evaluate(ctx context.Context, prompt string, generations []string, policy *core.PolicyConfig, model string) (*Evaluation, error) {
	p := g.Policy()
	if policy != nil {
		p = *policy
	}
	eval, err := g.engine.Evaluate(ctx, prompt, generations, p)
	if err != nil {
		return nil, err
	}
	eval.Model = model
	g.finish(ctx, eval, g.logger.WithPrompt(prompt))
	return eval, nil
}

func (g *Guard) finish(ctx context.Context, eval *Evaluation, logger *logging.Logger) {
	eval.ID = uuid.NewString()
	eval.CreatedAt = g.now().UTC()
	logger = logger.WithEvaluation(eval.ID)

	logger.Info("evaluation decided",
		"outcome", eval.Decision.Outcome(),
		"confidence", eval.Decision.ConfidenceScore,
		"divergences", len(eval.Decision.Divergences))

	if g.store == nil {
		return
	}
	rec := eval.Record()
	if err := g.store.Save(ctx, &rec); err != nil {
		// Reports are advisory; the decision stands without them.
		logger.Warn("saving report failed", "error", err)
	}
}

// ComparisonEntry is one model's result in a comparison.
type ComparisonEntry struct {
	Model      string      `json:"model"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Compare reviews the same prompt with several models and ranks them by
// confidence, highest first. Failed models sort last.
func (g *Guard) Compare(ctx context.Context, prompt string, models []string, opts ReviewOptions) ([]ComparisonEntry, error) {
	if len(models) < 2 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "compare needs at least two models")
	}
	entries := make([]ComparisonEntry, 0, len(models))
	for _, model := range models {
		o := opts
		o.Model = model
		eval, err := g.Review(ctx, prompt, o)
		entry := ComparisonEntry{Model: model, Evaluation: eval}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			entry.Error = err.Error()
		}
		entries = append(entries, entry)
	}
	RankComparison(entries)
	return entries, nil
}

// RankComparison orders entries by descending confidence; failures last.
func RankComparison(entries []ComparisonEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Evaluation, entries[j].Evaluation
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Decision.ConfidenceScore > b.Decision.ConfidenceScore
		}
	})
}

// BatchItem is one prompt's result in a batch.
type BatchItem struct {
	Prompt     string      `json:"prompt"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Batch reviews prompts sequentially and summarizes the outcomes. A failed
// prompt is recorded and the batch continues; cancellation stops it.
func (g *Guard) Batch(ctx context.Context, prompts []string, opts ReviewOptions, progress func(i, total int, prompt string)) ([]BatchItem, Summary, error) {
	collector := NewMetricsCollector()
	items := make([]BatchItem, 0, len(prompts))
	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			return items, collector.Summary(), err
		}
		if progress != nil {
			progress(i+1, len(prompts), prompt)
		}
		start := time.Now()
		eval, err := g.Review(ctx, prompt, opts)
		item := BatchItem{Prompt: prompt, Evaluation: eval}
		if err != nil {
			item.Error = err.Error()
			collector.ObserveFailure(err)
		} else {
			collector.ObserveEvaluation(eval, time.Since(start))
		}
		items = append(items, item)
	}
	return items, collector.Summary(), nil
}
