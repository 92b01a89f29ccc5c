package service

import (
	"context"
	"sort"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/logging"
)

// EngineConfig selects the algorithms the engine runs. It is built
// explicitly by callers (see config.Config.EngineConfig); the engine never
// reads configuration on its own.
type EngineConfig struct {
	Clustering string
	ScanMode   string
	Weights    SeverityWeights
	Extractors []core.Extractor
	// KeepGenerations copies the evaluated texts into the Evaluation.
	KeepGenerations bool
}

// DefaultEngineConfig returns greedy clustering, member scanning, default
// weights and the built-in extractors.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Clustering: core.ClusterGreedy,
		ScanMode:   ScanMembers,
		Weights:    DefaultSeverityWeights(),
		Extractors: DefaultExtractors(),
	}
}

// Observer receives the outcome of every evaluation.
type Observer interface {
	ObserveEvaluation(eval *Evaluation, elapsed time.Duration)
	ObserveFailure(err error)
}

// Engine evaluates generation sets. It keeps no state between calls and is
// safe for concurrent use as long as the oracle is.
type Engine struct {
	cfg       EngineConfig
	oracle    core.SimilarityOracle
	clusterer *Clusterer
	extractor *DivergenceExtractor
	scorer    *Scorer
	logger    *logging.Logger
	observer  Observer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger used for warnings.
func WithEngineLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver attaches an evaluation observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates an engine over the given oracle.
func NewEngine(cfg EngineConfig, oracle core.SimilarityOracle, opts ...EngineOption) (*Engine, error) {
	if oracle == nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "similarity oracle required")
	}
	clusterer, err := NewClusterer(cfg.Clustering)
	if err != nil {
		return nil, err
	}
	if cfg.Extractors == nil {
		cfg.Extractors = DefaultExtractors()
	}
	extractor, err := NewDivergenceExtractor(cfg.Extractors, cfg.ScanMode)
	if err != nil {
		return nil, err
	}
	if cfg.Weights == (SeverityWeights{}) {
		cfg.Weights = DefaultSeverityWeights()
	}
	scorer, err := NewScorer(cfg.Weights)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		oracle:    oracle,
		clusterer: clusterer,
		extractor: extractor,
		scorer:    scorer,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Oracle returns the similarity oracle the engine clusters with.
func (e *Engine) Oracle() core.SimilarityOracle {
	return e.oracle
}

// KnownCategories returns every category a policy may reference: the
// built-in categories plus those of configured extractors.
func (e *Engine) KnownCategories() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(core.Categories))
	for _, c := range append(append([]string{}, core.Categories...), e.extractor.Categories()...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Evaluate scores generations sampled for prompt and applies policy.
func (e *Engine) Evaluate(ctx context.Context, prompt string, generations []string, policy core.PolicyConfig) (*Evaluation, error) {
	return e.EvaluateSet(ctx, core.NewGenerationSet(prompt, generations), policy)
}

// EvaluateSet runs the full pipeline: validate the policy, drop malformed
// generations, cluster, extract divergences, score and decide. Any failure
// aborts the evaluation; errors never turn into a low score.
func (e *Engine) EvaluateSet(ctx context.Context, set core.GenerationSet, policy core.PolicyConfig) (*Evaluation, error) {
	start := time.Now()
	eval, err := e.evaluate(ctx, set, policy)
	if e.observer != nil {
		if err != nil {
			e.observer.ObserveFailure(err)
		} else {
			e.observer.ObserveEvaluation(eval, time.Since(start))
		}
	}
	return eval, err
}

func (e *Engine) evaluate(ctx context.Context, set core.GenerationSet, policy core.PolicyConfig) (*Evaluation, error) {
	if err := policy.Validate(e.KnownCategories()); err != nil {
		return nil, err
	}

	clean, malformed := set.Sanitize()
	warnings := make([]string, 0, len(malformed))
	for _, w := range malformed {
		e.logger.Warn("excluding malformed generation",
			"code", w.Code,
			"index", w.Details["index"],
			"reason", w.Message)
		warnings = append(warnings, w.Message)
	}

	want := policy.NumSamples
	if want < 1 {
		want = 1
	}
	if set.Len() < want {
		return nil, core.InsufficientSamples(set.Len(), want)
	}
	if clean.Len() < want {
		return nil, core.InsufficientSamples(clean.Len(), want).
			WithDetail("excluded", len(malformed)).
			WithDetail("warnings", warnings)
	}

	clusters, err := e.clusterer.Cluster(ctx, clean, e.oracle)
	if err != nil {
		return nil, err
	}

	divergences, err := e.extractor.ExtractWith(clusters, clean, policy.SeverityFor)
	if err != nil {
		return nil, err
	}

	score, err := e.scorer.Score(clusters, divergences, clean.Len())
	if err != nil {
		return nil, err
	}

	decision, err := NewPolicyEvaluator(policy).Decide(clean.Len(), score, divergences)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		Prompt:         set.Prompt,
		Decision:       decision,
		Clusters:       clusters,
		Recommendation: Recommend(score, divergences),
		Consensus:      ConsensusLines(clean),
		PairDiffs:      PairwiseDiffs(clean),
		NumGenerations: clean.Len(),
		Oracle:         e.oracle.Name(),
	}
	if len(warnings) > 0 {
		eval.Warnings = warnings
	}
	if e.cfg.KeepGenerations {
		eval.Generations = append([]core.Generation(nil), clean.Items...)
	}

	e.logger.Debug("evaluation complete",
		"passed", decision.Passed,
		"confidence", score,
		"clusters", len(clusters),
		"divergences", len(divergences))
	return eval, nil
}
