package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/logging"
)

// SamplerConfig bounds how generations are requested from a provider.
type SamplerConfig struct {
	Concurrency int
	CallTimeout time.Duration
	RateLimit   RateLimiterConfig
	Retry       *RetryPolicy
}

// DefaultSamplerConfig returns sampling defaults.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Concurrency: 4,
		CallTimeout: 60 * time.Second,
		RateLimit:   DefaultRateLimiterConfig(),
		Retry:       DefaultRetryPolicy(),
	}
}

// SampleFailure records a generation call that did not produce text.
type SampleFailure struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// SampleResult holds the generations collected for one prompt. Generations
// keep request order; failed slots are skipped and listed in Failures.
type SampleResult struct {
	Prompt      string
	Model       string
	Generations []string
	Failures    []SampleFailure
	Elapsed     time.Duration
}

// Sampler fans generation calls out to a provider.
type Sampler struct {
	provider core.GenerationProvider
	cfg      SamplerConfig
	limiter  *RateLimiter
	logger   *logging.Logger
}

// NewSampler creates a sampler. The rate limiter is shared by every call
// made through this sampler.
func NewSampler(provider core.GenerationProvider, cfg SamplerConfig, logger *logging.Logger) *Sampler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sampler{
		provider: provider,
		cfg:      cfg,
		limiter:  NewRateLimiter(cfg.RateLimit),
		logger:   logger,
	}
}

// ValidatePrompt rejects empty and oversized prompts.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return core.ErrValidation(core.CodeEmptyPrompt, "prompt cannot be empty")
	}
	if len(prompt) > core.MaxPromptLength {
		return core.ErrValidation(core.CodePromptTooLong,
			fmt.Sprintf("prompt exceeds maximum length of %d characters", core.MaxPromptLength))
	}
	return nil
}

// Sample requests n generations for prompt. It returns the partial set when
// some calls fail and an error only when none succeed or ctx is cancelled.
func (s *Sampler) Sample(ctx context.Context, prompt string, n int, opts core.GenerateOptions) (*SampleResult, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("sample count %d must be positive", n))
	}
	if s.provider == nil {
		return nil, core.ErrProviderUnavailable("none", "no generation provider configured")
	}
	if opts.Timeout == 0 {
		opts.Timeout = s.cfg.CallTimeout
	}

	start := time.Now()
	slots := make([]string, n)
	errs := make([]error, n)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	var mu sync.Mutex
	completed := 0

	for i := 0; i < n; i++ {
		g.Go(func() error {
			text, err := s.generate(ctx, prompt, opts, i)
			slots[i] = text
			errs[i] = err

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			s.logger.Debug("generation finished",
				"provider", s.provider.Name(),
				"index", i,
				"completed", done,
				"total", n,
				"ok", err == nil)
			// Provider failures stay in their slot; only the caller's
			// cancellation fails the group.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SampleResult{
		Prompt:      prompt,
		Model:       opts.Model,
		Generations: make([]string, 0, n),
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			result.Failures = append(result.Failures, SampleFailure{Index: i, Err: errs[i]})
			continue
		}
		result.Generations = append(result.Generations, slots[i])
	}
	result.Elapsed = time.Since(start)

	if len(result.Generations) == 0 {
		causes := make([]error, 0, len(result.Failures))
		for _, f := range result.Failures {
			causes = append(causes, f.Err)
		}
		return result, core.ErrGeneration(s.provider.Name(), errors.Join(causes...))
	}
	if len(result.Failures) > 0 {
		s.logger.Warn("some generations failed",
			"provider", s.provider.Name(),
			"failed", len(result.Failures),
			"total", n)
	}
	return result, nil
}

func (s *Sampler) generate(ctx context.Context, prompt string, opts core.GenerateOptions, index int) (string, error) {
	var text string
	err := s.cfg.Retry.ExecuteWithNotify(ctx, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		callCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		out, err := s.provider.Generate(callCtx, prompt, opts)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return core.ErrTimeout(fmt.Sprintf("generation #%d timed out after %s", index+1, opts.Timeout)).WithCause(err)
			}
			return err
		}
		text = out
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("retrying generation",
			"provider", s.provider.Name(),
			"index", index,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	})
	return text, err
}
