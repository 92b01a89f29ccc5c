package service_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/testutil"
)

func sequentialConfig() service.SamplerConfig {
	return service.SamplerConfig{
		Concurrency: 1,
		CallTimeout: time.Second,
		Retry:       service.NewRetryPolicy(service.WithMaxAttempts(1)),
	}
}

func TestSampler_CollectsInRequestOrder(t *testing.T) {
	t.Parallel()
	provider := testutil.NewMockProvider("mock").WithResponses("a", "b", "c")
	s := service.NewSampler(provider, sequentialConfig(), nil)

	res, err := s.Sample(context.Background(), "prompt", 3, core.GenerateOptions{Model: "m"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, strings.Join(res.Generations, ","), "a,b,c")
	testutil.AssertLen(t, res.Failures, 0)
	testutil.AssertEqual(t, res.Model, "m")
	testutil.AssertEqual(t, provider.CallCount("Generate"), 3)

	opts := provider.Calls()[0].Args.(core.GenerateOptions)
	testutil.AssertEqual(t, opts.Timeout, time.Second)
}

func TestSampler_PartialFailure(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	provider := testutil.NewMockProvider("mock").WithGenerateFunc(
		func(context.Context, string, core.GenerateOptions) (string, error) {
			if calls.Add(1) == 2 {
				return "", errors.New("upstream reset")
			}
			return "ok", nil
		})
	s := service.NewSampler(provider, sequentialConfig(), nil)

	res, err := s.Sample(context.Background(), "prompt", 3, core.GenerateOptions{})
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, res.Generations, 2)
	testutil.AssertLen(t, res.Failures, 1)
	testutil.AssertEqual(t, res.Failures[0].Index, 1)
	testutil.AssertContains(t, res.Failures[0].Err.Error(), "upstream reset")
}

func TestSampler_AllFail(t *testing.T) {
	t.Parallel()
	cause := errors.New("invalid api key")
	s := service.NewSampler(testutil.NewMockProvider("openai").WithError(cause), sequentialConfig(), nil)

	res, err := s.Sample(context.Background(), "prompt", 2, core.GenerateOptions{})
	testutil.AssertEqual(t, core.GetCode(err), core.CodeGenerationFailed)
	testutil.AssertTrue(t, errors.Is(err, cause), "provider error is the cause")
	testutil.AssertLen(t, res.Failures, 2)
}

func TestSampler_CallerCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider := testutil.NewMockProvider("mock").WithGenerateFunc(
		func(context.Context, string, core.GenerateOptions) (string, error) {
			cancel()
			return "ok", nil
		})
	s := service.NewSampler(provider, sequentialConfig(), nil)

	res, err := s.Sample(ctx, "prompt", 3, core.GenerateOptions{})
	testutil.AssertTrue(t, errors.Is(err, context.Canceled), "cancellation is reported")
	testutil.AssertTrue(t, res == nil, "no partial result after cancellation")
}

func TestSampler_RetriesRetryableErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	provider := testutil.NewMockProvider("mock").WithGenerateFunc(
		func(context.Context, string, core.GenerateOptions) (string, error) {
			if calls.Add(1) == 1 {
				return "", core.ErrRateLimit("429 too many requests")
			}
			return "ok", nil
		})
	cfg := sequentialConfig()
	cfg.Retry = service.NewRetryPolicy(service.WithMaxAttempts(3), service.WithBaseDelay(time.Millisecond), service.WithJitter(0))
	s := service.NewSampler(provider, cfg, nil)

	res, err := s.Sample(context.Background(), "prompt", 1, core.GenerateOptions{})
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, res.Generations, 1)
	testutil.AssertEqual(t, provider.CallCount("Generate"), 2)
}

func TestSampler_CallTimeout(t *testing.T) {
	t.Parallel()
	provider := testutil.NewMockProvider("slow").WithGenerateFunc(
		func(ctx context.Context, _ string, _ core.GenerateOptions) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	cfg := sequentialConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	s := service.NewSampler(provider, cfg, nil)

	_, err := s.Sample(context.Background(), "prompt", 1, core.GenerateOptions{})
	testutil.AssertEqual(t, core.GetCode(err), core.CodeGenerationFailed)
	testutil.AssertContains(t, err.Error(), "timed out after 20ms")
	testutil.AssertTrue(t, errors.Is(err, context.DeadlineExceeded), "deadline is the root cause")
}

func TestSampler_ConcurrencyBound(t *testing.T) {
	t.Parallel()
	var inFlight, peak atomic.Int32
	provider := testutil.NewMockProvider("mock").WithGenerateFunc(
		func(context.Context, string, core.GenerateOptions) (string, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return "ok", nil
		})
	cfg := sequentialConfig()
	cfg.Concurrency = 2
	s := service.NewSampler(provider, cfg, nil)

	res, err := s.Sample(context.Background(), "prompt", 6, core.GenerateOptions{})
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, res.Generations, 6)
	testutil.AssertTrue(t, peak.Load() <= 2, "never more than two calls in flight")
}

func TestSampler_Validation(t *testing.T) {
	t.Parallel()
	s := service.NewSampler(testutil.NewMockProvider("mock"), sequentialConfig(), nil)
	ctx := context.Background()

	_, err := s.Sample(ctx, "   ", 3, core.GenerateOptions{})
	testutil.AssertEqual(t, core.GetCode(err), core.CodeEmptyPrompt)

	_, err = s.Sample(ctx, strings.Repeat("x", core.MaxPromptLength+1), 3, core.GenerateOptions{})
	testutil.AssertEqual(t, core.GetCode(err), core.CodePromptTooLong)

	_, err = s.Sample(ctx, "prompt", 0, core.GenerateOptions{})
	testutil.AssertEqual(t, core.GetCode(err), core.CodeInvalidConfig)

	_, err = service.NewSampler(nil, sequentialConfig(), nil).Sample(ctx, "prompt", 1, core.GenerateOptions{})
	testutil.AssertEqual(t, core.GetCode(err), core.CodeProviderUnavailable)
}
