// Package llm adapts OpenAI-compatible endpoints to the gate's generation and
// embedding ports.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/logging"
)

// ProviderName identifies this adapter in logs and errors.
const ProviderName = "openai"

// DefaultEmbeddingModel is used when Config.EmbeddingModel is empty.
const DefaultEmbeddingModel = string(openai.SmallEmbedding3)

// Config configures the client.
type Config struct {
	APIKey         string
	BaseURL        string // Empty uses api.openai.com; set for compatible servers
	Organization   string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration // Per-request HTTP timeout
}

// Client generates completions through the chat completions API.
type Client struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewClient creates a client. An API key is required unless BaseURL points at
// a server that does not authenticate.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	c, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = core.DefaultModel
	}
	return &Client{client: c, model: model, logger: logger}, nil
}

func newOpenAIClient(cfg Config) (*openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" && cfg.BaseURL == "" {
		return nil, core.ErrProviderUnavailable(ProviderName, "api key not set (GATE_GENERATION_API_KEY or OPENAI_API_KEY)")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.OrgID = cfg.Organization
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(oc), nil
}

// Name implements core.GenerationProvider.
func (c *Client) Name() string {
	return ProviderName
}

// Generate implements core.GenerationProvider.
func (c *Client) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if opts.Temperature != nil {
		req.Temperature = wireTemperature(*opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}

	c.logger.Debug("requesting completion", "model", model)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", nonRetryable(core.ErrGeneration(ProviderName, errors.New("response has no choices")))
	}
	c.logger.Debug("completion received",
		"model", model,
		"finish_reason", resp.Choices[0].FinishReason,
		"tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// Embedder produces vectors through the embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates an embedder.
func NewEmbedder(cfg Config) (*Embedder, error) {
	c, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: c, model: model}, nil
}

// Name identifies the embedding backend.
func (e *Embedder) Name() string {
	return ProviderName + "/" + e.model
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, nonRetryable(core.ErrGeneration(ProviderName,
			fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, nonRetryable(core.ErrGeneration(ProviderName,
				fmt.Errorf("embedding response has invalid index %d", d.Index)))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// wireTemperature maps an explicit zero to the smallest positive float32.
// go-openai tags Temperature with omitempty, so a literal 0 never reaches the
// provider and the request would silently run at the provider default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// classifyError maps client errors onto domain errors so the retry policy
// can tell transient failures from permanent ones.
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.ErrTimeout("openai request timed out").WithCause(err)
		}
		return ctx.Err()
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit("openai rate limit exceeded").WithCause(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrProviderUnavailable(ProviderName, "authentication failed").WithCause(err)
	case status >= 500 || status == 0:
		return core.ErrGeneration(ProviderName, err)
	default:
		return nonRetryable(core.ErrGeneration(ProviderName, err))
	}
}

func nonRetryable(err *core.DomainError) *core.DomainError {
	err.Retryable = false
	return err
}

var _ core.GenerationProvider = (*Client)(nil)
