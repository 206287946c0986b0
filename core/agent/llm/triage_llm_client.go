package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
	"github.com/Tanay2104/Smart-Email/pkg/httputil"
	"github.com/Tanay2104/Smart-Email/pkg/metrics"
	"github.com/Tanay2104/Smart-Email/pkg/ratelimit"
	"github.com/Tanay2104/Smart-Email/pkg/resilience"
)

// Client talks to any OpenAI-compatible endpoint (llama.cpp server, vLLM,
// OpenAI itself) and serves both completions and embeddings.
type Client struct {
	client     *openai.Client
	model      string
	embedModel string
	completeCB *resilience.CircuitBreaker
	embedCB    *resilience.CircuitBreaker
	limiter    *ratelimit.Limiter
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string
	// MaxConcurrent caps in-flight completions; 0 is unlimited.
	MaxConcurrent int
	HTTPClient    *http.Client
}

const (
	DefaultModel      = "mistral-7b-instruct-v0.2"
	DefaultEmbedModel = "bge-small-en-v1.5"
)

var (
	_ out.Completer = (*Client)(nil)
	_ out.Embedder  = (*Client)(nil)
)

func NewClientWithConfig(cfg ClientConfig, log zerolog.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oaCfg.HTTPClient = cfg.HTTPClient
	} else {
		oaCfg.HTTPClient = httputil.NewClient(httputil.ModelServerConfig(cfg.MaxConcurrent))
	}

	return &Client{
		client:     openai.NewClientWithConfig(oaCfg),
		model:      model,
		embedModel: embedModel,
		completeCB: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("llm-completion"), log),
		embedCB:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("llm-embedding"), log),
		limiter:    ratelimit.NewLimiter(cfg.MaxConcurrent),
	}
}

// Complete sends prompt as a single user message. An empty choice list is an
// error so callers can tell a silent server from an empty answer.
func (c *Client) Complete(ctx context.Context, prompt string, opts out.CompletionOptions) (string, error) {
	// the timeout starts once a slot is held
	release, err := c.limiter.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var content string
	start := time.Now()
	err = c.completeCB.Execute(func() error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   opts.MaxTokens,
			Temperature: wireTemperature(opts.Temperature),
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion returned no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	metrics.RecordExternalCall("completion", err, time.Since(start))

	if err != nil {
		return "", wrapCallError(ctx, "completion", err)
	}
	return content, nil
}

// Embed returns the embedding of text from the configured embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	start := time.Now()
	err := c.embedCB.Execute(func() error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embedModel),
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return errors.New("embedding response is empty")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	metrics.RecordExternalCall("embedding", err, time.Since(start))

	if err != nil {
		return nil, wrapCallError(ctx, "embedding", err)
	}
	return vec, nil
}

// minTemperature stands in for 0. The request field is omitempty, and an
// absent value makes the server sample at its own default.
const minTemperature = 0.01

func wireTemperature(t float32) float32 {
	if t < minTemperature {
		return minTemperature
	}
	return t
}

func wrapCallError(ctx context.Context, call string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout(call).WithError(err)
	}
	return apperr.ExternalError(call, err)
}
