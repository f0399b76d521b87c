package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"resume-rag/internal/config"
	"resume-rag/internal/helper"
	"resume-rag/internal/models"
)

// Generator is the part of llms.Model the client needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client sends a fully built prompt to a chat-completion model and returns its text.
type Client struct {
	llm         Generator
	model       string
	temperature float64
	maxRetries  int
	backoff     time.Duration
	limiter     *rate.Limiter
}

type ClientOption func(*Client)

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			return
		}
		burst := max(int(requestsPerSecond), 1)
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = d
	}
}

func New(llm Generator, model string, temperature float64, opts ...ClientOption) *Client {
	c := &Client{
		llm:         llm,
		model:       model,
		temperature: temperature,
		backoff:     helper.DefaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client for an OpenAI-compatible endpoint such as OpenRouter.
// A missing API key is reported here rather than on the first question.
func NewFromConfig(llmConfig *config.LLMConfig) (*Client, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url": llmConfig.BaseURL,
		"model":    llmConfig.Model,
	}).Msg("Creating chat-completion client")

	key := strings.TrimPrefix(llmConfig.Key, "Bearer ")
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key (set %s)", models.ErrLLM, llmConfig.KeyEnv)
	}

	timeout := time.Duration(llmConfig.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(key),
		openai.WithModel(llmConfig.Model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrLLM, err)
	}

	return New(llm, llmConfig.Model, llmConfig.Temperature,
		WithMaxRetries(llmConfig.MaxRetries),
		WithRateLimit(llmConfig.RequestsPerSecond),
	), nil
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends prompt as a single user message and returns the first choice verbatim.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limit wait: %v", models.ErrLLM, err)
		}
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	var resp *llms.ContentResponse
	start := time.Now()
	err := helper.RetryWithBackoff(ctx, c.maxRetries, c.backoff, func() error {
		var err error
		resp, err = c.llm.GenerateContent(ctx, messages,
			llms.WithModel(c.model),
			llms.WithTemperature(c.temperature),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrLLM, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", models.ErrLLM)
	}

	log.Debug().Str("model", c.model).Dur("elapsed", time.Since(start)).Msg("Generated answer")
	return resp.Choices[0].Content, nil
}
