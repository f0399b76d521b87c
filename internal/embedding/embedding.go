package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
	"resume-rag/internal/helper"
	"resume-rag/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client turns text into fixed-dimension vectors. The same Client must embed the
// chunks at index-build time and the questions at query time.
type Client struct {
	embedder   embeddings.Embedder
	model      string
	maxRetries int
	dimension  atomic.Int64
}

// NewClient wraps an already constructed langchaingo embedder.
func NewClient(embedder embeddings.Embedder, model string, maxRetries int) *Client {
	return &Client{embedder: embedder, model: model, maxRetries: maxRetries}
}

// NewEmbedder creates a langchaingo embedder for an OpenAI-compatible embeddings API.
func NewEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating OpenAI-compatible embedder")

	if llmConfig.Key == "" {
		return nil, fmt.Errorf("%w: missing API key for %s", models.ErrEmbedding, llmConfig.BaseURL)
	}

	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(llmConfig.Key),
		openai.WithEmbeddingModel(llmConfig.Model),
		openai.WithHTTPClient(httpClient(llmConfig)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	return newEmbedder(llm, llmConfig)
}

// NewOllamaEmbedder creates a langchaingo embedder backed by a local Ollama model.
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating Ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
		ollama.WithHTTPClient(httpClient(llmConfig)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	return newEmbedder(llm, llmConfig)
}

func newEmbedder(client embeddings.EmbedderClient, llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if llmConfig.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(llmConfig.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	return embedder, nil
}

func httpClient(llmConfig *config.LLMConfig) *http.Client {
	timeout := time.Duration(llmConfig.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewProvider creates the embedder selected by llmConfig.Provider.
func NewProvider(llmConfig *config.LLMConfig) (embeddings.Embedder, error) {
	switch llmConfig.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(llmConfig)
	case config.ProviderOpenAI:
		return NewEmbedder(llmConfig)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrEmbedding, llmConfig.Provider)
	}
}

// NewFromConfig wraps embedder, or the configured provider when embedder is nil, in a
// Client. A non-nil cache is consulted before the provider.
func NewFromConfig(llmConfig *config.LLMConfig, embedder embeddings.Embedder, cache *Cache) (*Client, error) {
	if embedder == nil {
		var err error
		if embedder, err = NewProvider(llmConfig); err != nil {
			return nil, err
		}
	}
	if cache != nil {
		embedder = NewCachedEmbedder(embedder, cache, llmConfig.Model)
	}
	return NewClient(embedder, llmConfig.Model, llmConfig.MaxRetries), nil
}

// Model returns the embedding model identifier.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the vector length seen so far, or 0 before the first call.
func (c *Client) Dimension() int {
	return int(c.dimension.Load())
}

// Embed returns the vector for a single text, typically a question.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", models.ErrEmbedding)
	}

	var vector []float32
	err := helper.Retry(ctx, c.maxRetries, func() error {
		var err error
		vector, err = c.embedder.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if err := c.checkDimension(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// EmbedBatch returns one vector per text, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: empty input at position %d", models.ErrEmbedding, i)
		}
	}

	var vectors [][]float32
	err := helper.Retry(ctx, c.maxRetries, func() error {
		var err error
		vectors, err = c.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbedding, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := c.checkDimension(v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// GenerateEmbedding embeds the chunks and pairs each chunk with its vector.
func (c *Client) GenerateEmbedding(ctx context.Context, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := c.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	chunkEmbeddings := make([]models.ChunkEmbedding, len(chunks))
	for i, chunk := range chunks {
		chunkEmbeddings[i] = models.ChunkEmbedding{
			Content:        chunk.Content,
			Embedding:      vectors[i],
			SourceFilename: chunk.SourceFilename,
			PageNumber:     chunk.PageNumber,
			ChunkID:        chunk.ChunkID,
		}
	}
	return chunkEmbeddings, nil
}

func (c *Client) checkDimension(vector []float32) error {
	n := int64(len(vector))
	if n == 0 {
		return fmt.Errorf("%w: model %s returned an empty vector", models.ErrEmbedding, c.model)
	}
	if c.dimension.CompareAndSwap(0, n) {
		return nil
	}
	if want := c.dimension.Load(); want != n {
		return fmt.Errorf("%w: vector dimension changed from %d to %d", models.ErrEmbedding, want, n)
	}
	return nil
}
