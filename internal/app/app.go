// Package app owns every long-lived handle of the service. One App is built at startup
// and passed by reference to the HTTP server and the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"resume-rag/internal/chromemdb"
	"resume-rag/internal/config"
	"resume-rag/internal/db"
	"resume-rag/internal/embedding"
	"resume-rag/internal/helper"
	"resume-rag/internal/llmservice"
	"resume-rag/internal/models"
	"resume-rag/internal/parser"
	"resume-rag/internal/prompt"
	"resume-rag/internal/rag"
)

// VectorIndex is implemented by the in-memory and the pgvector backends.
type VectorIndex interface {
	Build(ctx context.Context, entries []models.ChunkEmbedding) error
	Query(ctx context.Context, vector []float32, k int) ([]models.RetrievedChunk, error)
	Count() int
}

type App struct {
	Config   *config.Config
	Chunks   []models.Chunk
	Embedder *embedding.Client
	Index    VectorIndex
	LLM      *llmservice.Client
	RAG      *rag.RAG

	closers []io.Closer
}

type options struct {
	embedder  embeddings.Embedder
	generator llmservice.Generator
	progress  func(done, total int)
	indexOnly bool
}

type Option func(*options)

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e embeddings.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithGenerator replaces the configured chat-completion provider.
func WithGenerator(g llmservice.Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// WithProgress is called after every embedded batch.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// IndexOnly builds the embeddings and the index without a chat model, leaving RAG and
// LLM nil.
func IndexOnly() Option {
	return func(o *options) {
		o.indexOnly = true
	}
}

// New loads the document, embeds it, builds the index and wires the orchestrator. Any
// failure releases what was already opened and returns the error; no partially built
// App is ever returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg}
	if err := a.init(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, o *options) error {
	start := time.Now()
	cfg := a.Config

	chunks, err := parser.ParseDocument(cfg.Document.Path, &cfg.RAG)
	if err != nil {
		return err
	}
	a.Chunks = chunks

	builder, err := newPromptBuilder(cfg)
	if err != nil {
		return err
	}

	if !o.indexOnly {
		a.LLM, err = newLLM(&cfg.InferenceLLM, o.generator)
		if err != nil {
			return err
		}
	}

	a.Embedder, err = a.newEmbedder(&cfg.EmbedLLM, cfg.RAG.EmbeddingCachePath, o.embedder)
	if err != nil {
		return err
	}

	entries, err := a.embedChunks(ctx, cfg.EmbedLLM.BatchSize, o.progress)
	if err != nil {
		return err
	}

	a.Index, err = a.newIndex(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.Index.Build(ctx, entries); err != nil {
		return err
	}

	if !o.indexOnly {
		a.RAG = rag.NewRAG(a.Index, a.Embedder, a.LLM, builder, cfg.RAG.TopK)
	}
	log.Info().
		Str("document", cfg.Document.Path).
		Int("chunks", len(chunks)).
		Str("backend", cfg.RAG.Backend).
		Dur("elapsed", time.Since(start)).
		Msg("Service initialized")
	return nil
}

func newPromptBuilder(cfg *config.Config) (*prompt.Builder, error) {
	template, err := cfg.PromptTemplate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTemplate, err)
	}
	if template == "" {
		template = models.ResumePrompt(cfg.RAG.Subject)
	}
	return prompt.NewBuilder(template)
}

func newLLM(llmConfig *config.LLMConfig, generator llmservice.Generator) (*llmservice.Client, error) {
	if generator == nil {
		return llmservice.NewFromConfig(llmConfig)
	}
	return llmservice.New(generator, llmConfig.Model, llmConfig.Temperature,
		llmservice.WithMaxRetries(llmConfig.MaxRetries),
		llmservice.WithRateLimit(llmConfig.RequestsPerSecond),
	), nil
}

func (a *App) newEmbedder(llmConfig *config.LLMConfig, cachePath string, embedder embeddings.Embedder) (*embedding.Client, error) {
	var cache *embedding.Cache
	if cachePath != "" {
		if err := helper.CreateFolder(filepath.Dir(cachePath)); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
		}
		var err error
		if cache, err = embedding.OpenCache(cachePath); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
		}
		a.closers = append(a.closers, cache)
	}
	return embedding.NewFromConfig(llmConfig, embedder, cache)
}

func (a *App) embedChunks(ctx context.Context, batchSize int, progress func(done, total int)) ([]models.ChunkEmbedding, error) {
	total := len(a.Chunks)
	if batchSize <= 0 {
		batchSize = total
	}

	entries := make([]models.ChunkEmbedding, 0, total)
	for i := 0; i < total; i += batchSize {
		end := min(i+batchSize, total)
		batch, err := a.Embedder.GenerateEmbedding(ctx, a.Chunks[i:end])
		if err != nil {
			return nil, err
		}
		entries = append(entries, batch...)
		if progress != nil {
			progress(end, total)
		}
		log.Debug().Int("done", end).Int("total", total).Msg("Embedded chunks")
	}
	return entries, nil
}

func (a *App) newIndex(ctx context.Context, cfg *config.Config) (VectorIndex, error) {
	switch cfg.RAG.Backend {
	case config.BackendPgvector:
		store, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	case config.BackendMemory, "":
		return chromemdb.NewVectorDBManager(cfg.RAG.CollectionName, a.Embedder.Embed), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", models.ErrIndex, cfg.RAG.Backend)
	}
}

// Close releases the embedding cache and database handles in reverse opening order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
