package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/models"
)

const DefaultTopK = 4

// Pipeline stages reported by StageError.
const (
	StageEmbed    = "embed"
	StageRetrieve = "retrieve"
	StagePrompt   = "prompt"
	StageGenerate = "generate"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Query(ctx context.Context, vector []float32, k int) ([]models.RetrievedChunk, error)
}

type PromptBuilder interface {
	Build(chunks []models.RetrievedChunk, question string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StageError records which pipeline step failed. The wrapped error keeps its kind.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RAG answers questions about the indexed résumé. All fields are read-only after
// construction, so one RAG serves concurrent requests.
type RAG struct {
	index    Index
	embedder Embedder
	llm      Completer
	builder  PromptBuilder
	topK     int
}

func NewRAG(index Index, embedder Embedder, llm Completer, builder PromptBuilder, topK int) *RAG {
	if topK < 1 {
		topK = DefaultTopK
	}
	return &RAG{index: index, embedder: embedder, llm: llm, builder: builder, topK: topK}
}

func (r *RAG) TopK() int {
	return r.topK
}

// Query runs embed, retrieve, prompt and generate, and returns the answer together with
// the chunks it was conditioned on.
func (r *RAG) Query(ctx context.Context, query string) (*models.PromptResponse, error) {
	start := time.Now()

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &StageError{Stage: StageEmbed, Err: err}
	}

	sources, err := r.index.Query(ctx, queryEmbedding, r.topK)
	if err != nil {
		return nil, &StageError{Stage: StageRetrieve, Err: err}
	}
	log.Debug().Int("sources", len(sources)).Msg("Retrieved context")

	prompt, err := r.builder.Build(sources, query)
	if err != nil {
		return nil, &StageError{Stage: StagePrompt, Err: err}
	}

	answer, err := r.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, &StageError{Stage: StageGenerate, Err: err}
	}

	log.Info().Int("sources", len(sources)).Dur("elapsed", time.Since(start)).Msg("Answered question")
	return &models.PromptResponse{
		Query:   query,
		Sources: sources,
		Content: answer,
	}, nil
}

// Ask returns only the model's answer, unmodified.
func (r *RAG) Ask(ctx context.Context, question string) (string, error) {
	resp, err := r.Query(ctx, question)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
