package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"resume-rag/internal/models"
)

// VectorDBManager is the in-memory vector index. It is built once at startup and is
// read-only afterwards, so queries take no locks.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	embeddingFunc  chromem.EmbeddingFunc
	building       atomic.Bool // claimed by the first Build call
	built          atomic.Bool // set once the collection is queryable
}

// NewVectorDBManager creates an empty in-memory index. embeddingFunc is only consulted
// by chromem for documents without a precomputed vector; pass the same model that
// produced the stored vectors.
func NewVectorDBManager(collectionName string, embeddingFunc chromem.EmbeddingFunc) *VectorDBManager {
	if collectionName == "" {
		collectionName = models.DefaultCollection
	}
	return &VectorDBManager{
		db:             chromem.NewDB(),
		collectionName: collectionName,
		embeddingFunc:  embeddingFunc,
	}
}

// Build stores every entry in insertion order. It may only succeed once; a failed Build
// releases the index so it can be retried.
func (m *VectorDBManager) Build(ctx context.Context, entries []models.ChunkEmbedding) (err error) {
	if !m.building.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: index already built", models.ErrIndex)
	}
	defer func() {
		if err != nil {
			m.building.Store(false)
		}
	}()

	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries to index", models.ErrIndex)
	}
	dim := len(entries[0].Embedding)
	for i, e := range entries {
		if len(e.Embedding) == 0 || len(e.Embedding) != dim {
			return fmt.Errorf("%w: entry %d has dimension %d, expected %d", models.ErrIndex, i, len(e.Embedding), dim)
		}
	}

	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, m.embeddingFunc)
	if err != nil {
		return fmt.Errorf("%w: failed to create/get collection: %v", models.ErrIndex, err)
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   e.Content,
			Embedding: e.Embedding,
			Metadata: map[string]string{
				models.MetaSeq:        strconv.Itoa(i),
				models.MetaPageNumber: strconv.Itoa(e.PageNumber),
				models.MetaChunkID:    strconv.Itoa(e.ChunkID),
				models.MetaSourceFile: e.SourceFilename,
			},
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrIndex, err)
	}

	m.collection = c
	m.built.Store(true)
	log.Info().Str("collection", m.collectionName).Int("entries", len(entries)).Int("dimension", dim).Msg("Built vector index")
	return nil
}

// Count returns the number of indexed entries.
func (m *VectorDBManager) Count() int {
	if !m.built.Load() {
		return 0
	}
	return m.collection.Count()
}

// Query returns up to k entries ordered by descending cosine similarity to vector, ties
// broken by insertion order. The whole collection is scanned so ties at the k-th
// position resolve the same way for every k.
func (m *VectorDBManager) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievedChunk, error) {
	if !m.built.Load() {
		return nil, fmt.Errorf("%w: index queried before build", models.ErrIndex)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", models.ErrIndex, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", models.ErrIndex)
	}

	n := m.collection.Count()
	results, err := m.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrIndex, err)
	}

	retrieved := make([]models.RetrievedChunk, len(results))
	seqs := make([]int, len(results))
	for i, r := range results {
		seqs[i], _ = strconv.Atoi(r.Metadata[models.MetaSeq])
		page, _ := strconv.Atoi(r.Metadata[models.MetaPageNumber])
		chunkID, _ := strconv.Atoi(r.Metadata[models.MetaChunkID])
		retrieved[i] = models.RetrievedChunk{
			Chunk: models.Chunk{
				Content:        r.Content,
				PageNumber:     page,
				ChunkID:        chunkID,
				SourceFilename: r.Metadata[models.MetaSourceFile],
			},
			Similarity: r.Similarity,
		}
	}

	order := make([]int, len(retrieved))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := retrieved[order[a]], retrieved[order[b]]
		if ra.Similarity != rb.Similarity {
			return ra.Similarity > rb.Similarity
		}
		return seqs[order[a]] < seqs[order[b]]
	})

	out := make([]models.RetrievedChunk, 0, min(k, len(order)))
	for _, i := range order[:min(k, len(order))] {
		out = append(out, retrieved[i])
	}
	return out, nil
}
