package chromemdb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-rag/internal/models"
)

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("documents must carry precomputed embeddings")
}

func entry(content string, page int, vector ...float32) models.ChunkEmbedding {
	return models.ChunkEmbedding{
		Content:        content,
		Embedding:      vector,
		SourceFilename: "resume.pdf",
		PageNumber:     page,
		ChunkID:        1,
	}
}

func newIndex(t *testing.T) *VectorDBManager {
	t.Helper()
	m := NewVectorDBManager("test", noEmbedding)
	err := m.Build(context.Background(), []models.ChunkEmbedding{
		entry("education", 1, 1, 0),
		entry("projects", 2, 0.8, 0.6),
		entry("education again", 3, 1, 0),
		entry("hobbies", 4, 0, 1),
	})
	require.NoError(t, err)
	return m
}

func contents(chunks []models.RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestQuery_OrderAndTies(t *testing.T) {
	m := newIndex(t)

	got, err := m.Query(context.Background(), []float32{1, 0}, 4)
	require.NoError(t, err)

	assert.Equal(t, []string{"education", "education again", "projects", "hobbies"}, contents(got))
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.InDelta(t, 0.8, got[2].Similarity, 1e-6)
	assert.Equal(t, 1, got[0].PageNumber)
	assert.Equal(t, 3, got[1].PageNumber)
	assert.Equal(t, "resume.pdf", got[0].SourceFilename)
	assert.Equal(t, 1, got[0].ChunkID)
}

func TestQuery_Deterministic(t *testing.T) {
	m := newIndex(t)
	ctx := context.Background()

	first, err := m.Query(ctx, []float32{0.6, 0.8}, 3)
	require.NoError(t, err)
	second, err := m.Query(ctx, []float32{0.6, 0.8}, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQuery_TopKPrefix(t *testing.T) {
	m := newIndex(t)
	ctx := context.Background()

	all, err := m.Query(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	for k := 1; k <= 4; k++ {
		got, err := m.Query(ctx, []float32{1, 0}, k)
		require.NoError(t, err)
		assert.Equal(t, all[:k], got, "k=%d", k)
	}
}

func TestQuery_FewerEntriesThanK(t *testing.T) {
	m := newIndex(t)

	got, err := m.Query(context.Background(), []float32{0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, "hobbies", got[0].Content)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
	}
}

func TestQuery_Concurrent(t *testing.T) {
	m := newIndex(t)
	ctx := context.Background()
	want, err := m.Query(ctx, []float32{0.8, 0.6}, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Query(ctx, []float32{0.8, 0.6}, 2)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestIndexMisuse(t *testing.T) {
	ctx := context.Background()

	m := NewVectorDBManager("", noEmbedding)
	_, err := m.Query(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, models.ErrIndex, "query before build")
	assert.Equal(t, 0, m.Count())

	assert.ErrorIs(t, m.Build(ctx, nil), models.ErrIndex, "empty build")
	assert.ErrorIs(t, m.Build(ctx, []models.ChunkEmbedding{
		entry("a", 1, 1, 0),
		entry("b", 2, 1, 0, 0),
	}), models.ErrIndex, "mixed dimensions")

	require.NoError(t, m.Build(ctx, []models.ChunkEmbedding{entry("a", 1, 1, 0)}))
	assert.Equal(t, 1, m.Count())
	assert.ErrorIs(t, m.Build(ctx, []models.ChunkEmbedding{entry("b", 1, 0, 1)}), models.ErrIndex, "second build")

	_, err = m.Query(ctx, []float32{1, 0}, 0)
	assert.ErrorIs(t, err, models.ErrIndex)
	_, err = m.Query(ctx, nil, 1)
	assert.ErrorIs(t, err, models.ErrIndex)
	_, err = m.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, models.ErrIndex, "dimension mismatch")
}

func TestBuild_ConcurrentCallsBuildOnce(t *testing.T) {
	m := NewVectorDBManager("", noEmbedding)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Build(context.Background(), []models.ChunkEmbedding{
				entry("a", 1, 1, 0),
				entry("b", 2, 0, 1),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrIndex)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, m.Count())
}

func TestBuild_RetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("", noEmbedding)

	require.ErrorIs(t, m.Build(ctx, []models.ChunkEmbedding{entry("a", 1, 1, 0), entry("b", 2, 1)}), models.ErrIndex)
	require.NoError(t, m.Build(ctx, []models.ChunkEmbedding{entry("a", 1, 1, 0)}))
	assert.Equal(t, 1, m.Count())
}
