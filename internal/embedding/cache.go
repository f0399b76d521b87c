package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"go.etcd.io/bbolt"
)

// Cache persists vectors on disk so restarts do not re-embed an unchanged document.
// Buckets are per model name, keys are sha256(text).
type Cache struct {
	db *bbolt.DB
}

// OpenCache opens or creates the bbolt file at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(hex.EncodeToString(sum[:]))
}

// Get returns the cached vector for text under model.
func (c *Cache) Get(model, text string) ([]float32, bool) {
	var vector []float32
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(model))
		if b == nil {
			return nil
		}
		data := b.Get(cacheKey(text))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &vector)
	})
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("Ignoring unreadable embedding cache entry")
		return nil, false
	}
	return vector, vector != nil
}

// Len returns the number of vectors cached under model.
func (c *Cache) Len(model string) int {
	n := 0
	c.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(model)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

// Put stores vectors for texts under model in a single transaction.
func (c *Cache) Put(model string, texts []string, vectors [][]float32) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(model))
		if err != nil {
			return err
		}
		for i, text := range texts {
			data, err := json.Marshal(vectors[i])
			if err != nil {
				return err
			}
			if err := b.Put(cacheKey(text), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// CachedEmbedder serves vectors from the cache and embeds only the misses.
type CachedEmbedder struct {
	inner embeddings.Embedder
	cache *Cache
	model string
}

var _ embeddings.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner embeddings.Embedder, cache *Cache, model string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, model: model}
}

func (e *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if v, ok := e.cache.Get(e.model, text); ok {
			vectors[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	computed, err := e.inner.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missTexts) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(computed), len(missTexts))
	}
	for j, i := range missIdx {
		vectors[i] = computed[j]
	}
	if err := e.cache.Put(e.model, missTexts, computed); err != nil {
		log.Warn().Err(err).Msg("Failed to store embeddings in cache")
	}

	log.Debug().Int("cached", len(texts)-len(missTexts)).Int("computed", len(missTexts)).Msg("Embedded documents")
	return vectors, nil
}

// EmbedQuery reads the cache but never writes to it, so questions do not grow the file.
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(e.model, text); ok {
		return v, nil
	}
	return e.inner.EmbedQuery(ctx, text)
}
