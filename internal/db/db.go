package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

// Document is one indexed chunk. Similarity is only filled by Query.
type Document struct {
	bun.BaseModel  `bun:"table:resume_chunks,alias:d"`
	ID             int64           `bun:"id,pk,autoincrement"`
	Content        string          `bun:"content,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`
	SourceFilename string          `bun:"source_filename"`
	PageNumber     int             `bun:"page_number"`
	ChunkID        int             `bun:"chunk_id"`
	Similarity     float64         `bun:"similarity,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dbConfig *config.DatabaseConfig) (*sql.DB, error) {
	if dbConfig.DSN == "" {
		return nil, fmt.Errorf("%w: database dsn is empty", models.ErrIndex)
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dbConfig.DSN)}
	if dbConfig.Password != "" {
		opts = append(opts, pgdriver.WithPassword(dbConfig.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// Store is the pgvector-backed vector index. Like the in-memory index it is rebuilt
// from the document on every start.
type Store struct {
	db       *bun.DB
	building atomic.Bool
	built    atomic.Bool
	count    atomic.Int64
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Open connects to the configured database and checks it is reachable.
func Open(ctx context.Context, dbConfig *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(dbConfig)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, dbConfig.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to reach database: %v", models.ErrIndex, err)
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InitDB recreates the chunk table.
func InitDB(ctx context.Context, db bun.IDB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}
	if _, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateTable().Model((*Document)(nil)).Exec(ctx)
	return err
}

// Build replaces the table content with entries. Serial ids keep insertion order for
// tie breaking. It may only be called once per Store.
func (s *Store) Build(ctx context.Context, entries []models.ChunkEmbedding) (err error) {
	if !s.building.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: index already built", models.ErrIndex)
	}
	defer func() {
		if err != nil {
			s.building.Store(false)
		}
	}()

	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries to index", models.ErrIndex)
	}
	dim := len(entries[0].Embedding)
	docs := make([]Document, len(entries))
	for i, e := range entries {
		if len(e.Embedding) == 0 || len(e.Embedding) != dim {
			return fmt.Errorf("%w: entry %d has dimension %d, expected %d", models.ErrIndex, i, len(e.Embedding), dim)
		}
		docs[i] = Document{
			Content:        e.Content,
			Embedding:      pgvector.NewVector(e.Embedding),
			SourceFilename: e.SourceFilename,
			PageNumber:     e.PageNumber,
			ChunkID:        e.ChunkID,
		}
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := InitDB(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&docs).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to store documents: %v", models.ErrIndex, err)
	}

	s.count.Store(int64(len(docs)))
	s.built.Store(true)
	log.Info().Int("entries", len(docs)).Int("dimension", dim).Msg("Stored chunks in pgvector")
	return nil
}

func (s *Store) Count() int {
	return int(s.count.Load())
}

// Query returns up to k chunks by ascending cosine distance, ties broken by id.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievedChunk, error) {
	if !s.built.Load() {
		return nil, fmt.Errorf("%w: index queried before build", models.ErrIndex)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", models.ErrIndex, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", models.ErrIndex)
	}

	v := pgvector.NewVector(vector)
	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		Column("id", "content", "source_filename", "page_number", "chunk_id").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", v).
		OrderExpr("embedding <=> ?", v).
		OrderExpr("id ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search documents: %v", models.ErrIndex, err)
	}

	out := make([]models.RetrievedChunk, len(docs))
	for i, d := range docs {
		out[i] = models.RetrievedChunk{
			Chunk: models.Chunk{
				Content:        d.Content,
				PageNumber:     d.PageNumber,
				ChunkID:        d.ChunkID,
				SourceFilename: d.SourceFilename,
			},
			Similarity: float32(d.Similarity),
		}
	}
	return out, nil
}
