package models

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content        string `json:"content"`
	PageNumber     int    `json:"page_number"`
	ChunkID        int    `json:"chunk_id"`
	SourceFilename string `json:"source_filename"`
}

// ChunkEmbedding pairs a chunk with the vector computed for it at index-build time.
type ChunkEmbedding struct {
	Content        string
	Embedding      []float32
	SourceFilename string
	PageNumber     int
	ChunkID        int
}

// Chunk returns the chunk part of the entry.
func (ce ChunkEmbedding) Chunk() Chunk {
	return Chunk{
		Content:        ce.Content,
		PageNumber:     ce.PageNumber,
		ChunkID:        ce.ChunkID,
		SourceFilename: ce.SourceFilename,
	}
}

// RetrievedChunk is a chunk returned by the vector index with its cosine similarity to the query.
type RetrievedChunk struct {
	Chunk
	Similarity float32 `json:"similarity"`
}

type PromptResponse struct {
	Query   string           `json:"query"`
	Sources []RetrievedChunk `json:"sources"`
	Content string           `json:"content"`
}
