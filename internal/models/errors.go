package models

import "errors"

// Error kinds shared by the pipeline stages. Components wrap them with fmt.Errorf("%w: ...").
var (
	// ErrLoad means the source document is missing, unreadable, corrupt or empty.
	ErrLoad = errors.New("load error")
	// ErrEmbedding means the embedding model failed or the input was malformed.
	ErrEmbedding = errors.New("embedding error")
	// ErrIndex means the vector index was misused, e.g. queried before it was built.
	ErrIndex = errors.New("index error")
	// ErrTemplate means the prompt template is missing a required placeholder.
	ErrTemplate = errors.New("template error")
	// ErrLLM covers network, authentication and provider failures of the chat-completion call.
	ErrLLM = errors.New("llm error")
)
