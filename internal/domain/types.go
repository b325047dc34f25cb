package domain

import (
	"context"
	"time"
)

// Chunk is a bounded slice of document text used as the retrieval unit.
// Text never contains a newline.
type Chunk struct {
	Index int
	Text  string
}

// Hit is a stored chunk matched by a similarity query.
type Hit struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single (role, content) pair of a session.
type Turn struct {
	Role    Role
	Content string
	At      time.Time
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits extracted text into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(text string) []Chunk
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Retriever returns the chunk texts most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}
