package port

import "context"

// EmbeddingProvider is a single backend call. Implementations do not batch,
// retry or throttle; the gateway does.
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int

	ModelName() string
}
