package core

import "context"

// Extractor fetches a document and returns its cleaned text.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Embedder turns texts into fixed-dimension vectors. Implementations must be
// deterministic for identical input.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the fixed embedding dimension for this deployment.
	Dimension() int
}

// Completer sends a prompt to the language model and returns the raw
// completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// Backend is one vector storage/search strategy. The index layer treats all
// backends polymorphically and never special-cases identity beyond
// availability.
type Backend interface {
	Name() string
	// Store persists records with their precomputed vectors.
	Store(ctx context.Context, records []EmbeddingRecord, vectors [][]float32) error
	// Search returns ranked results for a query vector. Filters are
	// exact-match over record fields; how they are applied (server-side or
	// client-side) is backend-specific.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]SearchResult, error)
	// Delete removes every record belonging to documentID.
	Delete(ctx context.Context, documentID string) error
	Stats(ctx context.Context) BackendStats
}
