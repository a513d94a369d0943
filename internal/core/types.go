package core

// Position locates a chunk inside the cleaned source text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is one sentence-aware segment of a document. Chunks are immutable
// once created; the vector index and the orchestrator only reference them.
type Chunk struct {
	Content  string                 `json:"content"`
	ChunkID  string                 `json:"chunk_id"`
	Position Position               `json:"position"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// EmbeddingRecord is the per-chunk entity both vector backends must agree on.
// VectorID is derived from (document_id, chunk_id) and stays stable for the
// lifetime of that pair.
type EmbeddingRecord struct {
	VectorID   string                 `json:"vector_id"`
	DocumentID string                 `json:"document_id"`
	ChunkID    string                 `json:"chunk_id"`
	Content    string                 `json:"content"`
	TokenCount int                    `json:"token_count"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult is an ephemeral ranked passage. Scores are cosine similarity,
// higher is more relevant, and comparable across backends.
type SearchResult struct {
	Content  string                 `json:"content"`
	Score    float32                `json:"score"`
	Source   string                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// QueryRequest is the produced interface's input: one document URL and the
// questions to answer against it.
type QueryRequest struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

// QueryResponse carries one answer per question, index-for-index, plus
// processing metadata.
type QueryResponse struct {
	Answers  []string               `json:"answers"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// BackendStats reports counts and capacity metrics for one vector backend.
type BackendStats struct {
	Name        string                 `json:"name"`
	Available   bool                   `json:"available"`
	VectorCount int64                  `json:"vector_count"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// IndexStats aggregates per-backend stats for the whole vector index.
type IndexStats struct {
	Backends []BackendStats `json:"backends"`
}
