package vecstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/logger"
)

// Index fans document chunks out to every configured backend and merges
// search results across them by score. Embeddings are computed exactly once
// per operation and shared by all backends.
type Index struct {
	embedder core.Embedder
	backends []core.Backend
}

// NewIndex builds the unified index over the given backends. At least one
// backend is required.
func NewIndex(embedder core.Embedder, backends ...core.Backend) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one vector backend is required")
	}
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	logger.Info("Vector index initialized with backends: %v", names)
	return &Index{embedder: embedder, backends: backends}, nil
}

// Store embeds the chunks once, writes the records to every backend, and
// returns the vector IDs it assigned. A backend that fails is logged and
// skipped; Store fails only when embedding fails or every backend rejects the
// write.
func (x *Index) Store(ctx context.Context, documentID string, chunks []core.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range vectors {
		vectors[i] = normalize(vectors[i])
	}

	records := make([]core.EmbeddingRecord, len(chunks))
	vectorIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		meta := map[string]interface{}{
			"position_start": ch.Position.Start,
			"position_end":   ch.Position.End,
		}
		for k, v := range ch.Metadata {
			meta[k] = v
		}
		records[i] = core.EmbeddingRecord{
			VectorID:   documentID + "_" + ch.ChunkID,
			DocumentID: documentID,
			ChunkID:    ch.ChunkID,
			Content:    ch.Content,
			TokenCount: estimateTokens(ch.Content),
			Metadata:   meta,
		}
		vectorIDs[i] = records[i].VectorID
	}

	stored := 0
	var lastErr error
	for _, b := range x.backends {
		if err := b.Store(ctx, records, vectors); err != nil {
			logger.Warn("Backend %s failed to store %d records: %v", b.Name(), len(records), err)
			lastErr = err
			continue
		}
		stored++
	}
	if stored == 0 {
		return nil, fmt.Errorf("all vector backends failed to store document %s: %w", documentID, lastErr)
	}
	logger.Debug("Stored %d chunks of document %s in %d/%d backends", len(chunks), documentID, stored, len(x.backends))
	return vectorIDs, nil
}

// Search embeds the query once and searches every backend, merging results by
// descending score and truncating to topK. A failing backend contributes zero
// results. When no backend returns anything the keyword responder answers
// instead, so the result is never empty.
func (x *Index) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]core.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		logger.Warn("Failed to embed query, using keyword fallback: %v", err)
		return fallbackSearch(query), nil
	}
	vector := normalize(vectors[0])

	var merged []core.SearchResult
	for _, b := range x.backends {
		results, err := b.Search(ctx, vector, topK, filter)
		if err != nil {
			logger.Warn("Backend %s search failed: %v", b.Name(), err)
			continue
		}
		merged = append(merged, results...)
	}

	if len(merged) == 0 {
		logger.Info("No vector results for query, using keyword fallback")
		return fallbackSearch(query), nil
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if topK < len(merged) {
		merged = merged[:topK]
	}
	return merged, nil
}

// Delete removes the document from every backend and reports whether all of
// them succeeded.
func (x *Index) Delete(ctx context.Context, documentID string) bool {
	ok := true
	for _, b := range x.backends {
		if err := b.Delete(ctx, documentID); err != nil {
			logger.Warn("Backend %s failed to delete document %s: %v", b.Name(), documentID, err)
			ok = false
		}
	}
	return ok
}

// Stats collects per-backend statistics.
func (x *Index) Stats(ctx context.Context) core.IndexStats {
	stats := core.IndexStats{Backends: make([]core.BackendStats, 0, len(x.backends))}
	for _, b := range x.backends {
		stats.Backends = append(stats.Backends, b.Stats(ctx))
	}
	return stats
}
