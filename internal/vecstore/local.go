package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/logger"
)

const (
	localBackendName = "local"

	metadataFile = "metadata.json"
	vectorsFile  = "vectors.json"
)

// LocalBackend is a flat in-memory index with on-disk persistence. Search is
// brute-force cosine over normalized vectors; filters are applied client-side
// by exact match. Delete rebuilds the whole index from the surviving records
// because the flat layout has no delete-by-filter.
type LocalBackend struct {
	mu       sync.RWMutex
	dir      string
	dim      int
	embedder core.Embedder
	records  []core.EmbeddingRecord
	vectors  [][]float32
}

// NewLocal creates (or reopens) a local index rooted at dir. The embedder is
// needed for rebuild-on-delete, which recomputes embeddings from record
// content.
func NewLocal(dir string, embedder core.Embedder) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local index dir: %w", err)
	}

	b := &LocalBackend{
		dir:      dir,
		dim:      embedder.Dimension(),
		embedder: embedder,
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	logger.Info("Local vector index ready at %s with %d vectors", dir, len(b.vectors))
	return b, nil
}

// Name implements core.Backend.
func (b *LocalBackend) Name() string { return localBackendName }

// Store implements core.Backend. Vectors must already be normalized.
func (b *LocalBackend) Store(ctx context.Context, records []core.EmbeddingRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d != %d", len(records), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != b.dim {
			return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v), b.dim)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, records...)
	b.vectors = append(b.vectors, vectors...)
	return b.persistLocked()
}

// Search implements core.Backend.
func (b *LocalBackend) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]core.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.vectors) == 0 {
		return nil, nil
	}

	query := normalize(append([]float32(nil), vector...))

	type scored struct {
		idx   int
		score float32
	}
	candidates := make([]scored, 0, len(b.vectors))
	for i := range b.vectors {
		if !matchesFilter(b.records[i], filter) {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: dot(b.vectors[i], query)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if topK < len(candidates) {
		candidates = candidates[:topK]
	}

	results := make([]core.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		rec := b.records[cand.idx]
		results = append(results, core.SearchResult{
			Content:  rec.Content,
			Score:    cand.score,
			Source:   rec.DocumentID,
			Metadata: recordMetadata(rec),
		})
	}
	return results, nil
}

// Delete implements core.Backend. It drops the document's records and
// rebuilds the flat index by re-embedding the remaining content. The rebuild
// holds the write lock for its whole duration.
func (b *LocalBackend) Delete(ctx context.Context, documentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.records[:0:0]
	for _, rec := range b.records {
		if rec.DocumentID != documentID {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(b.records) {
		return nil
	}
	b.records = kept

	if len(b.records) == 0 {
		b.vectors = nil
		return b.persistLocked()
	}

	texts := make([]string, len(b.records))
	for i, rec := range b.records {
		texts[i] = rec.Content
	}
	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to rebuild local index: %w", err)
	}
	for i := range vectors {
		vectors[i] = normalize(vectors[i])
	}
	b.vectors = vectors
	return b.persistLocked()
}

// Stats implements core.Backend.
func (b *LocalBackend) Stats(ctx context.Context) core.BackendStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return core.BackendStats{
		Name:        localBackendName,
		Available:   true,
		VectorCount: int64(len(b.vectors)),
		Extra: map[string]interface{}{
			"dimension": b.dim,
			"directory": b.dir,
		},
	}
}

func (b *LocalBackend) load() error {
	metaPath := filepath.Join(b.dir, metadataFile)
	vecPath := filepath.Join(b.dir, vectorsFile)

	metaData, metaErr := os.ReadFile(metaPath)
	vecData, vecErr := os.ReadFile(vecPath)
	if os.IsNotExist(metaErr) || os.IsNotExist(vecErr) {
		return nil
	}
	if metaErr != nil {
		return fmt.Errorf("failed to read local index metadata: %w", metaErr)
	}
	if vecErr != nil {
		return fmt.Errorf("failed to read local index vectors: %w", vecErr)
	}

	var records []core.EmbeddingRecord
	if err := json.Unmarshal(metaData, &records); err != nil {
		return fmt.Errorf("failed to decode local index metadata: %w", err)
	}
	var vectors [][]float32
	if err := json.Unmarshal(vecData, &vectors); err != nil {
		return fmt.Errorf("failed to decode local index vectors: %w", err)
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("local index corrupt: %d records but %d vectors", len(records), len(vectors))
	}

	b.records = records
	b.vectors = vectors
	return nil
}

// persistLocked writes both files through temp-and-rename so a crash cannot
// leave a half-written index. Caller must hold the write lock.
func (b *LocalBackend) persistLocked() error {
	if err := writeJSON(filepath.Join(b.dir, metadataFile), b.records); err != nil {
		return err
	}
	return writeJSON(filepath.Join(b.dir, vectorsFile), b.vectors)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// matchesFilter reports whether rec satisfies every filter key exactly.
func matchesFilter(rec core.EmbeddingRecord, filter map[string]string) bool {
	for key, want := range filter {
		var got string
		switch key {
		case "document_id":
			got = rec.DocumentID
		case "chunk_id":
			got = rec.ChunkID
		case "vector_id":
			got = rec.VectorID
		default:
			raw, ok := rec.Metadata[key]
			if !ok {
				return false
			}
			got = fmt.Sprint(raw)
		}
		if got != want {
			return false
		}
	}
	return true
}

func recordMetadata(rec core.EmbeddingRecord) map[string]interface{} {
	meta := map[string]interface{}{
		"id":          rec.VectorID,
		"document_id": rec.DocumentID,
		"chunk_id":    rec.ChunkID,
		"token_count": rec.TokenCount,
	}
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	return meta
}
