package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/logger"
)

// Field names for the Milvus collection
const (
	FieldID         = "id"
	FieldDocumentID = "document_id"
	FieldChunkID    = "chunk_id"
	FieldContent    = "content"
	FieldTokenCount = "token_count"
	FieldMetadata   = "metadata"
	FieldEmbedding  = "embedding"
)

// CollectionName is the single collection holding all document chunks.
const CollectionName = "document_chunks"

// milvusOpTimeout bounds every individual Milvus call.
const milvusOpTimeout = 15 * time.Second

// remoteContentLimit truncates stored content for retrieval display; the
// local backend keeps the full text.
const remoteContentLimit = 1000

const milvusBackendName = "milvus"

// MilvusBackend is the primary remote ANN backend.
type MilvusBackend struct {
	client *milvusclient.Client
	dim    int
}

// NewMilvus connects to Milvus and ensures the chunk collection exists with a
// COSINE HNSW index, loaded for search.
func NewMilvus(ctx context.Context, addr string, dim int) (*MilvusBackend, error) {
	logger.Info("Connecting to Milvus at %s with dimension %d", addr, dim)

	ctx, cancel := context.WithTimeout(ctx, milvusOpTimeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Milvus at %s: %v", core.ErrBackendUnavailable, addr, err)
	}

	b := &MilvusBackend{client: c, dim: dim}
	if err := b.ensureCollection(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return b, nil
}

// Name implements core.Backend.
func (b *MilvusBackend) Name() string { return milvusBackendName }

func (b *MilvusBackend) ensureCollection(ctx context.Context) error {
	exists, err := b.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(CollectionName))
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: CollectionName,
			Description:    "Document chunk vectors for retrieval",
			Fields: []*entity.Field{
				{
					Name:       FieldID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "255"},
				},
				{
					Name:       FieldDocumentID,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "255"},
				},
				{
					Name:       FieldChunkID,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "255"},
				},
				{
					Name:       FieldContent,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "65535"},
				},
				{
					Name:     FieldTokenCount,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     FieldMetadata,
					DataType: entity.FieldTypeJSON,
				},
				{
					Name:       FieldEmbedding,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": fmt.Sprintf("%d", b.dim)},
				},
			},
		}

		if err := b.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(CollectionName, schema)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		if _, err := b.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(CollectionName, FieldEmbedding, idx)); err != nil {
			return fmt.Errorf("failed to create index on embedding field: %w", err)
		}

		logger.Info("Created collection: %s", CollectionName)
	}

	if _, err := b.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(CollectionName)); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", CollectionName, err)
	}
	return nil
}

// Store implements core.Backend.
func (b *MilvusBackend) Store(ctx context.Context, records []core.EmbeddingRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d != %d", len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, milvusOpTimeout)
	defer cancel()

	ids := make([]string, len(records))
	docIDs := make([]string, len(records))
	chunkIDs := make([]string, len(records))
	contents := make([]string, len(records))
	tokenCounts := make([]int64, len(records))
	metadatas := make([][]byte, len(records))
	for i, rec := range records {
		ids[i] = rec.VectorID
		docIDs[i] = rec.DocumentID
		chunkIDs[i] = rec.ChunkID
		content := rec.Content
		if len(content) > remoteContentLimit {
			content = content[:remoteContentLimit]
		}
		contents[i] = content
		tokenCounts[i] = int64(rec.TokenCount)
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		data, err := json.Marshal(meta)
		if err != nil {
			data = []byte("{}")
		}
		metadatas[i] = data
	}

	cols := []column.Column{
		column.NewColumnVarChar(FieldID, ids),
		column.NewColumnVarChar(FieldDocumentID, docIDs),
		column.NewColumnVarChar(FieldChunkID, chunkIDs),
		column.NewColumnVarChar(FieldContent, contents),
		column.NewColumnInt64(FieldTokenCount, tokenCounts),
		column.NewColumnJSONBytes(FieldMetadata, metadatas),
		column.NewColumnFloatVector(FieldEmbedding, b.dim, vectors),
	}

	if _, err := b.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(CollectionName, cols...)); err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}
	return nil
}

// Search implements core.Backend. Filters are translated to a server-side
// boolean expression.
func (b *MilvusBackend) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]core.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	ctx, cancel := context.WithTimeout(ctx, milvusOpTimeout)
	defer cancel()

	opt := milvusclient.NewSearchOption(CollectionName, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldEmbedding).
		WithOutputFields(FieldID, FieldDocumentID, FieldChunkID, FieldContent, FieldTokenCount, FieldMetadata)
	if expr := filterExpr(filter); expr != "" {
		opt = opt.WithFilter(expr)
	}

	resultSets, err := b.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	if len(resultSets) == 0 {
		return nil, nil
	}

	rs := resultSets[0]
	results := make([]core.SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		meta := map[string]interface{}{}
		if metaCol, ok := rs.GetColumn(FieldMetadata).(*column.ColumnJSONBytes); ok && i < len(metaCol.Data()) {
			_ = json.Unmarshal(metaCol.Data()[i], &meta)
		}
		for name, key := range map[string]string{
			FieldID:         "id",
			FieldDocumentID: "document_id",
			FieldChunkID:    "chunk_id",
		} {
			if col := rs.GetColumn(name); col != nil {
				if v, err := col.GetAsString(i); err == nil {
					meta[key] = v
				}
			}
		}
		if col := rs.GetColumn(FieldTokenCount); col != nil {
			if v, err := col.GetAsInt64(i); err == nil {
				meta["token_count"] = int(v)
			}
		}

		var content string
		if col := rs.GetColumn(FieldContent); col != nil {
			content, _ = col.GetAsString(i)
		}
		var source string
		if v, ok := meta["document_id"].(string); ok {
			source = v
		}
		var score float32
		if i < len(rs.Scores) {
			score = rs.Scores[i]
		}

		results = append(results, core.SearchResult{
			Content:  content,
			Score:    score,
			Source:   source,
			Metadata: meta,
		})
	}
	return results, nil
}

// Delete implements core.Backend using a server-side filter expression.
func (b *MilvusBackend) Delete(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, milvusOpTimeout)
	defer cancel()

	expr := filterExpr(map[string]string{FieldDocumentID: documentID})
	if _, err := b.client.Delete(ctx, milvusclient.NewDeleteOption(CollectionName).WithExpr(expr)); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// Stats implements core.Backend.
func (b *MilvusBackend) Stats(ctx context.Context) core.BackendStats {
	ctx, cancel := context.WithTimeout(ctx, milvusOpTimeout)
	defer cancel()

	stats := core.BackendStats{Name: milvusBackendName, Available: true}
	raw, err := b.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(CollectionName))
	if err != nil {
		stats.Extra = map[string]interface{}{"error": err.Error()}
		return stats
	}
	if rc, ok := raw["row_count"]; ok {
		if n, err := strconv.ParseInt(rc, 10, 64); err == nil {
			stats.VectorCount = n
		}
	}
	stats.Extra = map[string]interface{}{"dimension": b.dim}
	return stats
}

// Close releases the Milvus connection.
func (b *MilvusBackend) Close(ctx context.Context) error {
	return b.client.Close(ctx)
}

// filterExpr builds a Milvus boolean expression from exact-match filters.
// Known schema fields are addressed directly, anything else through the JSON
// metadata column. Keys are emitted in sorted order so expressions are stable.
func filterExpr(filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(filter[k], `"`, `\"`)
		switch k {
		case FieldID, FieldDocumentID, FieldChunkID:
			parts = append(parts, fmt.Sprintf(`%s == "%s"`, k, v))
		default:
			parts = append(parts, fmt.Sprintf(`%s["%s"] == "%s"`, FieldMetadata, k, v))
		}
	}
	return strings.Join(parts, " && ")
}
