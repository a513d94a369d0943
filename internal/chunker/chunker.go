// Package chunker splits cleaned document text into overlapping,
// sentence-aware segments.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docquery/docquery/internal/core"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// boundaryWindow is how far back from a window's end we look for a
// sentence-terminating period.
const boundaryWindow = 100

// Chunker produces overlapping chunks of a fixed target size.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d for size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk walks text in windows of the target size, snapping each non-final
// window back to the last period found within the trailing boundaryWindow
// characters when that still leaves at least half the window. Whitespace-only
// windows are discarded. Output order is document order.
func (c *Chunker) Chunk(text string) []core.Chunk {
	var chunks []core.Chunk

	start := 0
	for start < len(text) {
		end := start + c.size

		if end < len(text) {
			searchStart := start + c.size - boundaryWindow
			if searchStart < start {
				searchStart = start
			}
			if p := strings.LastIndex(text[searchStart:end], "."); p >= 0 {
				sentenceEnd := searchStart + p
				if sentenceEnd > start+c.size/2 {
					end = sentenceEnd + 1
				}
			}
		}

		cut := end
		if cut > len(text) {
			cut = len(text)
		}
		content := strings.TrimSpace(text[start:cut])
		if content != "" {
			chunks = append(chunks, core.Chunk{
				Content: content,
				ChunkID: uuid.New().String(),
				Position: core.Position{
					Start: start,
					End:   cut,
				},
				Metadata: map[string]interface{}{
					"length": len(content),
				},
			})
		}

		next := end - c.overlap
		if next >= len(text) {
			break
		}
		// Snapped boundaries can land close to start when overlap is large;
		// force forward progress so the walk always terminates.
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}
