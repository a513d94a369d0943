// Package qa orchestrates the question-answering pipeline: document
// ingestion, retrieval, batched answer generation, and fallback recovery.
package qa

import (
	"sync"

	"github.com/docquery/docquery/internal/core"
)

// DocumentCache maps a document URL to its chunk sequence so a document is
// downloaded and chunked at most once per process. Entries live until Clear.
type DocumentCache struct {
	mu      sync.RWMutex
	entries map[string][]core.Chunk
}

// NewDocumentCache creates an empty cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{entries: make(map[string][]core.Chunk)}
}

// Get returns the cached chunks for url, if present.
func (c *DocumentCache) Get(url string) ([]core.Chunk, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunks, ok := c.entries[url]
	return chunks, ok
}

// Put stores the chunks for url. When two ingestions of the same URL race,
// the first writer wins and the entry is never left half-written.
func (c *DocumentCache) Put(url string, chunks []core.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[url]; exists {
		return
	}
	c.entries[url] = chunks
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear empties the cache and returns how many entries were dropped.
func (c *DocumentCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string][]core.Chunk)
	return n
}
