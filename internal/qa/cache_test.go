package qa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/core"
)

func TestDocumentCache(t *testing.T) {
	c := NewDocumentCache()

	_, ok := c.Get("http://example.com/a.pdf")
	assert.False(t, ok)

	chunks := []core.Chunk{{Content: "first", ChunkID: "c1"}}
	c.Put("http://example.com/a.pdf", chunks)

	got, ok := c.Get("http://example.com/a.pdf")
	require.True(t, ok)
	assert.Equal(t, chunks, got)
	assert.Equal(t, 1, c.Len())
}

func TestDocumentCacheFirstWriterWins(t *testing.T) {
	c := NewDocumentCache()
	first := []core.Chunk{{Content: "first", ChunkID: "c1"}}
	second := []core.Chunk{{Content: "second", ChunkID: "c2"}}

	c.Put("url", first)
	c.Put("url", second)

	got, ok := c.Get("url")
	require.True(t, ok)
	assert.Equal(t, "first", got[0].Content)
}

func TestDocumentCacheClear(t *testing.T) {
	c := NewDocumentCache()
	c.Put("a", []core.Chunk{{Content: "a"}})
	c.Put("b", []core.Chunk{{Content: "b"}})

	assert.Equal(t, 2, c.Clear())
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	assert.Equal(t, 0, c.Clear())
}
