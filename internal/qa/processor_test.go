package qa

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/chunker"
	"github.com/docquery/docquery/internal/core"
)

type fakeExtractor struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeIndex struct {
	mu      sync.Mutex
	stored  map[string][]core.Chunk
	results []core.SearchResult
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		stored:  make(map[string][]core.Chunk),
		results: []core.SearchResult{{Content: "relevant passage", Score: 0.9, Source: "doc"}},
	}
}

func (f *fakeIndex) Store(ctx context.Context, documentID string, chunks []core.Chunk) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[documentID] = chunks
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = documentID + "_" + ch.ChunkID
	}
	return ids, nil
}

func (f *fakeIndex) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]core.SearchResult, error) {
	return f.results, nil
}

func (f *fakeIndex) Stats(ctx context.Context) core.IndexStats {
	return core.IndexStats{}
}

// scriptedCompleter routes prompts to handlers by prompt shape: compound
// batch prompts contain "Q1:", strict re-asks start with "Based strictly",
// everything else is a single-question prompt.
type scriptedCompleter struct {
	mu         sync.Mutex
	batchFn    func(prompt string, n int) (string, error)
	singleFn   func(prompt string) (string, error)
	strictFn   func(prompt string) (string, error)
	batchCalls int
	single     int
	strict     int
}

var batchQuestionRe = regexp.MustCompile(`(?m)^Q(\d+): (.+)$`)

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, maxTokens int, temp float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(prompt, "Q1:"):
		s.batchCalls++
		n := len(batchQuestionRe.FindAllString(prompt, -1))
		if s.batchFn != nil {
			return s.batchFn(prompt, n)
		}
		return echoBatchAnswers(prompt), nil
	case strings.HasPrefix(prompt, "Based strictly"):
		s.strict++
		if s.strictFn != nil {
			return s.strictFn(prompt)
		}
		return "Strict fallback answer with enough length.", nil
	default:
		s.single++
		if s.singleFn != nil {
			return s.singleFn(prompt)
		}
		return "Individual answer with enough length.", nil
	}
}

// echoBatchAnswers produces a well-formed marker response answering each
// embedded question with a recognizable string.
func echoBatchAnswers(prompt string) string {
	var sb strings.Builder
	for _, m := range batchQuestionRe.FindAllStringSubmatch(prompt, -1) {
		fmt.Fprintf(&sb, "A%s: Answer to %q from the policy.\n", m[1], m[2])
	}
	return sb.String()
}

func newTestProcessor(t *testing.T, ext *fakeExtractor, idx *fakeIndex, comp core.Completer) *Processor {
	t.Helper()
	ch, err := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)
	return NewProcessor(ext, ch, idx, comp)
}

func questionList(n int) []string {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf("question number %d", i)
	}
	return qs
}

func TestProcessAnswersInOrder(t *testing.T) {
	ext := &fakeExtractor{text: "The policy covers many situations. It has terms and conditions."}
	comp := &scriptedCompleter{}
	p := newTestProcessor(t, ext, newFakeIndex(), comp)

	for _, n := range []int{1, 3, 7, 20} {
		questions := questionList(n)
		resp := p.Process(context.Background(), "http://example.com/policy.pdf", questions)
		require.Len(t, resp.Answers, n)
		for i, answer := range resp.Answers {
			assert.Contains(t, answer, fmt.Sprintf("%q", questions[i]), "answer %d out of order for n=%d", i, n)
		}
	}
}

func TestProcessMetadata(t *testing.T) {
	ext := &fakeExtractor{text: "Policy text for the metadata test. More than one sentence."}
	idx := newFakeIndex()
	p := newTestProcessor(t, ext, idx, &scriptedCompleter{})

	resp := p.Process(context.Background(), "http://example.com/policy.pdf", questionList(2))
	require.Len(t, resp.Answers, 2)
	assert.NotEmpty(t, resp.Metadata["document_id"])
	assert.Equal(t, "http://example.com/policy.pdf", resp.Metadata["document_url"])
	assert.Equal(t, 2, resp.Metadata["total_questions"])
	assert.Equal(t, 1, resp.Metadata["chunk_count"])
	assert.Equal(t, 1, resp.Metadata["embedding_count"])
}

func TestProcessExtractionError(t *testing.T) {
	ext := &fakeExtractor{err: fmt.Errorf("%w: connection refused", core.ErrExtraction)}
	p := newTestProcessor(t, ext, newFakeIndex(), &scriptedCompleter{})

	resp := p.Process(context.Background(), "http://bad.example.com/doc.pdf", questionList(3))
	require.Len(t, resp.Answers, 3)
	for _, answer := range resp.Answers {
		assert.Contains(t, answer, "Error processing request")
	}
	assert.NotEmpty(t, resp.Metadata["error"])
}

func TestProcessCacheSkipsReextraction(t *testing.T) {
	ext := &fakeExtractor{text: "Cached document body. With a second sentence."}
	idx := newFakeIndex()
	p := newTestProcessor(t, ext, idx, &scriptedCompleter{})

	first := p.Process(context.Background(), "http://example.com/doc.pdf", questionList(1))
	second := p.Process(context.Background(), "http://example.com/doc.pdf", questionList(1))

	assert.Equal(t, 1, ext.callCount(), "second request must hit the chunk cache")
	assert.NotEqual(t, first.Metadata["document_id"], second.Metadata["document_id"])

	idx.mu.Lock()
	defer idx.mu.Unlock()
	require.Len(t, idx.stored, 2, "each ingestion stores under its own document id")
	var contents [][]string
	for _, chunks := range idx.stored {
		var cs []string
		for _, ch := range chunks {
			cs = append(cs, ch.Content)
		}
		contents = append(contents, cs)
	}
	assert.Equal(t, contents[0], contents[1])
}

func TestBatchFormatErrorFallsBackToIndividual(t *testing.T) {
	ext := &fakeExtractor{text: "Document text for fallback testing. It continues here."}
	comp := &scriptedCompleter{
		batchFn: func(prompt string, n int) (string, error) {
			return "The model ignored the marker format completely.", nil
		},
	}
	p := newTestProcessor(t, ext, newFakeIndex(), comp)

	resp := p.Process(context.Background(), "http://example.com/doc.pdf", questionList(3))
	require.Len(t, resp.Answers, 3)
	for _, answer := range resp.Answers {
		assert.Equal(t, "Individual answer with enough length.", answer)
	}
	assert.Equal(t, 1, comp.batchCalls)
	assert.Equal(t, 3, comp.single)
}

func TestBatchErrorFallsBackToIndividual(t *testing.T) {
	ext := &fakeExtractor{text: "Document text for the error path. Second sentence."}
	comp := &scriptedCompleter{
		batchFn: func(prompt string, n int) (string, error) {
			return "", fmt.Errorf("%w: rate limited", core.ErrLLM)
		},
	}
	p := newTestProcessor(t, ext, newFakeIndex(), comp)

	resp := p.Process(context.Background(), "http://example.com/doc.pdf", questionList(2))
	require.Len(t, resp.Answers, 2)
	for _, answer := range resp.Answers {
		assert.Equal(t, "Individual answer with enough length.", answer)
	}
}

func TestShortAnswerTriggersStrictReask(t *testing.T) {
	ext := &fakeExtractor{text: "Document text for the short answer path. Second sentence."}
	comp := &scriptedCompleter{
		batchFn: func(prompt string, n int) (string, error) {
			return "A1: ok", nil // well-formed but too short
		},
		singleFn: func(prompt string) (string, error) {
			return "nope", nil // still too short
		},
	}
	p := newTestProcessor(t, ext, newFakeIndex(), comp)

	resp := p.Process(context.Background(), "http://example.com/doc.pdf", questionList(1))
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "Strict fallback answer with enough length.", resp.Answers[0])
	assert.Equal(t, 1, comp.strict)
}

func TestAllAttemptsFailYieldErrorString(t *testing.T) {
	ext := &fakeExtractor{text: "Document text where the model is down. Second sentence."}
	failure := errors.New("model unavailable")
	comp := &scriptedCompleter{
		batchFn:  func(prompt string, n int) (string, error) { return "", failure },
		singleFn: func(prompt string) (string, error) { return "", failure },
		strictFn: func(prompt string) (string, error) { return "", failure },
	}
	p := newTestProcessor(t, ext, newFakeIndex(), comp)

	resp := p.Process(context.Background(), "http://example.com/doc.pdf", questionList(4))
	require.Len(t, resp.Answers, 4)
	for _, answer := range resp.Answers {
		assert.Equal(t, "Error: unable to generate an answer for this question.", answer)
	}
}

func TestClearCache(t *testing.T) {
	ext := &fakeExtractor{text: "Document to cache and clear. Second sentence."}
	p := newTestProcessor(t, ext, newFakeIndex(), &scriptedCompleter{})

	p.Process(context.Background(), "http://example.com/doc.pdf", questionList(1))
	assert.Equal(t, 1, p.ClearCache())

	p.Process(context.Background(), "http://example.com/doc.pdf", questionList(1))
	assert.Equal(t, 2, ext.callCount(), "clearing the cache forces re-extraction")
}
