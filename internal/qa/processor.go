package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docquery/docquery/internal/chunker"
	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/llm"
	"github.com/docquery/docquery/internal/logger"
)

const (
	// batchSize is how many questions share one compound completion call.
	batchSize = 3

	// workerWidth bounds how many batches run concurrently.
	workerWidth = 2

	// batchTopK is the retrieval depth per question inside a batch.
	batchTopK = 3

	// individualTopK is the deeper retrieval used when a question is
	// reprocessed on its own.
	individualTopK = 5

	// minAnswerLength is the shortest answer accepted from a batch; anything
	// shorter is retried individually.
	minAnswerLength = 10

	singleMaxTokens = 500
	temperature     = 0.1
)

// SearchIndex is the vector index surface the processor depends on.
type SearchIndex interface {
	Store(ctx context.Context, documentID string, chunks []core.Chunk) ([]string, error)
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]core.SearchResult, error)
	Stats(ctx context.Context) core.IndexStats
}

// Processor drives the full pipeline for one request: ingest the document,
// retrieve context per question, generate answers in concurrent batches, and
// recover per question when a batch fails.
type Processor struct {
	extractor core.Extractor
	chunker   *chunker.Chunker
	index     SearchIndex
	completer core.Completer
	cache     *DocumentCache
}

// NewProcessor wires the pipeline together.
func NewProcessor(extractor core.Extractor, ch *chunker.Chunker, index SearchIndex, completer core.Completer) *Processor {
	return &Processor{
		extractor: extractor,
		chunker:   ch,
		index:     index,
		completer: completer,
		cache:     NewDocumentCache(),
	}
}

// Process answers every question against the document at documentURL. The
// response always carries exactly one answer per question, in question order.
// Failures never surface as an error return: an unreadable document produces
// the same error string for every slot, and any later failure degrades to an
// error string for just the affected questions.
func (p *Processor) Process(ctx context.Context, documentURL string, questions []string) core.QueryResponse {
	start := time.Now()

	chunks, err := p.ingest(ctx, documentURL)
	if err != nil {
		logger.Error("Failed to ingest document %s: %v", documentURL, err)
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = fmt.Sprintf("Error processing request: %v", err)
		}
		return core.QueryResponse{
			Answers: answers,
			Metadata: map[string]interface{}{
				"error":           err.Error(),
				"processing_time": time.Since(start).Seconds(),
				"processed_at":    time.Now().UTC().Format(time.RFC3339),
			},
		}
	}

	// Each ingestion gets a fresh document id even on a cache hit, so
	// repeated requests never collide in the index.
	documentID := uuid.NewString()
	vectorIDs, err := p.index.Store(ctx, documentID, chunks)
	if err != nil {
		// Retrieval degrades to the keyword responder, which still answers.
		logger.Warn("Failed to store chunks for document %s: %v", documentID, err)
	}

	answers := p.answer(ctx, questions, documentID)

	return core.QueryResponse{
		Answers: answers,
		Metadata: map[string]interface{}{
			"document_id":     documentID,
			"document_url":    documentURL,
			"chunk_count":     len(chunks),
			"embedding_count": len(vectorIDs),
			"total_questions": len(questions),
			"processing_time": time.Since(start).Seconds(),
			"processed_at":    time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// ingest returns the chunk sequence for the document, downloading and
// chunking only on a cache miss.
func (p *Processor) ingest(ctx context.Context, documentURL string) ([]core.Chunk, error) {
	if chunks, ok := p.cache.Get(documentURL); ok {
		logger.Debug("Using %d cached chunks for %s", len(chunks), documentURL)
		return chunks, nil
	}

	text, err := p.extractor.Extract(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	chunks := p.chunker.Chunk(text)
	logger.Info("Chunked document %s into %d chunks", documentURL, len(chunks))

	p.cache.Put(documentURL, chunks)
	return chunks, nil
}

// answer processes the questions in fixed-size batches on a bounded worker
// pool. Every answer is written into its absolute slot, so concurrency never
// reorders the output.
func (p *Processor) answer(ctx context.Context, questions []string, documentID string) []string {
	answers := make([]string, len(questions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerWidth)
	for start := 0; start < len(questions); start += batchSize {
		end := start + batchSize
		if end > len(questions) {
			end = len(questions)
		}
		start := start
		g.Go(func() error {
			p.processBatch(ctx, questions[start:end], start, documentID, answers)
			return nil
		})
	}
	_ = g.Wait()
	return answers
}

// processBatch answers one batch with a single compound completion call and
// writes results into answers by absolute index. Any failure downgrades the
// affected questions to individual processing; nothing escapes the batch.
func (p *Processor) processBatch(ctx context.Context, batch []string, offset int, documentID string, answers []string) {
	filter := map[string]string{"document_id": documentID}

	contexts := make([][]core.SearchResult, len(batch))
	for i, q := range batch {
		results, err := p.index.Search(ctx, llm.EnhanceQuery(q), batchTopK, filter)
		if err != nil {
			logger.Warn("Search failed for question %d: %v", offset+i, err)
		}
		contexts[i] = results
	}

	prompt := llm.BatchPrompt(batch, contexts)
	raw, err := p.completer.Complete(ctx, prompt, llm.BatchMaxTokens(len(batch)), temperature)
	if err != nil {
		logger.Warn("Batch completion failed for questions %d-%d, reprocessing individually: %v",
			offset, offset+len(batch)-1, err)
		p.processIndividually(ctx, batch, offset, documentID, answers)
		return
	}

	parsed := ParseBatchAnswers(raw, len(batch))
	if err := BatchError(parsed); err != nil {
		logger.Warn("Batch response for questions %d-%d failed to parse, reprocessing individually: %v",
			offset, offset+len(batch)-1, err)
		p.processIndividually(ctx, batch, offset, documentID, answers)
		return
	}

	for i, answer := range parsed {
		if answer == NoAnswerProvided || len(answer) < minAnswerLength {
			logger.Debug("Answer %d too short (%d chars), reprocessing individually", offset+i, len(answer))
			answers[offset+i] = p.answerSingle(ctx, batch[i], documentID)
			continue
		}
		answers[offset+i] = answer
	}
}

func (p *Processor) processIndividually(ctx context.Context, batch []string, offset int, documentID string, answers []string) {
	for i, q := range batch {
		answers[offset+i] = p.answerSingle(ctx, q, documentID)
	}
}

// answerSingle answers one question with deeper retrieval and its own
// completion call, re-asking once with a strict prompt when the first answer
// comes back empty or truncated. Exhausting both attempts yields an explicit
// error string for this slot only.
func (p *Processor) answerSingle(ctx context.Context, question, documentID string) string {
	results, err := p.index.Search(ctx, llm.EnhanceQuery(question), individualTopK, map[string]string{"document_id": documentID})
	if err != nil {
		logger.Warn("Search failed for question %q: %v", question, err)
	}

	answer, err := p.completer.Complete(ctx, llm.ContextPrompt(question, results), singleMaxTokens, temperature)
	if err == nil {
		answer = strings.TrimSpace(answer)
		if len(answer) >= minAnswerLength {
			return answer
		}
	} else {
		logger.Warn("Completion failed for question %q: %v", question, err)
	}

	answer, err = p.completer.Complete(ctx, llm.StrictPrompt(question, results), singleMaxTokens, temperature)
	if err == nil {
		if answer = strings.TrimSpace(answer); answer != "" {
			return answer
		}
	} else {
		logger.Warn("Fallback completion failed for question %q: %v", question, err)
	}

	return "Error: unable to generate an answer for this question."
}

// Stats reports pipeline health for the stats endpoint.
func (p *Processor) Stats(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"system_status":       "healthy",
		"document_cache_size": p.cache.Len(),
		"vector_index":        p.index.Stats(ctx),
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	}
}

// ClearCache drops all cached documents and returns how many were removed.
func (p *Processor) ClearCache() int {
	n := p.cache.Clear()
	logger.Info("Document cache cleared (%d entries)", n)
	return n
}
