// Package extract downloads documents and normalizes their text for
// chunking. Binary container formats (PDF, DOCX) are decoded by an external
// collaborator; this extractor handles text payloads.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/logger"
)

// DefaultTimeout bounds a single document download.
const DefaultTimeout = 30 * time.Second

// maxDocumentBytes caps how much of a document we are willing to read.
const maxDocumentBytes = 32 << 20

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Keep word characters and sentence punctuation, drop everything else.
	strayRe = regexp.MustCompile(`[^\w\s.,;:!?\-()\[\]{}]`)
)

// HTTPExtractor fetches a document over HTTP(S) and returns cleaned text.
type HTTPExtractor struct {
	client *http.Client
}

// NewHTTPExtractor creates an extractor with a bounded request timeout.
func NewHTTPExtractor(timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPExtractor{
		client: &http.Client{Timeout: timeout},
	}
}

// Extract downloads url and returns its cleaned text. Failures wrap
// core.ErrExtraction so the orchestrator can treat them as fatal for the
// whole request.
func (e *HTTPExtractor) Extract(ctx context.Context, url string) (string, error) {
	logger.Info("Extracting document: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url %q: %v", core.ErrExtraction, url, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: download %q: %v", core.ErrExtraction, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: download %q: unexpected status %s", core.ErrExtraction, url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read %q: %v", core.ErrExtraction, url, err)
	}

	text := Clean(string(body))
	if text == "" {
		return "", fmt.Errorf("%w: document %q contained no text", core.ErrExtraction, url)
	}

	logger.Debug("Extracted %d cleaned characters from %s", len(text), url)
	return text, nil
}

// Clean collapses whitespace runs and strips characters outside the word and
// punctuation set the pipeline cares about.
func Clean(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strayRe.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}
