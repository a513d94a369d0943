package core

import "errors"

// Error taxonomy for the pipeline. Only ErrExtraction is fatal for a whole
// request; everything else degrades per stage.
var (
	// ErrExtraction marks an unreachable, unsupported or corrupt document.
	ErrExtraction = errors.New("document extraction failed")
	// ErrBackendUnavailable marks a vector backend that is down. Never
	// surfaced to callers; search degrades to the remaining sources.
	ErrBackendUnavailable = errors.New("vector backend unavailable")
	// ErrLLM marks a failed completion call (timeout, rate limit, malformed
	// response) after retries were exhausted.
	ErrLLM = errors.New("llm completion failed")
	// ErrParse marks a compound answer that could not be split back into
	// per-question answers.
	ErrParse = errors.New("answer parsing failed")
)
