package qa

import (
	"fmt"
	"strings"

	"github.com/docquery/docquery/internal/core"
)

// Sentinel answers produced by the parser. Callers use them to decide whether
// a batch needs individual reprocessing.
const (
	AnswerFormatError = "[Answer format error]"
	NoAnswerProvided  = "[No answer provided]"
)

// ParseBatchAnswers extracts n answers from a compound model response using
// the A1:, A2:, ... marker protocol. The answer for question i is the text
// between marker "A{i}:" and the next marker (or end of text). A missing
// marker yields AnswerFormatError for that slot; a marker with nothing after
// it yields NoAnswerProvided. The result always has exactly n entries.
//
// Markers are located by first occurrence, so a model that echoes a marker
// inside an answer body can truncate that answer early. That hazard is
// accepted; the orchestrator's length check catches the worst cases.
func ParseBatchAnswers(text string, n int) []string {
	answers := make([]string, n)
	for i := 1; i <= n; i++ {
		marker := fmt.Sprintf("A%d:", i)
		start := strings.Index(text, marker)
		if start == -1 {
			answers[i-1] = AnswerFormatError
			continue
		}
		start += len(marker)

		end := len(text)
		if i < n {
			nextMarker := fmt.Sprintf("A%d:", i+1)
			if idx := strings.Index(text[start:], nextMarker); idx != -1 {
				end = start + idx
			}
		}

		answer := strings.TrimSpace(text[start:end])
		if answer == "" {
			answers[i-1] = NoAnswerProvided
			continue
		}
		answers[i-1] = answer
	}
	return answers
}

// BatchError returns a parse error when any slot carries the format-error
// sentinel, which invalidates the whole batch. A nil result means every
// marker was found.
func BatchError(answers []string) error {
	for i, a := range answers {
		if a == AnswerFormatError {
			return fmt.Errorf("%w: marker A%d not found", core.ErrParse, i+1)
		}
	}
	return nil
}
