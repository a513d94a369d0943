package llm

import (
	"fmt"
	"strings"

	"github.com/docquery/docquery/internal/core"
)

// maxContextResults caps how many retrieved passages go into a prompt.
const maxContextResults = 3

var insuranceKeywords = []string{
	"coverage", "policy", "premium", "claim", "benefit", "exclusion",
	"waiting period", "grace period", "deductible", "copay",
	"pre-existing", "maternity", "surgery", "hospitalization",
	"medication", "treatment", "diagnosis", "procedure",
}

// EnhanceQuery prefixes domain context onto questions that mention insurance
// terms, which measurably improves retrieval for policy documents. Other
// questions pass through unchanged.
func EnhanceQuery(question string) string {
	questionLower := strings.ToLower(question)
	for _, kw := range insuranceKeywords {
		if strings.Contains(questionLower, kw) {
			return "Insurance Policy Query: " + question
		}
	}
	return question
}

// ContextPrompt builds the single-question prompt from retrieved passages.
func ContextPrompt(question string, results []core.SearchResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i == maxContextResults {
			break
		}
		fmt.Fprintf(&sb, "Relevant Text %d:\n%s\n\n", i+1, r.Content)
	}

	return fmt.Sprintf(`Answer this insurance question using the context below:

Context: %s

Q: %s
A:`, sb.String(), question)
}

// StrictPrompt is the second-chance prompt used when a generated answer comes
// back empty or too short. It demands a direct answer from the single best
// passage.
func StrictPrompt(question string, results []core.SearchResult) string {
	context := ""
	if len(results) > 0 {
		context = results[0].Content
	}
	return fmt.Sprintf(`Based strictly on the following policy text, give a direct and complete answer to the question. Do not say the information is unavailable if the text addresses it.

Policy text:
%s

Question: %s

Answer:`, context, question)
}

// BatchPrompt builds one compound prompt for a batch of questions, each with
// its own retrieved context. Answers are requested under the A1:, A2:, ...
// marker protocol that ParseBatchAnswers expects.
func BatchPrompt(questions []string, contexts [][]core.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Answer each insurance question below using only its own context. ")
	sb.WriteString("Respond with one line block per question, in order, each starting with the exact marker A1:, A2:, and so on. ")
	sb.WriteString("Do not add any text before A1: or between answers.\n\n")

	for i, q := range questions {
		fmt.Fprintf(&sb, "Q%d: %s\n", i+1, q)
		sb.WriteString(fmt.Sprintf("Context %d:\n", i+1))
		var results []core.SearchResult
		if i < len(contexts) {
			results = contexts[i]
		}
		for j, r := range results {
			if j == maxContextResults {
				break
			}
			sb.WriteString(r.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Answers:\n")
	return sb.String()
}

// BatchMaxTokens returns the completion budget for a batch of n questions,
// roughly 200 tokens per answer, capped at 4000.
func BatchMaxTokens(n int) int {
	tokens := n * 200
	if tokens > 4000 {
		tokens = 4000
	}
	return tokens
}
