package orchestrator

import (
	"fmt"
	"strings"

	"lightbot/internal/pkg/search"
)

// NoModelConfiguredMessage is returned instead of an answer when no primary
// model is usable.
const NoModelConfiguredMessage = "Error: No model configured. Please add a model in Settings."

// NoResultsMarker stands in for the search context when no valid result
// came back.
const NoResultsMarker = "No search results found."

// searchAnswerPrompt replaces the system prompt for an augmented turn. The
// placeholder takes the formatted search context.
const searchAnswerPrompt = "You are a helpful AI assistant with web search capabilities.\n" +
	"Use the provided search results to answer the user's question accurately.\n" +
	"If the search results don't contain the answer, say so, but still try to be helpful based on your knowledge.\n\n" +
	"Search Results:\n" +
	"%s\n"

// FormatSearchContext renders results as numbered title/url/snippet blocks.
// Error records are skipped.
func FormatSearchContext(results []search.Result) string {
	var blocks []string
	for _, r := range results {
		if r.IsError() {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("%d. %s\n   URL: %s\n   %s", len(blocks)+1, r.Title, r.URL, r.Snippet))
	}
	if len(blocks) == 0 {
		return NoResultsMarker
	}
	return strings.Join(blocks, "\n\n")
}

func searchSystemPrompt(results []search.Result) string {
	return fmt.Sprintf(searchAnswerPrompt, FormatSearchContext(results))
}

func searchAnnouncement(provider, query string) string {
	return fmt.Sprintf("Searching %s for: %s...\n\n", provider, query)
}
