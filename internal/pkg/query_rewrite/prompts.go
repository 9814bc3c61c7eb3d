package query_rewrite

import (
	"fmt"
	"strings"

	"lightbot/internal/pkg/models"
)

// rewritePrompt takes the rendered history and the follow-up message.
const rewritePrompt = `Given the following conversation and a follow up input, rewrite the follow up input as a standalone web search query.
Also pick the search categories and time range that fit the query best.

Categories (comma separated): general, images, videos, news, map, music, it, science, files, social_media
Time range: day, week, month, year, or null when recency does not matter

Answer with exactly these three lines and nothing else:
QUERY = <standalone search query>
CATEGORIES = <categories>
TIME_RANGE = <time range>

Chat History:
%s

Follow Up Input: %s
`

// FormatHistory renders history as "<role>: <content>" lines.
func FormatHistory(history []models.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func buildPrompt(message string, history []models.Message) string {
	rendered := FormatHistory(history)
	if rendered == "" {
		rendered = "(none)"
	}
	return fmt.Sprintf(rewritePrompt, rendered, message)
}
