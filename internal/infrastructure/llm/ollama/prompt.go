package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

const maxSnippet = 6000

func snippetOf(text string) string {
	if len(text) > maxSnippet {
		return text[:maxSnippet]
	}
	return text
}

func buildSummaryPrompt(text string) string {
	return `You are a document analyst. Write a concise summary (3-5 sentences) of the document below.
Cover the document type, its subject, and any deadlines, amounts or named parties.
Return plain text only, no markdown.

Document:
` + snippetOf(text)
}

func buildClassificationPrompt(text, summary string, categories []domain.Category) string {
	var list strings.Builder
	for i, cat := range categories {
		desc := cat.Description
		if desc == "" {
			desc = "no description"
		}
		fmt.Fprintf(&list, "%d. %s - %s\n", i+1, cat.Name, desc)
	}

	return fmt.Sprintf(`You are a document classification specialist. Analyze the document and classify it into the most appropriate category.

Known categories:
%s
If the document clearly belongs to a department not listed above, propose that department name instead and set novel_category to true.

Return strict JSON object with keys:
category (string), confidence (number from 0 to 1), novel_category (boolean), reasoning (string), schema_version (number, always 1).
No markdown, no extra keys.

Summary:
%s

Document content excerpt:
%s`, list.String(), summary, snippetOf(text))
}

func buildWorkflowPrompt(summary, category string) string {
	return fmt.Sprintf(`You are a back-office workflow planner. A document was just filed under the %s category.

Decide what follow-up actions the document needs. Allowed action kinds:
- "notify": send an email notification. Set target to the recipient address or leave empty for the default recipient.
- "schedule-review": book a review reminder. Set due_offset_days to the number of days until the review (default 7).
- "none": no follow-up needed.

Return strict JSON object with a single key "actions": an array of objects with keys
kind (string), target (string), due_offset_days (number), note (string).
An empty array means no follow-up. No markdown, no extra keys.

Document summary:
%s`, category, summary)
}
