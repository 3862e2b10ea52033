package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Prompt size limits. Documents are truncated before prompting so a large
// page cannot blow the provider's context window.
const (
	maxDocumentPromptChars = 25000
	maxSourceSampleChars   = 20000
	maxSourceSummaryChars  = 500
)

// ContextualContent situates a chunk within its full document: the model
// writes a 1-3 sentence summary which is prepended to the chunk for
// embedding. On any provider failure the raw chunk comes back unchanged;
// a missing summary must never fail an ingest.
func ContextualContent(ctx context.Context, c Client, document, chunkText string) (string, bool) {
	system := "You situate document chunks for retrieval. Reply with 1-3 sentences, nothing else."
	user := fmt.Sprintf(
		"<document>\n%s\n</document>\n\nHere is the chunk to situate within the document:\n<chunk>\n%s\n</chunk>\n\n"+
			"Give a short succinct context to situate this chunk within the overall document.",
		truncate(document, maxDocumentPromptChars), chunkText)

	summary, err := c.Chat(ctx, system, user)
	if err != nil {
		slog.Warn("contextual summary failed, using raw chunk", slog.String("error", err.Error()))
		return chunkText, false
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return chunkText, false
	}
	return summary + "\n---\n" + chunkText, true
}

// CodeSummary describes an extracted code block using its surrounding prose.
func CodeSummary(ctx context.Context, c Client, code, before, after string) string {
	system := "You summarize code examples from technical documentation. Reply with 2-3 sentences, nothing else."
	user := fmt.Sprintf(
		"Context before:\n%s\n\nCode:\n%s\n\nContext after:\n%s\n\n"+
			"Summarize what this code example demonstrates and how it is used.",
		before, truncate(code, maxDocumentPromptChars), after)

	summary, err := c.Chat(ctx, system, user)
	if err != nil {
		slog.Warn("code summary failed, using generic summary", slog.String("error", err.Error()))
		return "Code example for demonstration purposes."
	}
	return strings.TrimSpace(summary)
}

// SourceSummary condenses a source's sampled content into at most 500
// characters for the source catalog.
func SourceSummary(ctx context.Context, c Client, sourceID, sample string) string {
	fallback := "Content from " + sourceID
	if strings.TrimSpace(sample) == "" {
		return fallback
	}

	system := "You summarize documentation libraries. Reply with 3-5 sentences, nothing else."
	user := fmt.Sprintf(
		"Source: %s\n\nSampled content:\n%s\n\nSummarize what this source covers.",
		sourceID, truncate(sample, maxSourceSampleChars))

	summary, err := c.Chat(ctx, system, user)
	if err != nil {
		slog.Warn("source summary failed, using fallback",
			slog.String("source", sourceID),
			slog.String("error", err.Error()))
		return fallback
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fallback
	}
	return truncate(summary, maxSourceSummaryChars)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
