package chunk

import "strings"

// Meta is the per-chunk metadata stored alongside the content.
type Meta struct {
	// Headers is every markdown header line in the chunk, joined "; ".
	Headers   string `json:"headers"`
	CharCount int    `json:"char_count"`
	WordCount int    `json:"word_count"`
	// HasTable marks chunks containing a markdown table, so table-heavy
	// chunks can be filtered or boosted at query time.
	HasTable bool `json:"contains_table,omitempty"`
}

// Extract computes the metadata for one chunk.
func Extract(content string) Meta {
	var headers []string
	hasTable := false
	prevPipeRow := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			headers = append(headers, trimmed)
		}
		pipeRow := strings.HasPrefix(trimmed, "|") && strings.Count(trimmed, "|") >= 2
		if pipeRow && prevPipeRow {
			hasTable = true
		}
		prevPipeRow = pipeRow
	}

	return Meta{
		Headers:   strings.Join(headers, "; "),
		CharCount: len(content),
		WordCount: len(strings.Fields(content)),
		HasTable:  hasTable,
	}
}

// Stats aggregates a crawl run for the tool-call response.
type Stats struct {
	TotalPages      int `json:"total_pages"`
	TotalChars      int `json:"total_chars"`
	TotalWords      int `json:"total_words"`
	AvgCharsPerPage int `json:"avg_chars_per_page"`
	AvgWordsPerPage int `json:"avg_words_per_page"`
	UniqueURLs      int `json:"unique_urls"`
}

// Aggregate computes run statistics over (url, markdown) pages.
func Aggregate(urls []string, contents []string) Stats {
	s := Stats{TotalPages: len(contents)}
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[u] = struct{}{}
	}
	s.UniqueURLs = len(seen)

	for _, c := range contents {
		s.TotalChars += len(c)
		s.TotalWords += len(strings.Fields(c))
	}
	if s.TotalPages > 0 {
		s.AvgCharsPerPage = s.TotalChars / s.TotalPages
		s.AvgWordsPerPage = s.TotalWords / s.TotalPages
	}
	return s
}
