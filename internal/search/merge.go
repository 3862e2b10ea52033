package search

import "github.com/ragmill/ragmill/internal/store"

// mergeHybrid fuses vector and text hits into one ranked list. Rows found by
// both searches come first, in vector order; then the rest of the vector
// hits; then text-only hits. The list is cut to matchCount.
func mergeHybrid(vector, text []store.SearchResult, matchCount int) []store.SearchResult {
	inText := make(map[int64]bool, len(text))
	for _, r := range text {
		inText[r.ID] = true
	}
	inVector := make(map[int64]bool, len(vector))
	for _, r := range vector {
		inVector[r.ID] = true
	}

	out := make([]store.SearchResult, 0, len(vector)+len(text))
	for _, r := range vector {
		if inText[r.ID] {
			out = append(out, r)
		}
	}
	for _, r := range vector {
		if !inText[r.ID] {
			out = append(out, r)
		}
	}
	for _, r := range text {
		if !inVector[r.ID] {
			out = append(out, r)
		}
	}

	if len(out) > matchCount {
		out = out[:matchCount]
	}
	return out
}
