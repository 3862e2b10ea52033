package crawl

import (
	"net/url"
	"strings"
	"unicode"
)

// queryKeywords tokenizes a query into lowercase keywords. Single-letter
// tokens carry no signal and are dropped.
func queryKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// pathScore is the fraction of keywords occurring in the URL path, in [0,1].
func pathScore(rawURL string, keywords []string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	return overlap(strings.ToLower(u.Path), keywords)
}

// contentScore is the fraction of keywords occurring in the page text.
func contentScore(markdown string, keywords []string) float64 {
	return overlap(strings.ToLower(markdown), keywords)
}

func overlap(haystack string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
