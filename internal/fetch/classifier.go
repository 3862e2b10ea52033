package fetch

import (
	"net/url"
	"strings"
)

// Kind is the crawl strategy chosen for a URL.
type Kind string

const (
	KindSinglePage Kind = "single_page"
	KindTextFile   Kind = "text_file"
	KindSitemap    Kind = "sitemap"
	KindRecursive  Kind = "recursive"
	KindAdaptive   Kind = "adaptive"
)

// ClassifyInput carries the caller hints that influence classification.
type ClassifyInput struct {
	// Single is set when the caller asked for a single-page crawl.
	Single bool
	// Query is non-empty when the caller supplied an adaptive crawl query.
	Query string
}

// Classify maps a URL to a crawl strategy. Ties break in this order:
// sitemap, text file, single page, adaptive, recursive.
func Classify(rawURL string, in ClassifyInput) Kind {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Let the dispatcher surface the validation error.
		if in.Single {
			return KindSinglePage
		}
		return KindRecursive
	}

	p := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(p, "sitemap.xml"):
		return KindSitemap
	case strings.Contains(p, "sitemap") && strings.HasSuffix(p, ".xml"):
		return KindSitemap
	case strings.HasSuffix(p, ".txt"):
		return KindTextFile
	case in.Single:
		return KindSinglePage
	case in.Query != "":
		return KindAdaptive
	default:
		return KindRecursive
	}
}
