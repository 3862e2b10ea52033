package fetch

import (
	"context"
	"encoding/xml"
	"log/slog"
	"strings"
)

// sitemapURLSet mirrors the <urlset> document of the sitemap protocol.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

// sitemapIndex mirrors a <sitemapindex> document referencing child sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapURL `xml:"sitemap"`
}

// ParseSitemap parses sitemap XML and returns the listed URLs.
// Malformed input yields an empty list, never an error: a broken sitemap
// means zero pages, not a failed crawl.
func ParseSitemap(data []byte) []string {
	var set sitemapURLSet
	if err := xml.Unmarshal(data, &set); err == nil && len(set.URLs) > 0 {
		return locs(set.URLs)
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(data, &idx); err == nil && len(idx.Sitemaps) > 0 {
		return locs(idx.Sitemaps)
	}

	return nil
}

func locs(urls []sitemapURL) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		loc := strings.TrimSpace(u.Loc)
		if loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// FetchSitemap fetches a sitemap URL and returns its URLs. Nested sitemap
// indexes are followed one level deep. Fetch or parse failures degrade to an
// empty list.
func FetchSitemap(ctx context.Context, f Fetcher, sitemapURL string, opts Opts) []string {
	return fetchSitemap(ctx, f, sitemapURL, opts, 1)
}

func fetchSitemap(ctx context.Context, f Fetcher, sitemapURL string, opts Opts, depth int) []string {
	res, err := f.Fetch(ctx, sitemapURL, opts)
	if err != nil {
		slog.Warn("sitemap fetch failed",
			slog.String("url", sitemapURL),
			slog.String("error", err.Error()))
		return nil
	}

	entries := ParseSitemap([]byte(res.Markdown))

	// A sitemap index lists child sitemaps rather than pages.
	var urls []string
	for _, entry := range entries {
		if depth > 0 && strings.HasSuffix(strings.ToLower(entry), ".xml") {
			urls = append(urls, fetchSitemap(ctx, f, entry, opts, depth-1)...)
			continue
		}
		urls = append(urls, entry)
	}
	return urls
}
