// Package fetch provides the page-fetching capability consumed by the crawl
// dispatcher: an HTTP fetcher producing markdown plus outgoing links, a URL
// classifier, and a sitemap parser.
//
// HTML-to-markdown conversion is delegated: the fetcher returns text content
// verbatim and runs HTML bodies through a pluggable Converter. The default
// converter strips tags and keeps visible text, which is enough for indexing;
// production deployments plug in a real converter.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Opts controls a single fetch.
type Opts struct {
	// Timeout bounds the whole fetch. Zero means the client default.
	Timeout time.Duration
	// ExtraWait is an additional delay before the request, used by the
	// stealth mode to pace requests.
	ExtraWait time.Duration
	// Stealth enables browser-like headers and pacing.
	Stealth bool
	// SimulateUser adds a small randomized delay and a referer header.
	SimulateUser bool
	// Headers are extra request headers, applied last.
	Headers map[string]string
}

// Result is the outcome of one fetch.
type Result struct {
	URL      string
	Markdown string
	Links    []string // absolute URLs found in the page
	Status   int
}

// Fetcher is the capability the crawl engine consumes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts Opts) (*Result, error)
}

// Converter turns an HTML body into markdown-ish text.
type Converter func(body []byte) string

// HTTPFetcher fetches pages over plain HTTP.
type HTTPFetcher struct {
	client    *http.Client
	convert   Converter
	userAgent string
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithConverter overrides the HTML-to-markdown converter.
func WithConverter(c Converter) Option {
	return func(f *HTTPFetcher) { f.convert = c }
}

// NewHTTPFetcher creates a fetcher with a 30s default timeout.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		convert:   StripTags,
		userAgent: "ragmill/1.0 (+https://github.com/ragmill/ragmill)",
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch retrieves a page and returns its markdown and outgoing links.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts Opts) (*Result, error) {
	base, err := url.Parse(rawURL)
	if err != nil || !base.IsAbs() {
		return nil, ragerr.New(ragerr.ErrCodeInvalidURL, fmt.Sprintf("invalid url %q", rawURL), err)
	}

	if opts.ExtraWait > 0 || opts.SimulateUser {
		wait := opts.ExtraWait
		if opts.SimulateUser && wait == 0 {
			wait = 250 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeFetchFailed, err)
	}
	f.setHeaders(req, opts)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ragerr.Wrap(ragerr.ErrCodeFetchTimeout, err)
		}
		return nil, ragerr.Wrap(ragerr.ErrCodeFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, ragerr.New(ragerr.ErrCodeFetchFailed,
			fmt.Sprintf("fetch %s: status %d", rawURL, resp.StatusCode), nil).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeFetchFailed, err)
	}

	result := &Result{URL: rawURL, Status: resp.StatusCode}

	contentType := resp.Header.Get("Content-Type")
	if isHTML(contentType) {
		result.Links = ExtractLinks(body, base)
		result.Markdown = f.convert(body)
	} else {
		// Text, markdown and XML bodies pass through verbatim.
		result.Markdown = string(body)
	}

	return result, nil
}

func (f *HTTPFetcher) setHeaders(req *http.Request, opts Opts) {
	req.Header.Set("User-Agent", f.userAgent)
	if opts.Stealth {
		// Look like a regular browser session.
		req.Header.Set("User-Agent",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
	}
	if opts.SimulateUser {
		base := *req.URL
		base.Path = "/"
		base.RawQuery = ""
		req.Header.Set("Referer", base.String())
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
}

func isHTML(contentType string) bool {
	t, _, _ := strings.Cut(contentType, ";")
	t = strings.TrimSpace(t)
	return t == "" || t == "text/html" || t == "application/xhtml+xml"
}

// ExtractLinks parses an HTML body and returns absolute, fragment-stripped
// link targets resolved against base.
func ExtractLinks(body []byte, base *url.URL) []string {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				u, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				abs := base.ResolveReference(u)
				if abs.Scheme != "http" && abs.Scheme != "https" {
					continue
				}
				abs.Fragment = ""
				s := abs.String()
				if _, ok := seen[s]; !ok {
					seen[s] = struct{}{}
					links = append(links, s)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return links
}

// StripTags is the default Converter: it drops script/style subtrees and
// returns the remaining visible text with paragraph spacing.
func StripTags(body []byte) string {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return string(body)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		case n.Type == html.TextNode:
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		case n.Type == html.ElementNode && isBlockElement(n.DataAtom):
			defer sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.TrimSpace(sb.String())
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Li, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}

// URLPattern pairs a glob-ish pattern with fetch options; used by the
// multi-URL crawl operation to pick per-URL settings.
type URLPattern struct {
	Pattern string
	Opts    Opts
}

// SelectOpts returns the options of the first pattern matching rawURL.
// Patterns match with path.Match against the full URL, falling back to a
// substring test. Returns def when nothing matches.
func SelectOpts(patterns []URLPattern, rawURL string, def Opts) Opts {
	for _, p := range patterns {
		if ok, err := path.Match(p.Pattern, rawURL); err == nil && ok {
			return p.Opts
		}
		if strings.Contains(rawURL, p.Pattern) {
			return p.Opts
		}
	}
	return def
}
