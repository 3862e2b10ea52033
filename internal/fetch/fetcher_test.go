package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("# Title\n\nHello world."))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	res, err := f.Fetch(context.Background(), srv.URL+"/doc.txt", Opts{})
	require.NoError(t, err)

	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "# Title\n\nHello world.", res.Markdown)
	assert.Empty(t, res.Links)
}

func TestHTTPFetcherHTMLLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<p>Intro text</p>
			<a href="/docs/a">A</a>
			<a href="/docs/b#section">B</a>
			<a href="mailto:x@y.z">mail</a>
			<a href="/docs/a">dup</a>
		</body></html>`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	res, err := f.Fetch(context.Background(), srv.URL+"/", Opts{})
	require.NoError(t, err)

	assert.Equal(t, []string{srv.URL + "/docs/a", srv.URL + "/docs/b"}, res.Links)
	assert.Contains(t, res.Markdown, "Intro text")
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), srv.URL+"/missing", Opts{})
	assert.Error(t, err)
}

func TestHTTPFetcherInvalidURL(t *testing.T) {
	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), "not a url", Opts{})
	assert.Error(t, err)
}

func TestHTTPFetcherStealthHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), srv.URL, Opts{Stealth: true})
	require.NoError(t, err)

	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.NotEmpty(t, gotLang)
}

func TestExtractLinksRelativeResolution(t *testing.T) {
	base, _ := url.Parse("https://x.test/docs/page")
	body := []byte(`<a href="../other">o</a><a href="https://ext.test/e">e</a>`)

	links := ExtractLinks(body, base)
	assert.Equal(t, []string{"https://x.test/other", "https://ext.test/e"}, links)
}

func TestStripTagsDropsScript(t *testing.T) {
	out := StripTags([]byte(`<html><head><script>var x=1;</script></head><body><h1>Hi</h1><p>Body</p></body></html>`))
	assert.Contains(t, out, "Hi")
	assert.Contains(t, out, "Body")
	assert.NotContains(t, out, "var x=1")
}

func TestSelectOpts(t *testing.T) {
	patterns := []URLPattern{
		{Pattern: "*.pdf", Opts: Opts{Stealth: true}},
		{Pattern: "docs.x.test", Opts: Opts{SimulateUser: true}},
	}

	got := SelectOpts(patterns, "https://docs.x.test/intro", Opts{})
	assert.True(t, got.SimulateUser)

	got = SelectOpts(patterns, "https://other.test/page", Opts{ExtraWait: 1})
	assert.Equal(t, Opts{ExtraWait: 1}, got)
}
