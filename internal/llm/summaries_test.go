package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeClient returns a canned reply or error and records prompts.
type fakeClient struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeClient) Chat(_ context.Context, _, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	return f.reply, f.err
}

func TestContextualContent(t *testing.T) {
	c := &fakeClient{reply: "This chunk covers installation."}
	got, ok := ContextualContent(context.Background(), c, "full doc", "chunk body")

	assert.True(t, ok)
	assert.Equal(t, "This chunk covers installation.\n---\nchunk body", got)
	assert.Contains(t, c.prompts[0], "chunk body")
}

func TestContextualContentFallsBack(t *testing.T) {
	c := &fakeClient{err: errors.New("provider down")}
	got, ok := ContextualContent(context.Background(), c, "doc", "chunk body")

	assert.False(t, ok)
	assert.Equal(t, "chunk body", got)
}

func TestContextualContentEmptyReply(t *testing.T) {
	c := &fakeClient{reply: "  "}
	got, ok := ContextualContent(context.Background(), c, "doc", "chunk body")
	assert.False(t, ok)
	assert.Equal(t, "chunk body", got)
}

func TestCodeSummaryFallback(t *testing.T) {
	c := &fakeClient{err: errors.New("nope")}
	got := CodeSummary(context.Background(), c, "code", "before", "after")
	assert.Equal(t, "Code example for demonstration purposes.", got)
}

func TestSourceSummaryTruncates(t *testing.T) {
	c := &fakeClient{reply: strings.Repeat("s", 2000)}
	got := SourceSummary(context.Background(), c, "x.test", "some content")
	assert.Len(t, got, maxSourceSummaryChars)
}

func TestSourceSummaryFallbacks(t *testing.T) {
	c := &fakeClient{err: errors.New("nope")}
	assert.Equal(t, "Content from x.test",
		SourceSummary(context.Background(), c, "x.test", "content"))

	// Nothing sampled: no provider call at all.
	c2 := &fakeClient{reply: "unused"}
	assert.Equal(t, "Content from y.test",
		SourceSummary(context.Background(), c2, "y.test", "  "))
	assert.Empty(t, c2.prompts)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
