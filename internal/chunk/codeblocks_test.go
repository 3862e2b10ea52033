package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fence(lang, body string) string {
	return "```" + lang + "\n" + body + "\n```"
}

func TestExtractCodeBlocks(t *testing.T) {
	long := strings.Repeat("x := compute()\n", 30) // well above min length
	md := "Intro prose.\n\n" + fence("go", long) + "\n\nOutro prose."

	blocks := ExtractCodeBlocks(md, 100)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, "go", b.Language)
	assert.Equal(t, strings.TrimRight(long, "\n"), b.Code)
	assert.Equal(t, "Intro prose.", b.Before)
	assert.Equal(t, "Outro prose.", b.After)
	assert.Equal(t, 0, b.Index)
}

func TestExtractCodeBlocksSkipsShort(t *testing.T) {
	md := fence("python", "print('hi')")
	assert.Empty(t, ExtractCodeBlocks(md, 300))
}

func TestExtractCodeBlocksOrdinals(t *testing.T) {
	long1 := strings.Repeat("a\n", 200)
	long2 := strings.Repeat("b\n", 200)
	md := fence("go", long1) + "\n\nshort: " + fence("", "x") + "\n\n" + fence("rust", long2)

	blocks := ExtractCodeBlocks(md, 100)
	require.Len(t, blocks, 2)
	assert.Equal(t, "go", blocks[0].Language)
	assert.Equal(t, 0, blocks[0].Index)
	assert.Equal(t, "rust", blocks[1].Language)
	assert.Equal(t, 1, blocks[1].Index)
}

func TestExtractCodeBlocksUnclosedFence(t *testing.T) {
	md := "text\n\n```go\nfunc main() {"
	assert.Empty(t, ExtractCodeBlocks(md, 1))
}

func TestExtractCodeBlocksNoLanguage(t *testing.T) {
	body := strings.Repeat("line\n", 100)
	blocks := ExtractCodeBlocks(fence("", body), 100)
	require.Len(t, blocks, 1)
	assert.Empty(t, blocks[0].Language)
}

func TestExtractCodeBlocksContextWindow(t *testing.T) {
	before := strings.Repeat("b", 3000)
	after := strings.Repeat("a", 3000)
	body := strings.Repeat("c", 500)
	md := before + "\n" + fence("go", body) + "\n" + after

	blocks := ExtractCodeBlocks(md, 100)
	require.Len(t, blocks, 1)
	assert.LessOrEqual(t, len(blocks[0].Before), contextChars)
	assert.LessOrEqual(t, len(blocks[0].After), contextChars)
}
