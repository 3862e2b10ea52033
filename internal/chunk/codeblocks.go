package chunk

import "strings"

// Code-block extraction defaults.
const (
	// DefaultMinCodeLen is the minimum block size worth indexing
	// separately; short snippets stay inside their prose chunk.
	DefaultMinCodeLen = 300
	// contextChars is how much surrounding prose is kept on each side.
	contextChars = 1000
)

// CodeBlock is a fenced block extracted from a document, with enough
// surrounding context for summarization.
type CodeBlock struct {
	Code     string
	Language string
	// Before and After are up to contextChars of the surrounding document.
	Before string
	After  string
	// Index is the block's ordinal among the document's extracted blocks.
	Index int
}

// ExtractCodeBlocks scans markdown for fenced code blocks of at least minLen
// characters. Unclosed fences are ignored.
func ExtractCodeBlocks(markdown string, minLen int) []CodeBlock {
	if minLen <= 0 {
		minLen = DefaultMinCodeLen
	}

	var blocks []CodeBlock
	pos := 0
	for {
		open := strings.Index(markdown[pos:], "```")
		if open < 0 {
			break
		}
		open += pos

		infoEnd := strings.IndexByte(markdown[open+3:], '\n')
		if infoEnd < 0 {
			break
		}
		lang := strings.TrimSpace(markdown[open+3 : open+3+infoEnd])
		codeStart := open + 3 + infoEnd + 1

		closeRel := strings.Index(markdown[codeStart:], "```")
		if closeRel < 0 {
			break
		}
		codeEnd := codeStart + closeRel
		pos = codeEnd + 3

		code := strings.TrimRight(markdown[codeStart:codeEnd], "\n")
		if len(code) < minLen {
			continue
		}

		beforeStart := open - contextChars
		if beforeStart < 0 {
			beforeStart = 0
		}
		afterEnd := pos + contextChars
		if afterEnd > len(markdown) {
			afterEnd = len(markdown)
		}

		blocks = append(blocks, CodeBlock{
			Code:     code,
			Language: lang,
			Before:   strings.TrimSpace(markdown[beforeStart:open]),
			After:    strings.TrimSpace(markdown[pos:afterEnd]),
			Index:    len(blocks),
		})
	}
	return blocks
}
