// Package chunk splits crawled markdown into retrievable units and extracts
// per-chunk metadata and oversized code blocks.
package chunk

import "strings"

// Splitting defaults.
const (
	// DefaultTargetSize is the chunk size ceiling in characters.
	DefaultTargetSize = 5000
	// boundaryFloor is the fraction of the target below which a candidate
	// break point is ignored; splitting too early produces confetti.
	boundaryFloor = 0.3
)

// Split divides markdown into an ordered list of non-overlapping chunks of
// at most target characters. The algorithm is greedy from the start and
// prefers to break, in order, at the last code fence, the last paragraph
// break, or the last sentence end inside the window. The final chunk may be
// shorter than target.
func Split(markdown string, target int) []string {
	if target <= 0 {
		target = DefaultTargetSize
	}

	var chunks []string
	n := len(markdown)
	floor := int(float64(target) * boundaryFloor)

	start := 0
	for start < n {
		end := start + target
		if end >= n {
			if rest := strings.TrimSpace(markdown[start:]); rest != "" {
				chunks = append(chunks, rest)
			}
			break
		}

		window := markdown[start:end]
		if i := strings.LastIndex(window, "```"); i > floor {
			// Keep the fence with its block.
			end = start + i + 3
		} else if i := strings.LastIndex(window, "\n\n"); i > floor {
			end = start + i
		} else if i := strings.LastIndex(window, ". "); i > floor {
			end = start + i + 1
		}

		if piece := strings.TrimSpace(markdown[start:end]); piece != "" {
			chunks = append(chunks, piece)
		}
		start = end
	}

	return chunks
}
