package extract

import (
	"strings"

	"reddit-etl/reddit"
)

// maxDepthIterations bounds the parent walk so cyclic or corrupted parent
// chains cannot loop forever.
const maxDepthIterations = 50

// Depth computes a comment's nesting level by walking parent references
// through the lookup table (comment ID -> parent fullname). Depth 0 means
// the parent is the post itself. A parent missing from the table ends the
// walk with the depth accumulated so far.
func Depth(parentID string, parents map[string]string) int {
	depth := 0
	current := parentID

	for current != "" && strings.HasPrefix(current, reddit.PrefixComment) && depth < maxDepthIterations {
		id := strings.TrimPrefix(current, reddit.PrefixComment)
		next, ok := parents[id]
		if !ok {
			break
		}
		current = next
		depth++
	}

	return depth
}
