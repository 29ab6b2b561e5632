// Package citation turns retrieved knowledge chunks into user-facing
// sources and prompt context.
package citation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ibtisamdev/reva-sub001/internal/knowledge"
)

const (
	SnippetMaxLength = 150
	NoContext        = "No relevant context found."
	ellipsis         = "..."
	// A space past this fraction of the limit is a good enough word break.
	wordBoundaryRatio = 0.7
)

// SourceReference is a citation shown alongside a reply.
type SourceReference struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet"`
	ChunkID string `json:"chunk_id,omitempty"`
}

// SourcesFromChunks converts ranked chunks into sources in input order.
// With dedupe set only the first chunk of each article is kept.
func SourcesFromChunks(chunks []knowledge.Chunk, dedupe bool) []SourceReference {
	sources := make([]SourceReference, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		if dedupe {
			if _, dup := seen[chunk.ArticleID]; dup {
				continue
			}
			seen[chunk.ArticleID] = struct{}{}
		}
		sources = append(sources, SourceReference{
			Title:   chunk.ArticleTitle,
			URL:     chunk.ArticleURL,
			Snippet: TruncateSnippet(chunk.Content, SnippetMaxLength),
			ChunkID: chunk.ChunkID,
		})
	}
	return sources
}

// TruncateSnippet shortens text to at most maxLength characters including
// the trailing ellipsis, preferring to break on a late word boundary.
// Text already within the limit is returned unchanged, so the function is
// idempotent. The ellipsis counts toward maxLength: cutting at maxLength and
// then appending would yield maxLength+3 characters, which a second pass
// would shorten again.
func TruncateSnippet(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	window := maxLength - len(ellipsis)
	if window <= 0 {
		return string(runes[:maxLength])
	}
	cut := runes[:window]
	if i := lastSpace(cut); float64(i) > wordBoundaryRatio*float64(maxLength) {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// FormatContext renders chunks as numbered prompt blocks in input order.
func FormatContext(chunks []knowledge.Chunk) string {
	if len(chunks) == 0 {
		return NoContext
	}
	blocks := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		blocks = append(blocks, fmt.Sprintf("[%d] Source: %s\n%s", i+1, chunk.ArticleTitle, chunk.Content))
	}
	return strings.Join(blocks, "\n\n")
}
