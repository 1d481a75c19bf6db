// Package chunker splits document text into overlapping segments sized for
// embedding-model input limits.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in characters, chosen to
	// stay comfortably under embedding-model input limits.
	DefaultChunkSize = 1000

	// DefaultOverlap is how many trailing characters of one chunk are
	// repeated at the start of the next, preserving cross-chunk context
	// for retrieval.
	DefaultOverlap = 200
)

// separators are candidate break points in descending priority: paragraph
// breaks, line breaks, sentence ends, commas, then bare spaces.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " "}

// Chunker splits text into overlapping chunks at semantic boundaries.
// Splitting is deterministic: the same input always yields the same chunks
// in document order.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker with the given target size and overlap in characters.
// Non-positive size or an overlap that is negative or not smaller than size
// falls back to the defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split breaks text into ordered chunks of at most the target size. Each
// chunk after the first repeats roughly the overlap length from the end of
// its predecessor. Returns nil for empty or all-whitespace input.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := len(text)
		if start+c.size < len(text) {
			end = c.breakPoint(text, start, start+c.size)
			if end <= start {
				// rune-boundary backoff consumed the whole window, as
				// happens on runs of invalid continuation bytes; force
				// forward progress to keep the sequence finite
				end = start + 1
				for end < len(text) && !utf8.RuneStart(text[end]) {
					end++
				}
			}
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(text) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end // overlap would stall, step past it
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return chunks
}

// breakPoint picks the cut position for the window text[start:limit],
// trying each separator in priority order. Cuts are only taken in the second
// half of the window so chunks never collapse below half the target size;
// if no separator qualifies the window is cut hard at a rune boundary.
func (c *Chunker) breakPoint(text string, start, limit int) int {
	window := text[start:limit]
	min := len(window) / 2
	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx >= min {
			return start + idx + len(sep)
		}
	}
	cut := limit
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
