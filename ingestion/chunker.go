package ingestion

import (
	"fmt"
	"strings"
	"unicode"
)

// Chunker splits text into spans of roughly chunkSize characters, preferring
// sentence boundaries and carrying trailing sentences over as overlap.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker validates the sizing. Overlap must be non-negative and smaller
// than the chunk size; anything else is a configuration error.
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap cannot be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split is deterministic for the same input and parameters. Every sentence
// of the input appears in at least one chunk; consecutive chunks share up to
// overlap characters of trailing sentences.
func (c *Chunker) Split(text string) []string {
	sentences := hardCut(splitSentences(normalizeWhitespace(text)), c.chunkSize)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(sentences) {
		size := 0
		end := start
		for end < len(sentences) {
			next := len(sentences[end])
			if size > 0 {
				next++ // joining space
			}
			if size+next > c.chunkSize && end > start {
				break
			}
			size += next
			end++
		}

		chunks = append(chunks, strings.Join(sentences[start:end], " "))
		if end >= len(sentences) {
			break
		}

		// Carry trailing sentences into the next chunk as overlap.
		carried := 0
		overlapLen := 0
		for k := end - 1; k > start; k-- {
			overlapLen += len(sentences[k]) + 1
			if overlapLen > c.overlap {
				break
			}
			carried++
		}
		start = end - carried
	}

	return chunks
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// splitSentences breaks on sentence-ending punctuation followed by a space
// and an upper-case or numeric continuation.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}

		j := i + 1
		for j < len(runes) && (runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
			j++
		}
		if j >= len(runes) || runes[j] != ' ' {
			continue
		}

		k := j
		for k < len(runes) && runes[k] == ' ' {
			k++
		}
		if k < len(runes) && !unicode.IsUpper(runes[k]) && !unicode.IsDigit(runes[k]) {
			continue
		}

		if sentence := strings.TrimSpace(string(runes[start:j])); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = k
		i = k - 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// hardCut splits any single sentence longer than limit into fixed-size
// pieces so packing always makes progress.
func hardCut(sentences []string, limit int) []string {
	out := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		runes := []rune(sentence)
		for len(runes) > limit {
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
	}
	return out
}
