package ingestion

import (
	"strings"
	"testing"
)

func TestNewChunkerRejectsBadSizing(t *testing.T) {
	if _, err := NewChunker(0, 0); err == nil {
		t.Fatal("expected error for zero chunk size")
	}
	if _, err := NewChunker(100, -1); err == nil {
		t.Fatal("expected error for negative overlap")
	}
	if _, err := NewChunker(100, 100); err == nil {
		t.Fatal("expected error for overlap equal to chunk size")
	}
	if _, err := NewChunker(100, 20); err != nil {
		t.Fatalf("expected valid chunker, got %v", err)
	}
}

func TestSplitCoversEverySentence(t *testing.T) {
	chunker, err := NewChunker(80, 20)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	text := "Go is a compiled language. It has garbage collection. " +
		"Goroutines make concurrency cheap. Channels connect them. " +
		"The standard library is extensive. Interfaces are satisfied implicitly."

	chunks := chunker.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	joined := strings.Join(chunks, " ")
	for _, sentence := range splitSentences(text) {
		if !strings.Contains(joined, sentence) {
			t.Fatalf("sentence missing from chunk output: %q", sentence)
		}
	}
}

func TestSplitOverlapSharesTrailingSentences(t *testing.T) {
	chunker, err := NewChunker(60, 25)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	text := "First sentence here. Second sentence follows. Third one now. Fourth closes it."
	chunks := chunker.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		if chunks[i] == chunks[i-1] {
			t.Fatal("consecutive chunks must not be identical")
		}
	}

	// With 25 chars of overlap the second chunk starts with the last
	// sentence of the first.
	firstSentences := splitSentences(chunks[0])
	last := firstSentences[len(firstSentences)-1]
	if !strings.HasPrefix(chunks[1], last) {
		t.Fatalf("expected chunk 2 to start with %q, got %q", last, chunks[1])
	}
}

func TestSplitNoOverlap(t *testing.T) {
	chunker, err := NewChunker(40, 0)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	text := "Alpha beta gamma delta. Epsilon zeta eta theta. Iota kappa lambda mu."
	chunks := chunker.Split(text)

	seen := map[string]bool{}
	for _, chunk := range chunks {
		for _, sentence := range splitSentences(chunk) {
			if seen[sentence] {
				t.Fatalf("sentence %q duplicated without overlap", sentence)
			}
			seen[sentence] = true
		}
	}
}

func TestSplitHardCutsOversizedSentence(t *testing.T) {
	chunker, err := NewChunker(50, 10)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	long := strings.Repeat("x", 180)
	chunks := chunker.Split(long)
	if len(chunks) < 3 {
		t.Fatalf("expected hard cuts to produce several chunks, got %d", len(chunks))
	}

	total := 0
	for _, chunk := range chunks {
		if len(chunk) > 50 {
			t.Fatalf("chunk exceeds size limit: %d chars", len(chunk))
		}
		total += len(strings.ReplaceAll(chunk, " ", ""))
	}
	if total < 180 {
		t.Fatalf("hard cuts lost content: reconstructed %d of 180 chars", total)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	chunker, err := NewChunker(100, 10)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	if chunks := chunker.Split("   \n\t "); chunks != nil {
		t.Fatalf("expected no chunks for blank input, got %v", chunks)
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	chunker, err := NewChunker(70, 15)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	text := "One sentence for the test. Another sentence goes here. A third to force splitting. And a final one."
	first := chunker.Split(text)
	second := chunker.Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}
