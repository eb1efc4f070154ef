package splitters

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"ragchat/internal/rag/schema"
)

func TestSplitTextDeterministic(t *testing.T) {
	s := NewRecursiveCharacterSplitter(100, 20)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)

	first := s.SplitText(text)
	second := s.SplitText(text)

	if len(first) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitTextRespectsSizeBound(t *testing.T) {
	s := NewRecursiveCharacterSplitter(100, 20)
	text := strings.Repeat("one two three four five six seven eight nine ten ", 50)

	for i, chunk := range s.SplitText(text) {
		if len(chunk) > 100 {
			t.Errorf("chunk %d exceeds size bound: %d chars", i, len(chunk))
		}
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestSplitTextPrefersParagraphBoundaries(t *testing.T) {
	s := NewRecursiveCharacterSplitter(100, 0)
	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird paragraph here."

	chunks := s.SplitText(text)
	for _, chunk := range chunks {
		if strings.Contains(chunk, "\n\n") {
			// All three paragraphs fit in one chunk, which is allowed.
			if len(chunk) > 100 {
				t.Errorf("chunk crosses paragraph boundary and exceeds bound: %q", chunk)
			}
		}
	}
}

func TestSplitTextOverlap(t *testing.T) {
	s := NewRecursiveCharacterSplitter(50, 10)
	words := make([]string, 40)
	for i := range words {
		words[i] = fmt.Sprintf("tok%02d", i)
	}
	chunks := s.SplitText(strings.Join(words, " "))

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		overlap := commonSuffixPrefix(chunks[i-1], chunks[i])
		if overlap > 10 {
			t.Errorf("overlap between chunks %d and %d is %d, want <= 10", i-1, i, overlap)
		}
	}
}

func TestSplitTextUnsplittableToken(t *testing.T) {
	s := NewRecursiveCharacterSplitter(20, 4)
	token := strings.Repeat("x", 35)

	chunks := s.SplitText(token)
	if len(chunks) == 0 {
		t.Fatal("expected chunks for long token")
	}
	for i, chunk := range chunks {
		if len(chunk) > 20 {
			t.Errorf("chunk %d not reduced by character fallback: %d chars", i, len(chunk))
		}
	}
}

func TestSplitTextCountsRunesNotBytes(t *testing.T) {
	s := NewRecursiveCharacterSplitter(7, 0)

	// Each word is three runes but six bytes; two words plus a space fit a
	// seven-character chunk only under rune counting.
	chunks := s.SplitText("ααα ααα ααα")
	want := []string{"ααα ααα", "ααα"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %v", len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitTextSizeBoundMultibyte(t *testing.T) {
	s := NewRecursiveCharacterSplitter(20, 4)
	text := strings.Repeat("日本語のテキスト ", 10)

	for i, chunk := range s.SplitText(text) {
		if n := utf8.RuneCountInString(chunk); n > 20 {
			t.Errorf("chunk %d exceeds size bound: %d runes", i, n)
		}
	}
}

func TestSplitCarriesMetadata(t *testing.T) {
	s := NewRecursiveCharacterSplitter(50, 10)
	doc := &schema.Document{
		ID:   "page-1",
		Text: strings.Repeat("some sentence about a topic. ", 10),
		Metadata: map[string]string{
			schema.MetadataKeyFileName:  "report.pdf",
			schema.MetadataKeyPageLabel: "1",
		},
	}

	chunks, err := s.Split(context.Background(), []*schema.Document{doc})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	seen := map[string]bool{}
	for i, chunk := range chunks {
		if chunk.Text == "" {
			t.Errorf("chunk %d has empty text", i)
		}
		if chunk.Metadata[schema.MetadataKeyFileName] != "report.pdf" {
			t.Errorf("chunk %d lost file name metadata", i)
		}
		if chunk.Metadata["original_doc_id"] != "page-1" {
			t.Errorf("chunk %d lost source document id", i)
		}
		if seen[chunk.ID] {
			t.Errorf("duplicate chunk id %s", chunk.ID)
		}
		seen[chunk.ID] = true
	}

	// Metadata maps must not be shared between chunks.
	chunks[0].Metadata["marker"] = "x"
	if _, ok := chunks[1].Metadata["marker"]; ok {
		t.Error("chunks share a metadata map")
	}
}

// commonSuffixPrefix returns the length of the longest suffix of a that is a
// prefix of b.
func commonSuffixPrefix(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(b, a[len(a)-n:]) {
			return n
		}
	}
	return 0
}
