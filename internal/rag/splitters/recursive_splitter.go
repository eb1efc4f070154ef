package splitters

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"ragchat/internal/rag/interfaces"
	"ragchat/internal/rag/schema"
)

// defaultSeparators is the boundary priority: paragraph break, line break,
// space, then single characters as the last resort.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveCharacterSplitter splits documents into chunks of at most
// ChunkSize characters with up to ChunkOverlap characters shared between
// consecutive chunks. It prefers the largest separator that still yields
// chunks within the size bound before falling back to a smaller one.
// Splitting is deterministic: the same text always produces the same chunks.
type RecursiveCharacterSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	separators   []string
}

// NewRecursiveCharacterSplitter creates a splitter with the given bounds.
func NewRecursiveCharacterSplitter(chunkSize, chunkOverlap int) *RecursiveCharacterSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &RecursiveCharacterSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split splits each document's text into chunks. Every chunk carries a copy
// of the source document's metadata plus its chunk number; empty chunks are
// never emitted.
func (s *RecursiveCharacterSplitter) Split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
	var chunks []*schema.Document
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Text) {
			md := doc.CopyMetadata()
			md["original_doc_id"] = doc.ID
			md["chunk_number"] = strconv.Itoa(i + 1)
			chunks = append(chunks, &schema.Document{
				ID:       uuid.New().String(),
				Text:     text,
				Metadata: md,
			})
		}
	}
	return chunks, nil
}

// SplitText splits raw text into chunk strings.
func (s *RecursiveCharacterSplitter) SplitText(text string) []string {
	return s.splitText(text, s.separators)
}

func (s *RecursiveCharacterSplitter) splitText(text string, separators []string) []string {
	var final []string

	// Pick the largest separator present in the text.
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitOn(text, separator)

	// Fragments small enough to merge are collected; oversized ones recurse
	// into the next separator level.
	var pending []string
	for _, fragment := range splits {
		if utf8.RuneCountInString(fragment) < s.ChunkSize {
			pending = append(pending, fragment)
			continue
		}
		if len(pending) > 0 {
			final = append(final, s.merge(pending, separator)...)
			pending = nil
		}
		if len(next) == 0 {
			// Single unsplittable token longer than the chunk size.
			final = append(final, fragment)
		} else {
			final = append(final, s.splitText(fragment, next)...)
		}
	}
	if len(pending) > 0 {
		final = append(final, s.merge(pending, separator)...)
	}
	return final
}

// merge greedily joins fragments into chunks up to ChunkSize, carrying at
// most ChunkOverlap trailing characters into the next chunk.
func (s *RecursiveCharacterSplitter) merge(fragments []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)

	var out []string
	var window []string
	total := 0

	flush := func() {
		chunk := strings.TrimSpace(strings.Join(window, separator))
		if chunk != "" {
			out = append(out, chunk)
		}
	}

	for _, fragment := range fragments {
		added := utf8.RuneCountInString(fragment)
		if len(window) > 0 {
			added += sepLen
		}
		if total+added > s.ChunkSize && len(window) > 0 {
			flush()
			// Shrink the window to the overlap budget before continuing.
			for total > s.ChunkOverlap || (total+added > s.ChunkSize && total > 0) {
				total -= utf8.RuneCountInString(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
				added = utf8.RuneCountInString(fragment)
				if len(window) > 0 {
					added += sepLen
				}
			}
		}
		window = append(window, fragment)
		total += added
	}
	flush()
	return out
}

// splitOn splits text on separator, dropping empty fragments. An empty
// separator splits into individual runes.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

var _ interfaces.Splitter = (*RecursiveCharacterSplitter)(nil)
