// Package tokenizer maps text to token spans for chunking and counting.
package tokenizer

import (
	"regexp"

	"minirag/internal/domain"
)

// Word splits text into words (letters/digits with inner apostrophes) and
// single punctuation marks. It needs no model files.
type Word struct {
	pattern *regexp.Regexp
}

func NewWord() *Word {
	return &Word{pattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*|[^\s\p{L}\p{N}]`)}
}

func (w *Word) Name() string { return "word" }

func (w *Word) Spans(text string) []domain.Span {
	idx := w.pattern.FindAllStringIndex(text, -1)
	spans := make([]domain.Span, len(idx))
	for i, p := range idx {
		spans[i] = domain.Span{Start: p[0], End: p[1]}
	}
	return spans
}

func (w *Word) Count(text string) int {
	return len(w.pattern.FindAllStringIndex(text, -1))
}
