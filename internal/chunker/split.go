// Package chunker splits documents into overlapping token-bounded chunks.
package chunker

import (
	"math"

	"minirag/internal/domain"
)

// Segment is one window of a split text.
type Segment struct {
	Text       string
	TokenCount int
}

// Step returns the window advance for size and overlap: consecutive windows
// share exactly round(size*overlap) tokens, and the window always moves.
func Step(size int, overlap float64) int {
	step := size - int(math.Round(float64(size)*overlap))
	if step < 1 {
		step = 1
	}
	return step
}

// Split slides a window of size tokens across text. Each segment's text is
// the exact substring from its first token's start to its last token's end.
// Text with no more than size tokens yields a single segment holding the
// whole input. The final window is truncated, never padded.
func Split(tok domain.Tokenizer, text string, size int, overlap float64) ([]Segment, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, domain.Invalid("text is empty")
	}
	spans := tok.Spans(text)
	n := len(spans)
	if n == 0 {
		return nil, domain.Invalid("text has no tokens")
	}
	if n <= size {
		return []Segment{{Text: text, TokenCount: n}}, nil
	}

	step := Step(size, overlap)
	segments := make([]Segment, 0, (n-size)/step+2)
	for start := 0; ; start += step {
		end := start + size
		if end > n {
			end = n
		}
		segments = append(segments, Segment{
			Text:       text[spans[start].Start:spans[end-1].End],
			TokenCount: end - start,
		})
		if end == n {
			break
		}
	}
	return segments, nil
}

func validate(size int, overlap float64) error {
	if size <= 0 {
		return domain.Invalid("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= 1 || math.IsNaN(overlap) {
		return domain.Invalid("overlap must be in [0,1), got %g", overlap)
	}
	return nil
}
