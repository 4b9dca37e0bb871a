package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"minirag/internal/domain"
)

// DefaultEncoding matches the encoding used by current OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// Tiktoken counts BPE tokens with a tiktoken encoding.
type Tiktoken struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. The BPE ranks are fetched and cached
// by tiktoken-go on first use.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &Tiktoken{encoding: encoding, enc: enc}, nil
}

func (t *Tiktoken) Name() string { return "tiktoken:" + t.encoding }

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Spans derives byte offsets from the length of each decoded token. A token
// may end inside a multi-byte rune; such boundaries are moved forward to the
// next rune start so slices of the text stay valid UTF-8.
func (t *Tiktoken) Spans(text string) []domain.Span {
	ids := t.enc.Encode(text, nil, nil)
	spans := make([]domain.Span, 0, len(ids))
	offset := 0
	for _, id := range ids {
		end := offset + len(t.enc.Decode([]int{id}))
		if end > len(text) {
			end = len(text)
		}
		spans = append(spans, domain.Span{Start: offset, End: end})
		offset = end
	}
	for i := range spans {
		spans[i].Start = runeBoundary(text, spans[i].Start)
		spans[i].End = runeBoundary(text, spans[i].End)
	}
	return spans
}

func runeBoundary(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
