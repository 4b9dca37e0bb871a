package chunker

import (
	"math"
	"regexp"
	"strings"

	"minirag/internal/domain"
)

// SentenceChunker packs whole sentences into chunks of at most size tokens.
// Each chunk after the first starts with the trailing sentences of the
// previous chunk that fit in round(size*overlap) tokens. A sentence longer
// than size is cut by the token window.
type SentenceChunker struct {
	tokenizer domain.Tokenizer
	size      int
	overlap   float64
	splitter  *regexp.Regexp
}

func NewSentenceChunker(tok domain.Tokenizer, opts ...Option) *SentenceChunker {
	o := buildOptions(opts)
	return &SentenceChunker{
		tokenizer: tok,
		size:      o.size,
		overlap:   o.overlap,
		splitter:  regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if err := validate(c.size, c.overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(document.Content) == "" {
		return nil, domain.Invalid("text is empty")
	}
	total := c.tokenizer.Count(document.Content)
	if total == 0 {
		return nil, domain.Invalid("text has no tokens")
	}
	if total <= c.size {
		seg := Segment{Text: document.Content, TokenCount: total}
		return []domain.Chunk{newChunk(document, 0, seg)}, nil
	}

	budget := int(math.Round(float64(c.size) * c.overlap))
	var segments []Segment
	var cur []string
	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, " ")
		segments = append(segments, Segment{Text: text, TokenCount: c.tokenizer.Count(text)})
	}

	for _, s := range c.sentences(document.Content) {
		if c.tokenizer.Count(s) > c.size {
			flush()
			cur = nil
			parts, err := Split(c.tokenizer, s, c.size, c.overlap)
			if err != nil {
				return nil, err
			}
			segments = append(segments, parts...)
			continue
		}
		if len(cur) > 0 && c.count(append(cur, s)) > c.size {
			flush()
			cur = c.tail(cur, budget)
			for len(cur) > 0 && c.count(append(cur, s)) > c.size {
				cur = cur[1:]
			}
		}
		cur = append(cur, s)
	}
	flush()

	chunks := make([]domain.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = newChunk(document, i, seg)
	}
	return chunks, nil
}

// sentences returns trimmed, non-empty sentences including any unterminated tail.
func (c *SentenceChunker) sentences(text string) []string {
	var out []string
	last := 0
	for _, m := range c.splitter.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[m[0]:m[1]]); s != "" {
			out = append(out, s)
		}
		last = m[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// tail returns the longest suffix of sentences whose joined text fits budget.
func (c *SentenceChunker) tail(sentences []string, budget int) []string {
	if budget <= 0 {
		return nil
	}
	start := len(sentences)
	for start > 0 && c.count(sentences[start-1:]) <= budget {
		start--
	}
	out := make([]string, len(sentences)-start)
	copy(out, sentences[start:])
	return out
}

func (c *SentenceChunker) count(sentences []string) int {
	return c.tokenizer.Count(strings.Join(sentences, " "))
}
