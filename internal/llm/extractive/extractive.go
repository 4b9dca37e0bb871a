// Package extractive answers offline by quoting the source sentences that
// best match the question, each followed by its [n] marker.
package extractive

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"minirag/internal/composer"
	"minirag/internal/domain"
)

// NotFoundAnswer is returned when no sentence shares a term with the question.
const NotFoundAnswer = "I cannot find this information in the provided sources."

var (
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	markerRe   = regexp.MustCompile(`\[\d+\]`)
)

// Generator ranks sentences by question-term overlap, breaking ties with the
// word-frequency score of the sources.
type Generator struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
	maxSentences int
}

// New creates an extractive generator quoting at most maxSentences sentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Generator{
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
		maxSentences: maxSentences,
	}
}

func (g *Generator) Name() string { return "extractive" }

type sentence struct {
	source  int
	order   int
	text    string
	overlap int
	score   float64
}

// Generate reads the question and numbered sources back out of the prompt.
func (g *Generator) Generate(_ context.Context, prompt string) (string, error) {
	question, sources := composer.ParsePrompt(prompt)
	return g.answer(question, sources)
}

// GenerateFromSources answers from the ranked hits without a prompt round
// trip, so chunk text can never be mistaken for a source header.
func (g *Generator) GenerateFromSources(_ context.Context, question string, ranked []domain.CandidateHit) (string, error) {
	sources := make([]composer.PromptSource, len(ranked))
	for i, h := range ranked {
		sources[i] = composer.PromptSource{Number: i + 1, Title: h.Chunk.Title, Text: h.Chunk.Text}
	}
	return g.answer(question, sources)
}

func (g *Generator) answer(question string, sources []composer.PromptSource) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("%w: prompt carries no sources", domain.ErrGenerationFailed)
	}
	qterms := map[string]struct{}{}
	for _, tok := range g.tokens(question) {
		if _, stop := g.stopwords[tok]; !stop {
			qterms[tok] = struct{}{}
		}
	}

	var sents []sentence
	for _, src := range sources {
		parts := sentenceRe.FindAllString(src.Text, -1)
		if len(parts) == 0 {
			parts = []string{src.Text}
		}
		for _, p := range parts {
			// markers quoted from the source would read as our own citations
			p = strings.Join(strings.Fields(markerRe.ReplaceAllString(p, " ")), " ")
			if p != "" {
				sents = append(sents, sentence{source: src.Number, order: len(sents), text: p})
			}
		}
	}

	freq := g.frequencies(sents)
	for i := range sents {
		s := &sents[i]
		toks := g.tokens(s.text)
		seen := map[string]struct{}{}
		for _, tok := range toks {
			if _, ok := qterms[tok]; ok {
				if _, dup := seen[tok]; !dup {
					seen[tok] = struct{}{}
					s.overlap++
				}
			}
			s.score += freq[tok]
		}
		if l := float64(len(toks)); l > 0 {
			s.score /= math.Sqrt(l)
		}
	}

	var ranked []sentence
	for _, s := range sents {
		if s.overlap > 0 {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 {
		return NotFoundAnswer, nil
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].overlap != ranked[j].overlap {
			return ranked[i].overlap > ranked[j].overlap
		}
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > g.maxSentences {
		ranked = ranked[:g.maxSentences]
	}
	// Keep original order among selected
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].order < ranked[j].order })

	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = cite(s.text, s.source)
	}
	return strings.Join(out, " "), nil
}

// cite puts the marker before the closing punctuation: "Text [2]."
func cite(text string, n int) string {
	marker := fmt.Sprintf("[%d]", n)
	if last := text[len(text)-1]; last == '.' || last == '!' || last == '?' {
		return strings.TrimRight(text[:len(text)-1], " ") + " " + marker + string(last)
	}
	return text + " " + marker + "."
}

// frequencies are stopword-filtered term counts normalised by the maximum.
func (g *Generator) frequencies(sents []sentence) map[string]float64 {
	freq := map[string]float64{}
	for _, s := range sents {
		for _, tok := range g.tokens(s.text) {
			if _, ok := g.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

func (g *Generator) tokens(text string) []string {
	return g.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "who", "whom", "which", "when", "where", "why", "how", "do", "does", "did", "tell", "me", "explain",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
