package composer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"minirag/internal/domain"
)

// NoInformationAnswer is returned when there is nothing to ground an answer on.
const NoInformationAnswer = "No relevant information found in the provided sources."

// Policy decides what happens to markers that point outside the sources.
type Policy string

const (
	// PolicyStrip removes invalid markers and reports them in QueryResult.Ungrounded.
	PolicyStrip Policy = "strip"
	// PolicyReject fails the composition with ErrUngroundedCitation.
	PolicyReject Policy = "reject"
)

var (
	markerRe = regexp.MustCompile(`\[(\d+)\]`)
	// a marker with the blanks in front of it, so removal leaves no gap
	spacedMarkerRe = regexp.MustCompile(`[ \t]*\[(\d+)\]`)
)

// Composer builds the prompt, generates and validates the answer.
type Composer struct {
	generator domain.Generator
	policy    Policy
	logger    *log.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithPolicy sets the handling of out-of-range markers.
func WithPolicy(p Policy) Option {
	return func(c *Composer) { c.policy = p }
}

// WithLogger sets the logger used for ungrounded marker warnings.
func WithLogger(l *log.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

func New(generator domain.Generator, opts ...Option) *Composer {
	c := &Composer{generator: generator, policy: PolicyStrip}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(log.Writer(), "[COMPOSER] ", log.LstdFlags)
	}
	return c
}

// Compose answers query from ranked. Citation i+1 is ranked[i]. Every marker
// left in the answer is within [1, len(ranked)].
func (c *Composer) Compose(ctx context.Context, query string, ranked []domain.CandidateHit) (domain.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return domain.QueryResult{}, domain.Invalid("query is empty")
	}
	if len(ranked) == 0 {
		return domain.QueryResult{Answer: NoInformationAnswer, Citations: []domain.Citation{}}, nil
	}

	raw, err := c.generate(ctx, query, ranked)
	if err != nil {
		if errors.Is(err, domain.ErrGenerationFailed) {
			return domain.QueryResult{}, err
		}
		return domain.QueryResult{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.QueryResult{}, fmt.Errorf("%w: %s returned an empty answer", domain.ErrGenerationFailed, c.generator.Name())
	}

	answer, invalid := Validate(raw, len(ranked))
	if len(invalid) > 0 {
		if c.policy == PolicyReject {
			return domain.QueryResult{}, &domain.UngroundedCitationError{Numbers: invalid, Sources: len(ranked)}
		}
		c.logger.Printf("removed ungrounded citations %v (sources=%d)", invalid, len(ranked))
		if answer == "" {
			return domain.QueryResult{}, fmt.Errorf("%w: %s answered with ungrounded markers %v only", domain.ErrGenerationFailed, c.generator.Name(), invalid)
		}
	}

	return domain.QueryResult{
		Answer:         answer,
		Citations:      Citations(ranked),
		RetrievedCount: len(ranked),
		Ungrounded:     invalid,
	}, nil
}

func (c *Composer) generate(ctx context.Context, query string, ranked []domain.CandidateHit) (string, error) {
	if sg, ok := c.generator.(domain.SourcesGenerator); ok {
		return sg.GenerateFromSources(ctx, query, ranked)
	}
	return c.generator.Generate(ctx, BuildPrompt(query, ranked))
}

// Citations numbers ranked chunks from 1 in order.
func Citations(ranked []domain.CandidateHit) []domain.Citation {
	out := make([]domain.Citation, len(ranked))
	for i, h := range ranked {
		out[i] = domain.Citation{
			Number:   i + 1,
			Text:     h.Chunk.Text,
			Source:   h.Chunk.Source,
			Title:    h.Chunk.Title,
			Position: h.Chunk.Position,
		}
	}
	return out
}

// Validate removes markers outside [1, n], with the blanks directly before
// them, and returns the cleaned answer with the removed numbers in order of
// appearance. The rest of the answer is left as is.
func Validate(answer string, n int) (string, []int) {
	var invalid []int
	cleaned := spacedMarkerRe.ReplaceAllStringFunc(answer, func(m string) string {
		digits := m[strings.LastIndexByte(m, '[')+1 : len(m)-1]
		num, err := strconv.Atoi(digits)
		if err == nil && num >= 1 && num <= n {
			return m
		}
		if err != nil {
			num = -1
		}
		invalid = append(invalid, num)
		return ""
	})
	if len(invalid) == 0 {
		return answer, nil
	}
	return strings.TrimSpace(cleaned), invalid
}

// CitedNumbers returns the distinct valid markers of answer in order of first use.
func CitedNumbers(answer string, n int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, m := range markerRe.FindAllStringSubmatch(answer, -1) {
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > n {
			continue
		}
		if _, ok := seen[num]; ok {
			continue
		}
		seen[num] = struct{}{}
		out = append(out, num)
	}
	return out
}
