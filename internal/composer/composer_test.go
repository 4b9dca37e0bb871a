package composer

import (
	"bytes"
	"context"
	"errors"
	"log"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirag/internal/domain"
)

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func ranked(texts ...string) []domain.CandidateHit {
	out := make([]domain.CandidateHit, len(texts))
	for i, t := range texts {
		out[i] = domain.CandidateHit{Chunk: domain.Chunk{
			ChunkID:  "doc:" + strconv.Itoa(i),
			Text:     t,
			Title:    "Title " + strconv.Itoa(i),
			Source:   "src.txt",
			Position: i,
		}}
	}
	return out
}

func quietLogger() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

func TestComposeNumbersCitationsInRankOrder(t *testing.T) {
	gen := &stubGenerator{answer: "Cats purr [2]. Dogs bark [1]."}
	c := New(gen, WithLogger(quietLogger()))

	res, err := c.Compose(context.Background(), "what do pets do?", ranked("dogs bark", "cats purr", "fish swim"))
	require.NoError(t, err)

	require.Len(t, res.Citations, 3)
	for i, cit := range res.Citations {
		assert.Equal(t, i+1, cit.Number)
		assert.Equal(t, i, cit.Position)
	}
	assert.Equal(t, "dogs bark", res.Citations[0].Text)
	assert.Equal(t, "Cats purr [2]. Dogs bark [1].", res.Answer)
	assert.Equal(t, 3, res.RetrievedCount)
	assert.Empty(t, res.Ungrounded)
}

func TestComposePromptListsNumberedSources(t *testing.T) {
	gen := &stubGenerator{answer: "ok [1]"}
	c := New(gen, WithLogger(quietLogger()))
	hits := ranked("alpha text", "beta text")
	hits[1].Chunk.Title = ""

	_, err := c.Compose(context.Background(), "  question?  ", hits)
	require.NoError(t, err)

	assert.Contains(t, gen.prompt, "SOURCES:\n[1] Title 0\nalpha text\n\n[2] Source\nbeta text\n\nQUESTION: question?\n\nANSWER:")
	assert.Contains(t, gen.prompt, "IMPORTANT RULES:")
}

func TestComposeStripsOutOfRangeMarkers(t *testing.T) {
	gen := &stubGenerator{answer: "Cats purr [1] [7]. Also [0] dogs [2]."}
	var logs bytes.Buffer
	c := New(gen, WithLogger(log.New(&logs, "", 0)))

	res, err := c.Compose(context.Background(), "q", ranked("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, "Cats purr [1]. Also dogs [2].", res.Answer)
	assert.Equal(t, []int{7, 0}, res.Ungrounded)
	assert.Contains(t, logs.String(), "[7 0]")

	for _, m := range regexp.MustCompile(`\[(\d+)\]`).FindAllStringSubmatch(res.Answer, -1) {
		n, _ := strconv.Atoi(m[1])
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, res.RetrievedCount)
	}
}

func TestComposeRejectPolicy(t *testing.T) {
	gen := &stubGenerator{answer: "Claim [3]."}
	c := New(gen, WithPolicy(PolicyReject), WithLogger(quietLogger()))

	_, err := c.Compose(context.Background(), "q", ranked("a", "b"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUngroundedCitation)
	var uerr *domain.UngroundedCitationError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, []int{3}, uerr.Numbers)
}

func TestComposeGenerationFailures(t *testing.T) {
	t.Run("generator error", func(t *testing.T) {
		c := New(&stubGenerator{err: errors.New("boom")}, WithLogger(quietLogger()))
		_, err := c.Compose(context.Background(), "q", ranked("a"))
		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
		assert.Contains(t, err.Error(), "boom")
	})
	t.Run("blank answer", func(t *testing.T) {
		c := New(&stubGenerator{answer: " \n "}, WithLogger(quietLogger()))
		_, err := c.Compose(context.Background(), "q", ranked("a"))
		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	})
}

func TestComposeWithoutSourcesSkipsGenerator(t *testing.T) {
	gen := &stubGenerator{err: errors.New("must not be called")}
	c := New(gen, WithLogger(quietLogger()))

	res, err := c.Compose(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, NoInformationAnswer, res.Answer)
	assert.Empty(t, res.Citations)
	assert.Equal(t, 0, res.RetrievedCount)
	assert.Empty(t, gen.prompt)
}

func TestComposeRejectsEmptyQuery(t *testing.T) {
	c := New(&stubGenerator{answer: "x"}, WithLogger(quietLogger()))
	_, err := c.Compose(context.Background(), "   ", ranked("a"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestValidateHugeMarker(t *testing.T) {
	answer, invalid := Validate("x [99999999999999999999999] y [1]", 1)
	assert.Equal(t, "x y [1]", answer)
	assert.Equal(t, []int{-1}, invalid)
}

func TestCitedNumbers(t *testing.T) {
	assert.Equal(t, []int{2, 1}, CitedNumbers("b [2] a [1] again [2] bad [9]", 3))
	assert.Empty(t, CitedNumbers("no markers", 3))
}

func TestParsePromptRoundTrip(t *testing.T) {
	hits := ranked("First chunk text.\nSecond line.", "Other text.")
	prompt := BuildPrompt("What is it?", hits)

	q, sources := ParsePrompt(prompt)
	assert.Equal(t, "What is it?", q)
	require.Len(t, sources, 2)
	assert.Equal(t, PromptSource{Number: 1, Title: "Title 0", Text: "First chunk text.\nSecond line."}, sources[0])
	assert.Equal(t, PromptSource{Number: 2, Title: "Title 1", Text: "Other text."}, sources[1])

	q, sources = ParsePrompt("free form")
	assert.Empty(t, q)
	assert.Empty(t, sources)
}

func TestParsePromptKeepsHeaderLikeLinesInChunkText(t *testing.T) {
	hits := ranked("Cats are small mammals.", "Notes follow.\n[1] Footnote\n[9] Another\nDogs bark loudly at strangers.")
	prompt := BuildPrompt("Why do dogs bark?", hits)
	assert.NotContains(t, prompt, "\n[9] Another")

	_, sources := ParsePrompt(prompt)
	require.Len(t, sources, 2)
	assert.Equal(t, PromptSource{Number: 1, Title: "Title 0", Text: "Cats are small mammals."}, sources[0])
	assert.Equal(t, PromptSource{Number: 2, Title: "Title 1", Text: "Notes follow.\n[1] Footnote\n[9] Another\nDogs bark loudly at strangers."}, sources[1])
}

func TestParsePromptIgnoresOutOfSequenceHeaders(t *testing.T) {
	prompt := "SOURCES:\n[1] A\nalpha\n[3] B\nbeta\n[2] C\ngamma\n\nQUESTION: q\n\nANSWER:"
	_, sources := ParsePrompt(prompt)
	require.Len(t, sources, 2)
	assert.Equal(t, "alpha\n[3] B\nbeta", sources[0].Text)
	assert.Equal(t, PromptSource{Number: 2, Title: "C", Text: "gamma"}, sources[1])
}

type sourcesStub struct {
	stubGenerator
	question string
	hits     []domain.CandidateHit
}

func (s *sourcesStub) GenerateFromSources(_ context.Context, question string, ranked []domain.CandidateHit) (string, error) {
	s.question, s.hits = question, ranked
	return s.answer, s.err
}

func TestComposePrefersSourcesGenerator(t *testing.T) {
	gen := &sourcesStub{stubGenerator: stubGenerator{answer: "Dogs bark [2]."}}
	hits := ranked("cats purr", "dogs bark")

	res, err := New(gen, WithLogger(quietLogger())).Compose(context.Background(), "dogs?", hits)
	require.NoError(t, err)
	assert.Empty(t, gen.prompt)
	assert.Equal(t, "dogs?", gen.question)
	assert.Equal(t, hits, gen.hits)
	assert.Equal(t, "Dogs bark [2].", res.Answer)
}

func TestValidateLeavesLayoutAlone(t *testing.T) {
	answer, invalid := Validate("Steps:\n\n    indented  code  [1]\n- a ; b [7].", 1)
	assert.Equal(t, "Steps:\n\n    indented  code  [1]\n- a ; b.", answer)
	assert.Equal(t, []int{7}, invalid)
}

func TestComposeOnlyUngroundedMarkersFails(t *testing.T) {
	for _, answer := range []string{"[5]", "[0] [9]"} {
		gen := &stubGenerator{answer: answer}
		_, err := New(gen, WithLogger(quietLogger())).Compose(context.Background(), "q", ranked("a", "b"))
		assert.ErrorIs(t, err, domain.ErrGenerationFailed, answer)
		assert.NotErrorIs(t, err, domain.ErrUngroundedCitation, answer)
	}
}
