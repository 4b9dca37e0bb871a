// Package composer turns ranked chunks into a grounded prompt, calls the
// generator and binds the [n] markers of the answer to citations.
package composer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"minirag/internal/domain"
)

const (
	sourcesHeader  = "SOURCES:"
	questionHeader = "QUESTION:"
	answerHeader   = "ANSWER:"
	defaultTitle   = "Source"
)

const instructions = `You are a helpful AI assistant. Answer the question based on the provided sources below.

IMPORTANT RULES:
1. Base your answer only on the numbered sources [1], [2], etc.
2. Include citations using [1], [2], etc. after sentences that reference a source.
3. Only cite numbers that appear in the SOURCES list.
4. Synthesize information across multiple sources when relevant.
5. If the sources provide partial information, answer what you can and note any gaps.
6. Only if the sources contain NO relevant information at all, say "I cannot find this information in the provided sources."
7. Be concise, accurate, and helpful.`

// BuildPrompt renders the grounding prompt. Source i is numbered i+1.
func BuildPrompt(query string, ranked []domain.CandidateHit) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(sourcesHeader)
	b.WriteString("\n")
	for i, h := range ranked {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title := strings.TrimSpace(h.Chunk.Title)
		if title == "" {
			title = defaultTitle
		}
		text := headerLikeRe.ReplaceAllString(strings.TrimSpace(h.Chunk.Text), " $0")
		fmt.Fprintf(&b, "[%d] %s\n%s", i+1, title, text)
	}
	b.WriteString("\n\n")
	b.WriteString(questionHeader)
	b.WriteString(" ")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\n")
	b.WriteString(answerHeader)
	return b.String()
}

// PromptSource is one numbered source recovered from a prompt.
type PromptSource struct {
	Number int
	Title  string
	Text   string
}

var (
	sourceHeaderRe = regexp.MustCompile(`(?m)^\[(\d+)\] (.*)$`)
	// chunk lines that would read as a source header get a leading space
	headerLikeRe = regexp.MustCompile(`(?m)^\[\d+\] `)
	escapedRe    = regexp.MustCompile(`(?m)^ (\[\d+\] )`)
)

// ParsePrompt recovers the question and numbered sources from a prompt built
// by BuildPrompt. It lets offline generators answer from the same prompt a
// remote model would see. Headers are taken in sequence from [1]; a header
// line out of sequence belongs to the text of the source before it.
func ParsePrompt(prompt string) (question string, sources []PromptSource) {
	start := strings.Index(prompt, sourcesHeader+"\n")
	qpos := strings.LastIndex(prompt, "\n\n"+questionHeader+" ")
	if start < 0 || qpos < start {
		return "", nil
	}
	body := prompt[start+len(sourcesHeader)+1 : qpos]
	rest := prompt[qpos+len("\n\n"+questionHeader+" "):]
	if end := strings.LastIndex(rest, "\n\n"+answerHeader); end >= 0 {
		rest = rest[:end]
	}
	question = strings.TrimSpace(rest)

	var headers [][]int
	for _, m := range sourceHeaderRe.FindAllStringSubmatchIndex(body, -1) {
		if n, err := strconv.Atoi(body[m[2]:m[3]]); err == nil && n == len(headers)+1 {
			headers = append(headers, m)
		}
	}
	for i, m := range headers {
		textEnd := len(body)
		if i+1 < len(headers) {
			textEnd = headers[i+1][0]
		}
		textStart := m[1]
		if textStart < textEnd {
			textStart++
		}
		sources = append(sources, PromptSource{
			Number: i + 1,
			Title:  body[m[4]:m[5]],
			Text:   escapedRe.ReplaceAllString(strings.TrimSpace(body[textStart:textEnd]), "$1"),
		})
	}
	return question, sources
}
