// Package lexical reranks candidates by query term overlap.
package lexical

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"minirag/internal/domain"
)

var unicodeWordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// Reranker scores each candidate with the Ochiai coefficient between the
// query's distinct terms and the chunk's distinct terms.
type Reranker struct{}

func New() *Reranker { return &Reranker{} }

func (r *Reranker) Name() string { return "lexical" }

// Rerank orders hits by overlap score, keeping the incoming order between
// equal scores, and truncates to topK. Scores are replaced by the overlap.
func (r *Reranker) Rerank(_ context.Context, query string, hits []domain.CandidateHit, topK int) ([]domain.CandidateHit, error) {
	if topK <= 0 {
		return nil, domain.Invalid("top_k must be positive, got %d", topK)
	}
	qset := toTokenSet(query)
	out := make([]domain.CandidateHit, len(hits))
	copy(out, hits)
	for i := range out {
		out[i].Score = overlapOchiai(qset, out[i].Chunk.Text)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct terms.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := unicodeWordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
