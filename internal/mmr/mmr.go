// Package mmr selects a relevant and diverse subset of search hits using
// Maximal Marginal Relevance.
package mmr

import (
	"math"

	"minirag/internal/domain"
)

// Select greedily picks min(k, len(candidates)) hits. Each step takes the
// candidate maximising
//
//	lambda*sim(q,c) - (1-lambda)*max_{s in selected} sim(c,s)
//
// where sim is cosine similarity. The diversity term is 0 while nothing is
// selected. Ties go to the candidate that ranked earlier in the input. A hit
// without a vector uses its search score as relevance and is similar to
// nothing.
func Select(query []float64, candidates []domain.CandidateHit, k int, lambda float64) ([]domain.CandidateHit, error) {
	if len(candidates) == 0 {
		return nil, domain.ErrEmptyCandidateSet
	}
	if k <= 0 {
		return nil, domain.Invalid("mmr k must be positive, got %d", k)
	}
	if lambda < 0 || lambda > 1 || math.IsNaN(lambda) {
		return nil, domain.Invalid("mmr lambda must be in [0,1], got %g", lambda)
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		if c.Vector == nil {
			relevance[i] = c.Score
			continue
		}
		relevance[i] = domain.Cosine(query, c.Vector)
	}

	// redundancy[i] is max similarity of candidate i to anything selected so far.
	redundancy := make([]float64, len(candidates))
	taken := make([]bool, len(candidates))
	out := make([]domain.CandidateHit, 0, k)
	for len(out) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if taken[i] {
				continue
			}
			score := lambda * relevance[i]
			if len(out) > 0 {
				score -= (1 - lambda) * redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			// every remaining score is NaN
			for i := range candidates {
				if !taken[i] {
					best = i
					break
				}
			}
		}
		taken[best] = true
		out = append(out, candidates[best])

		for i := range candidates {
			if taken[i] {
				continue
			}
			sim := domain.Cosine(candidates[i].Vector, candidates[best].Vector)
			if len(out) == 1 || sim > redundancy[i] {
				redundancy[i] = sim
			}
		}
	}
	return out, nil
}
