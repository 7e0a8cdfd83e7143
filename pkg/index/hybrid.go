package index

import "sort"

// Reciprocal-rank fusion constant; 60 is the standard damping value.
const rrfK = 60.0

// rankedID pairs a candidate id with its rank (0-based) on one side of
// the hybrid search.
type rankedID struct {
	ID   string
	Rank int
}

// FuseRanks combines lexical and vector rankings with weighted
// reciprocal-rank fusion and returns ids by descending fused score.
// lexWeight blends the two sides: 1.0 is lexical-only, 0.0 vector-only.
func FuseRanks(lexical, vector []rankedID, lexWeight float64) []scoredID {
	if lexWeight < 0 {
		lexWeight = 0
	}
	if lexWeight > 1 {
		lexWeight = 1
	}

	scores := make(map[string]float64)
	for _, r := range lexical {
		scores[r.ID] += lexWeight / (rrfK + float64(r.Rank+1))
	}
	for _, r := range vector {
		scores[r.ID] += (1 - lexWeight) / (rrfK + float64(r.Rank+1))
	}

	out := make([]scoredID, 0, len(scores))
	for id, score := range scores {
		out = append(out, scoredID{ID: id, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type scoredID struct {
	ID    string
	Score float64
}

// candidateLimit widens the per-side candidate pool beyond k so fusion
// has overlap to work with, within sane bounds.
func candidateLimit(k int) int {
	if k <= 0 {
		k = 10
	}
	limit := k * 6
	if limit < 40 {
		limit = 40
	}
	if limit > 240 {
		limit = 240
	}
	return limit
}
