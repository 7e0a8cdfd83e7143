package index

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// Entry is one evidence span to index, with its pre-computed embedding
// and the attributes queries can filter on.
type Entry struct {
	Span      common.EvidenceSpan
	EventID   string
	PassID    string
	Speaker   string
	Embedding []float32
}

// Filters restricts a search. Zero values mean no restriction.
type Filters struct {
	CallID  string
	PassID  string
	Speaker string
	From    *time.Time
	To      *time.Time
}

// Hit is one ranked search result. Score is the hybrid score; the list a
// search returns is sorted by non-increasing Score.
type Hit struct {
	Span    common.EvidenceSpan
	EventID string
	PassID  string
	Score   float64
}

// EvidenceIndex is the hybrid lexical+vector index over evidence spans.
// Both sides are append-only per pass: re-analysis indexes new entries
// under a new pass id and leaves old entries alone, so historical answers
// stay reproducible.
type EvidenceIndex interface {
	IndexSpans(ctx context.Context, entries []Entry) error
	// Search returns up to k hits for the query text and its embedding,
	// ranked by a blend of lexical and vector similarity.
	Search(ctx context.Context, queryText string, embedding []float32, k int, filters Filters) ([]Hit, error)
}
