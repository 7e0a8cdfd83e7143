package index

import (
	"context"
	"fmt"
	"strings"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/OFFIS-RIT/causeway/internal/util"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// PGEvidenceIndex implements EvidenceIndex on PostgreSQL: a tsvector
// column for the lexical side and a pgvector column for the vector side,
// fused in Go with reciprocal-rank fusion.
type PGEvidenceIndex struct {
	conn pgxIConn
	// lexWeight blends lexical vs vector ranking; configurable, defaults
	// to an even split.
	lexWeight float64
}

// NewPGEvidenceIndex creates the index over an existing connection/pool.
// lexWeight outside [0,1] falls back to 0.5.
func NewPGEvidenceIndex(conn pgxIConn, lexWeight float64) *PGEvidenceIndex {
	if lexWeight < 0 || lexWeight > 1 {
		lexWeight = 0.5
	}
	return &PGEvidenceIndex{conn: conn, lexWeight: lexWeight}
}

// IndexSpans appends entries to both sides of the index. Entries carry
// their pass id; nothing indexed under earlier passes is touched.
func (x *PGEvidenceIndex) IndexSpans(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := x.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO evidence_index (span_id, event_id, pass_id, call_id, speaker, start_seq, end_seq, quote, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (span_id) DO NOTHING`,
			e.Span.ID, e.EventID, e.PassID, e.Span.CallID, e.Speaker,
			e.Span.Start, e.Span.End, util.SanitizePostgresText(e.Span.Quote),
			pgvector.NewVector(e.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to index span: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Search runs both sides with a widened candidate pool, fuses them, and
// returns at most k hits sorted by non-increasing hybrid score. Filters
// restrict both sides identically so fusion stays consistent.
func (x *PGEvidenceIndex) Search(ctx context.Context, queryText string, embedding []float32, k int, filters Filters) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	limit := candidateLimit(k)

	where, args := buildFilterClause(filters)

	lexical, spanData, err := x.lexicalCandidates(ctx, queryText, limit, where, args)
	if err != nil {
		return nil, err
	}

	vector, vecSpanData, err := x.vectorCandidates(ctx, embedding, limit, where, args)
	if err != nil {
		return nil, err
	}
	for id, d := range vecSpanData {
		if _, ok := spanData[id]; !ok {
			spanData[id] = d
		}
	}

	fused := FuseRanks(lexical, vector, x.lexWeight)

	hits := make([]Hit, 0, k)
	for _, f := range fused {
		if len(hits) >= k {
			break
		}
		d, ok := spanData[f.ID]
		if !ok {
			continue
		}
		d.Score = f.Score
		hits = append(hits, d)
	}
	return hits, nil
}

func buildFilterClause(filters Filters) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filters.CallID != "" {
		add("ei.call_id = $%d", filters.CallID)
	}
	if filters.PassID != "" {
		add("ei.pass_id = $%d", filters.PassID)
	}
	if filters.Speaker != "" {
		add("ei.speaker = $%d", filters.Speaker)
	}
	if filters.From != nil {
		add("c.ingested_at >= $%d", *filters.From)
	}
	if filters.To != nil {
		add("c.ingested_at <= $%d", *filters.To)
	}
	// Only spans of committed passes are searchable. Without an explicit
	// pass pin, superseded committed passes are excluded too: after a
	// reanalysis their spans duplicate the current ones and would crowd
	// current evidence out of the candidate pools.
	clauses = append(clauses, "ep.status = 'committed'")
	if filters.PassID == "" {
		clauses = append(clauses, latestPassClause)
	}

	return strings.Join(clauses, " AND "), args
}

// latestPassClause keeps only each call's most recent committed pass in
// the candidate pools.
const latestPassClause = `ei.pass_id IN (
		SELECT DISTINCT ON (call_id) id FROM extraction_passes
		WHERE status = 'committed'
		ORDER BY call_id, committed_at DESC)`

const searchBase = `
	FROM evidence_index ei
	JOIN extraction_passes ep ON ep.id = ei.pass_id
	JOIN calls c ON c.id = ei.call_id
	WHERE `

func (x *PGEvidenceIndex) lexicalCandidates(ctx context.Context, queryText string, limit int, where string, args []any) ([]rankedID, map[string]Hit, error) {
	qArgs := append(append([]any{}, args...), queryText, limit)
	sql := `SELECT ei.span_id, ei.event_id, ei.pass_id, ei.call_id, ei.start_seq, ei.end_seq, ei.quote` +
		searchBase + where +
		fmt.Sprintf(` AND ei.tsv @@ plainto_tsquery('english', $%d)
		ORDER BY ts_rank(ei.tsv, plainto_tsquery('english', $%d)) DESC
		LIMIT $%d`, len(args)+1, len(args)+1, len(args)+2)

	return x.collectCandidates(ctx, sql, qArgs)
}

func (x *PGEvidenceIndex) vectorCandidates(ctx context.Context, embedding []float32, limit int, where string, args []any) ([]rankedID, map[string]Hit, error) {
	if len(embedding) == 0 {
		return nil, map[string]Hit{}, nil
	}
	qArgs := append(append([]any{}, args...), pgvector.NewVector(embedding), limit)
	sql := `SELECT ei.span_id, ei.event_id, ei.pass_id, ei.call_id, ei.start_seq, ei.end_seq, ei.quote` +
		searchBase + where +
		fmt.Sprintf(` ORDER BY ei.embedding <=> $%d LIMIT $%d`, len(args)+1, len(args)+2)

	return x.collectCandidates(ctx, sql, qArgs)
}

func (x *PGEvidenceIndex) collectCandidates(ctx context.Context, sql string, args []any) ([]rankedID, map[string]Hit, error) {
	rows, err := x.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ranked []rankedID
	data := make(map[string]Hit)
	rank := 0
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Span.ID, &h.EventID, &h.PassID, &h.Span.CallID, &h.Span.Start, &h.Span.End, &h.Span.Quote); err != nil {
			return nil, nil, err
		}
		ranked = append(ranked, rankedID{ID: h.Span.ID, Rank: rank})
		data[h.Span.ID] = h
		rank++
	}
	return ranked, data, rows.Err()
}
