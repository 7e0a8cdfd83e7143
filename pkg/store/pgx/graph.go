package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// SaveEvents inserts events with their evidence spans. Events reference
// the pass they were extracted under; earlier passes are never touched.
func (s *GraphDBStore) SaveEvents(ctx context.Context, events []common.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if len(e.Evidence) == 0 {
			return fmt.Errorf("event %s has no evidence spans", e.ID)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO events (id, call_id, pass_id, type, description, ordinal, confidence, low_confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ID, e.CallID, e.PassID, e.Type, util.SanitizePostgresText(e.Description),
			e.Ordinal, e.Confidence, e.LowConfidence,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		for _, span := range e.Evidence {
			_, err := tx.Exec(ctx,
				`INSERT INTO evidence_spans (id, event_id, call_id, start_seq, end_seq, quote)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				span.ID, e.ID, span.CallID, span.Start, span.End, util.SanitizePostgresText(span.Quote),
			)
			if err != nil {
				return fmt.Errorf("failed to insert evidence span: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// SaveLinks inserts causal links with their cue evidence spans.
func (s *GraphDBStore) SaveLinks(ctx context.Context, links []common.CausalLink) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, l := range links {
		_, err := tx.Exec(ctx,
			`INSERT INTO causal_links (id, pass_id, cause_id, effect_id, kind, strength, shared_entity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, l.PassID, l.CauseID, l.EffectID, l.Kind, l.Strength, l.SharedEntity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert causal link: %w", err)
		}
		for _, span := range l.Evidence {
			_, err := tx.Exec(ctx,
				`INSERT INTO evidence_spans (id, link_id, call_id, start_seq, end_seq, quote)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				span.ID, l.ID, span.CallID, span.Start, span.End, util.SanitizePostgresText(span.Quote),
			)
			if err != nil {
				return fmt.Errorf("failed to insert link evidence: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetGraph returns the committed graph for a call: events and links of
// the latest committed pass only (snapshot-read discipline).
func (s *GraphDBStore) GetGraph(ctx context.Context, callID string) (*common.CausalGraph, error) {
	pass, err := s.LatestCommittedPass(ctx, callID)
	if err != nil {
		return nil, err
	}
	graph := &common.CausalGraph{CallIDs: []string{callID}}
	if pass == nil {
		return graph, nil
	}
	return s.graphForPasses(ctx, graph, []string{pass.ID})
}

// GetMergedGraph returns the union of latest committed per-call graphs
// across all calls of one customer. Cross-call links stored by the scorer
// under any of those passes are included when both endpoints are still in
// the latest-pass event set; no new links are asserted here.
func (s *GraphDBStore) GetMergedGraph(ctx context.Context, customerID string) (*common.CausalGraph, error) {
	callIDs, err := s.ListCallIDsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	graph := &common.CausalGraph{CallIDs: callIDs}
	var passIDs []string
	for _, callID := range callIDs {
		pass, err := s.LatestCommittedPass(ctx, callID)
		if err != nil {
			return nil, err
		}
		if pass != nil {
			passIDs = append(passIDs, pass.ID)
		}
	}
	if len(passIDs) == 0 {
		return graph, nil
	}
	return s.graphForPasses(ctx, graph, passIDs)
}

func (s *GraphDBStore) graphForPasses(ctx context.Context, graph *common.CausalGraph, passIDs []string) (*common.CausalGraph, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, call_id, pass_id, type, description, ordinal, confidence, low_confidence
		 FROM events WHERE pass_id = ANY($1) ORDER BY call_id, ordinal`,
		passIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e common.Event
		if err := rows.Scan(&e.ID, &e.CallID, &e.PassID, &e.Type, &e.Description, &e.Ordinal, &e.Confidence, &e.LowConfidence); err != nil {
			return nil, err
		}
		graph.Events = append(graph.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range graph.Events {
		spans, err := s.spansFor(ctx, "event_id", graph.Events[i].ID)
		if err != nil {
			return nil, err
		}
		graph.Events[i].Evidence = spans
	}

	linkRows, err := s.conn.Query(ctx,
		`SELECT id, pass_id, cause_id, effect_id, kind, strength, shared_entity
		 FROM causal_links WHERE pass_id = ANY($1)`,
		passIDs,
	)
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var l common.CausalLink
		if err := linkRows.Scan(&l.ID, &l.PassID, &l.CauseID, &l.EffectID, &l.Kind, &l.Strength, &l.SharedEntity); err != nil {
			return nil, err
		}
		graph.Links = append(graph.Links, l)
	}
	if err := linkRows.Err(); err != nil {
		return nil, err
	}

	pruneDanglingLinks(graph)

	for i := range graph.Links {
		spans, err := s.spansFor(ctx, "link_id", graph.Links[i].ID)
		if err != nil {
			return nil, err
		}
		graph.Links[i].Evidence = spans
	}

	return graph, nil
}

// pruneDanglingLinks drops links whose endpoints are not both in the
// graph's event set. A cross-call link survives under the later call's
// pass when the earlier call is reanalyzed; its cause then points at an
// event no current pass carries, and it must not reach readers.
func pruneDanglingLinks(graph *common.CausalGraph) {
	have := make(map[string]bool, len(graph.Events))
	for i := range graph.Events {
		have[graph.Events[i].ID] = true
	}
	kept := graph.Links[:0]
	for i := range graph.Links {
		if have[graph.Links[i].CauseID] && have[graph.Links[i].EffectID] {
			kept = append(kept, graph.Links[i])
		}
	}
	graph.Links = kept
}

func (s *GraphDBStore) spansFor(ctx context.Context, ownerColumn string, ownerID string) ([]common.EvidenceSpan, error) {
	// ownerColumn is one of two fixed identifiers, never user input.
	rows, err := s.conn.Query(ctx,
		`SELECT id, call_id, start_seq, end_seq, quote FROM evidence_spans WHERE `+ownerColumn+` = $1 ORDER BY start_seq`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []common.EvidenceSpan
	for rows.Next() {
		var span common.EvidenceSpan
		if err := rows.Scan(&span.ID, &span.CallID, &span.Start, &span.End, &span.Quote); err != nil {
			return nil, err
		}
		spans = append(spans, span)
	}
	return spans, rows.Err()
}
