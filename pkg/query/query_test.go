package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/index"
)

type fakeCapability struct {
	parsed ParsedQuestion
}

func (f *fakeCapability) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeCapability) ExtractStructured(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	*(out.(*ParsedQuestion)) = f.parsed
	return nil
}

func (f *fakeCapability) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f *fakeCapability) ResetMetrics()               {}
func (f *fakeCapability) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fakeStore struct {
	graphs map[string]*common.CausalGraph
	merged map[string]*common.CausalGraph
}

func (f *fakeStore) SaveCall(ctx context.Context, call *common.Call) error { return nil }
func (f *fakeStore) GetCall(ctx context.Context, id string) (*common.Call, error) {
	return nil, nil
}
func (f *fakeStore) ListCallIDsByCustomer(ctx context.Context, customerID string) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) CreatePass(ctx context.Context, callID string) (*common.ExtractionPass, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStore) MarkPassRunning(ctx context.Context, passID string) error { return nil }
func (f *fakeStore) CommitPass(ctx context.Context, passID string, unanalyzed []common.Window) error {
	return nil
}
func (f *fakeStore) FailPass(ctx context.Context, passID string, reason string) error { return nil }
func (f *fakeStore) LatestCommittedPass(ctx context.Context, callID string) (*common.ExtractionPass, error) {
	return nil, nil
}
func (f *fakeStore) StaleRunningPasses(ctx context.Context, olderThan time.Duration) ([]common.ExtractionPass, error) {
	return nil, nil
}
func (f *fakeStore) SaveEvents(ctx context.Context, events []common.Event) error     { return nil }
func (f *fakeStore) SaveLinks(ctx context.Context, links []common.CausalLink) error  { return nil }
func (f *fakeStore) GetGraph(ctx context.Context, callID string) (*common.CausalGraph, error) {
	if g, ok := f.graphs[callID]; ok {
		return g, nil
	}
	return &common.CausalGraph{}, nil
}
func (f *fakeStore) GetMergedGraph(ctx context.Context, customerID string) (*common.CausalGraph, error) {
	if g, ok := f.merged[customerID]; ok {
		return g, nil
	}
	return &common.CausalGraph{}, nil
}
func (f *fakeStore) WithMergeLock(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeIndex struct {
	hits []index.Hit
}

func (f *fakeIndex) IndexSpans(ctx context.Context, entries []index.Entry) error { return nil }
func (f *fakeIndex) Search(ctx context.Context, queryText string, embedding []float32, k int, filters index.Filters) ([]index.Hit, error) {
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func chainGraph(callID string, strengths ...float64) *common.CausalGraph {
	g := &common.CausalGraph{CallIDs: []string{callID}}
	n := len(strengths) + 1
	for i := 0; i < n; i++ {
		g.Events = append(g.Events, common.Event{
			ID:          eventID(i),
			CallID:      callID,
			Type:        common.EventServiceFailure,
			Description: "event",
			Ordinal:     i,
			Confidence:  0.9,
			Evidence:    []common.EvidenceSpan{{ID: eventID(i) + "-ev", CallID: callID, Start: i, End: i, Quote: "q"}},
		})
	}
	for i, s := range strengths {
		g.Links = append(g.Links, common.CausalLink{
			ID:       "l" + eventID(i),
			CauseID:  eventID(i),
			EffectID: eventID(i + 1),
			Kind:     common.RelationTriggering,
			Strength: s,
		})
	}
	return g
}

func eventID(i int) string {
	return string(rune('a' + i))
}

func intentParsed(direction string) ParsedQuestion {
	return ParsedQuestion{
		Direction:   direction,
		EventTypes:  []string{common.EventCancellationIntent},
		Keywords:    []string{"cancel"},
		EventIntent: true,
	}
}

func TestResolve_CausesWalksPredecessors(t *testing.T) {
	graph := &common.CausalGraph{
		CallIDs: []string{"call-1"},
		Events: []common.Event{
			{ID: "fail", CallID: "call-1", Type: common.EventServiceFailure, Description: "missed delivery", Ordinal: 0, Confidence: 0.9,
				Evidence: []common.EvidenceSpan{{ID: "s1", CallID: "call-1", Start: 0, End: 0, Quote: "We missed your delivery window."}}},
			{ID: "cancel", CallID: "call-1", Type: common.EventCancellationIntent, Description: "customer cancels", Ordinal: 1, Confidence: 0.9,
				Evidence: []common.EvidenceSpan{{ID: "s2", CallID: "call-1", Start: 1, End: 1, Quote: "That's why I'm cancelling."}}},
		},
		Links: []common.CausalLink{
			{ID: "l1", CauseID: "fail", EffectID: "cancel", Kind: common.RelationTriggering, Strength: 0.9},
		},
	}

	resolver := NewResolver(
		&fakeCapability{parsed: intentParsed(DirectionCauses)},
		&fakeStore{graphs: map[string]*common.CausalGraph{"call-1": graph}},
		&fakeIndex{hits: []index.Hit{{Span: graph.Events[1].Evidence[0], EventID: "cancel", Score: 0.03}}},
		DefaultConfig(),
	)

	res, err := resolver.Resolve(context.Background(), "why did the customer cancel?", common.Scope{CallID: "call-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.LowConfidence {
		t.Fatalf("expected confident resolution, got low confidence (%.3f): %v", res.Confidence, res.Err)
	}
	if len(res.Subgraph.Events) != 2 {
		t.Fatalf("expected both events in subgraph, got %d", len(res.Subgraph.Events))
	}
	if len(res.Subgraph.Links) != 1 || res.Subgraph.Links[0].ID != "l1" {
		t.Fatalf("expected causal link in subgraph, got %+v", res.Subgraph.Links)
	}
	if res.Subgraph.Events[0].ID != "fail" {
		t.Fatalf("expected events in call order, got %s first", res.Subgraph.Events[0].ID)
	}
	if res.Direction != DirectionCauses {
		t.Fatalf("unexpected direction %q", res.Direction)
	}
}

func TestResolve_NoEventIntent(t *testing.T) {
	resolver := NewResolver(
		&fakeCapability{parsed: ParsedQuestion{EventIntent: false}},
		&fakeStore{},
		&fakeIndex{},
		DefaultConfig(),
	)

	_, err := resolver.Resolve(context.Background(), "what is 2+2?", common.Scope{})
	var unresolvable *common.UnresolvableQueryError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("expected UnresolvableQueryError, got %v", err)
	}
	if unresolvable.Guidance == "" {
		t.Fatal("expected guidance in error")
	}
}

func TestResolve_NoEvidenceIsLowConfidence(t *testing.T) {
	resolver := NewResolver(
		&fakeCapability{parsed: intentParsed(DirectionExplain)},
		&fakeStore{graphs: map[string]*common.CausalGraph{}},
		&fakeIndex{},
		DefaultConfig(),
	)

	res, err := resolver.Resolve(context.Background(), "why did the customer cancel?", common.Scope{CallID: "call-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.LowConfidence {
		t.Fatal("expected low-confidence resolution")
	}
	var insufficient *common.InsufficientEvidenceError
	if !errors.As(res.Err, &insufficient) {
		t.Fatalf("expected InsufficientEvidenceError, got %v", res.Err)
	}
	if len(res.Subgraph.Events) != 0 {
		t.Fatalf("expected empty subgraph, got %d events", len(res.Subgraph.Events))
	}
}

func TestResolve_HopBound(t *testing.T) {
	// Chain a -> b -> c -> d; seeding at d with 2 hops must not reach a.
	graph := chainGraph("call-1", 0.9, 0.9, 0.9)
	cfg := DefaultConfig()
	cfg.MaxHops = 2

	resolver := NewResolver(
		&fakeCapability{parsed: intentParsed(DirectionCauses)},
		&fakeStore{graphs: map[string]*common.CausalGraph{"call-1": graph}},
		&fakeIndex{hits: []index.Hit{{Span: graph.Events[3].Evidence[0], EventID: "d", Score: 0.03}}},
		cfg,
	)

	res, err := resolver.Resolve(context.Background(), "why?", common.Scope{CallID: "call-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Subgraph.Events) != 3 {
		t.Fatalf("expected 3 events within 2 hops, got %d", len(res.Subgraph.Events))
	}
	for _, e := range res.Subgraph.Events {
		if e.ID == "a" {
			t.Fatal("event beyond hop bound included")
		}
	}
}

func TestResolve_EffectsDoesNotWalkBackwards(t *testing.T) {
	graph := chainGraph("call-1", 0.9, 0.9)
	resolver := NewResolver(
		&fakeCapability{parsed: intentParsed(DirectionEffects)},
		&fakeStore{graphs: map[string]*common.CausalGraph{"call-1": graph}},
		&fakeIndex{hits: []index.Hit{{Span: graph.Events[1].Evidence[0], EventID: "b", Score: 0.03}}},
		DefaultConfig(),
	)

	res, err := resolver.Resolve(context.Background(), "what happened after?", common.Scope{CallID: "call-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range res.Subgraph.Events {
		if e.ID == "a" {
			t.Fatal("effects walk must not include predecessors")
		}
	}
	if len(res.Subgraph.Events) != 2 {
		t.Fatalf("expected b and c, got %d events", len(res.Subgraph.Events))
	}
}

func TestResolve_SkipsSeedsFromSupersededPasses(t *testing.T) {
	// After a reanalysis the index can still surface spans whose event
	// belongs to a superseded pass. Those seeds are not in the committed
	// graph and must not displace current evidence.
	graph := chainGraph("call-1", 0.9)
	staleSpan := common.EvidenceSpan{ID: "stale-span", CallID: "call-1", Start: 1, End: 1, Quote: "q"}

	resolver := NewResolver(
		&fakeCapability{parsed: intentParsed(DirectionCauses)},
		&fakeStore{graphs: map[string]*common.CausalGraph{"call-1": graph}},
		&fakeIndex{hits: []index.Hit{
			{Span: staleSpan, EventID: "old-b", PassID: "pass-1", Score: 0.04},
			{Span: graph.Events[1].Evidence[0], EventID: "b", PassID: "pass-2", Score: 0.03},
		}},
		DefaultConfig(),
	)

	res, err := resolver.Resolve(context.Background(), "why?", common.Scope{CallID: "call-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.LowConfidence {
		t.Fatalf("expected confident resolution from current seed, got low confidence: %v", res.Err)
	}
	if len(res.Subgraph.Events) != 2 {
		t.Fatalf("expected current-pass subgraph, got %d events", len(res.Subgraph.Events))
	}
	for _, e := range res.Subgraph.Events {
		if e.ID == "old-b" {
			t.Fatal("superseded event resolved into subgraph")
		}
	}
}

func TestRank_PrefersStrongerSupportedSubgraph(t *testing.T) {
	graph := &common.CausalGraph{
		Events: []common.Event{
			{ID: "a", Confidence: 0.9, Evidence: []common.EvidenceSpan{{ID: "sa"}}},
			{ID: "b", Confidence: 0.9, Evidence: []common.EvidenceSpan{{ID: "sb"}}},
			{ID: "c", Confidence: 0.9, Evidence: []common.EvidenceSpan{{ID: "sc"}}},
			{ID: "d", Confidence: 0.9, Evidence: []common.EvidenceSpan{{ID: "sd"}}},
		},
		Links: []common.CausalLink{
			{ID: "strong", CauseID: "a", EffectID: "b", Strength: 0.9},
			{ID: "weak", CauseID: "c", EffectID: "d", Strength: 0.4},
		},
	}
	candidates := []*candidate{
		{seed: index.Hit{EventID: "d", Score: 0.03}, eventIDs: map[string]bool{"c": true, "d": true}, linkIDs: map[string]bool{"weak": true}, depth: 1},
		{seed: index.Hit{EventID: "b", Score: 0.03}, eventIDs: map[string]bool{"a": true, "b": true}, linkIDs: map[string]bool{"strong": true}, depth: 1},
	}
	rank(graph, candidates)
	if candidates[0].seed.EventID != "b" {
		t.Fatalf("expected strong subgraph first, got seed %s", candidates[0].seed.EventID)
	}
	if candidates[0].score <= candidates[1].score {
		t.Fatalf("expected strictly higher score, got %.3f vs %.3f", candidates[0].score, candidates[1].score)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	graph := chainGraph("call-1", 0.9)
	resolver := NewResolver(
		&fakeCapability{parsed: intentParsed(DirectionExplain)},
		&fakeStore{graphs: map[string]*common.CausalGraph{"call-1": graph}},
		&fakeIndex{hits: []index.Hit{{Span: graph.Events[0].Evidence[0], EventID: "a", Score: 0.03}}},
		DefaultConfig(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := resolver.Resolve(ctx, "why?", common.Scope{CallID: "call-1"}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
