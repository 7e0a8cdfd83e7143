package query

import (
	"context"
	"sort"
	"time"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/index"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	"github.com/OFFIS-RIT/causeway/pkg/store"
)

// Resolver answers causal questions over committed graphs. Resolution is
// read-only: it can be cancelled at any point without side effects.
type Resolver struct {
	client ai.CapabilityClient
	store  store.GraphStore
	index  index.EvidenceIndex
	cfg    Config
}

// NewResolver creates a Resolver.
func NewResolver(client ai.CapabilityClient, graphStore store.GraphStore, evidenceIndex index.EvidenceIndex, cfg Config) *Resolver {
	return &Resolver{client: client, store: graphStore, index: evidenceIndex, cfg: cfg}
}

// Resolution is the selected basis for an answer. When no subgraph met
// the minimum combined confidence, LowConfidence is set and Err carries
// an InsufficientEvidenceError; the resolution is still returned so the
// caller can render an explicitly weak answer instead of none.
type Resolution struct {
	Question  string
	Direction string
	// Subgraph is the selected events and links.
	Subgraph common.CausalGraph
	// Graph is the full committed graph the expansion walked, kept for
	// follow-up generation over unexplored neighbors.
	Graph      *common.CausalGraph
	Hits       []index.Hit
	Confidence float64

	LowConfidence bool
	Err           error
}

// Resolve runs the resolver over one question:
// parse the intent, retrieve seed evidence, expand the committed graph
// around the seeds, rank the candidate subgraphs, and select the best.
func (r *Resolver) Resolve(ctx context.Context, question string, scope common.Scope) (*Resolution, error) {
	parsed, err := r.parse(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := r.retrieve(ctx, question, parsed, scope)
	if err != nil {
		return nil, err
	}

	graph, err := r.loadGraph(ctx, scope, hits)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Question:  question,
		Direction: parsed.Direction,
		Graph:     graph,
		Hits:      hits,
	}

	candidates, err := r.expand(ctx, graph, hits, parsed.Direction)
	if err != nil {
		return nil, err
	}
	rank(graph, candidates)

	if len(candidates) == 0 {
		res.LowConfidence = true
		res.Err = &common.InsufficientEvidenceError{Question: question}
		logger.Info("[Query] No candidate subgraph", "question", question)
		return res, nil
	}

	best := candidates[0]
	res.Subgraph = r.buildSubgraph(graph, best)
	res.Confidence = best.score
	if best.score < r.cfg.MinConfidence {
		res.LowConfidence = true
		res.Err = &common.InsufficientEvidenceError{Question: question}
	}

	logger.Debug("[Query] Resolved",
		"question", question, "direction", parsed.Direction,
		"events", len(res.Subgraph.Events), "links", len(res.Subgraph.Links),
		"confidence", res.Confidence, "low_confidence", res.LowConfidence)
	return res, nil
}

func (r *Resolver) retrieve(ctx context.Context, question string, parsed *ParsedQuestion, scope common.Scope) ([]index.Hit, error) {
	text := searchText(question, parsed)

	embedding, err := util.RetryWithBackoff(ctx, 3, 500*time.Millisecond,
		func(ctx context.Context) ([]float32, error) {
			return r.client.GenerateEmbedding(ctx, []byte(text))
		})
	if err != nil {
		return nil, &common.CapabilityUnavailableError{Capability: "embed", Err: err}
	}

	filters := index.Filters{
		CallID:  scope.CallID,
		Speaker: scope.Speaker,
		From:    scope.From,
		To:      scope.To,
	}
	return r.index.Search(ctx, text, embedding, r.cfg.RetrieveK, filters)
}

// loadGraph reads the committed graph for the scope. Without an explicit
// scope the graphs of the calls the hits point at are unioned.
func (r *Resolver) loadGraph(ctx context.Context, scope common.Scope, hits []index.Hit) (*common.CausalGraph, error) {
	if scope.CallID != "" {
		return r.store.GetGraph(ctx, scope.CallID)
	}
	if scope.CustomerID != "" {
		return r.store.GetMergedGraph(ctx, scope.CustomerID)
	}

	merged := &common.CausalGraph{}
	seen := map[string]bool{}
	for _, hit := range hits {
		callID := hit.Span.CallID
		if callID == "" || seen[callID] {
			continue
		}
		seen[callID] = true
		g, err := r.store.GetGraph(ctx, callID)
		if err != nil {
			return nil, err
		}
		mergeInto(merged, g)
	}
	return merged, nil
}

func mergeInto(dst, src *common.CausalGraph) {
	haveCall := map[string]bool{}
	for _, id := range dst.CallIDs {
		haveCall[id] = true
	}
	for _, id := range src.CallIDs {
		if !haveCall[id] {
			dst.CallIDs = append(dst.CallIDs, id)
		}
	}
	haveEvent := map[string]bool{}
	for i := range dst.Events {
		haveEvent[dst.Events[i].ID] = true
	}
	for i := range src.Events {
		if !haveEvent[src.Events[i].ID] {
			dst.Events = append(dst.Events, src.Events[i])
		}
	}
	haveLink := map[string]bool{}
	for i := range dst.Links {
		haveLink[dst.Links[i].ID] = true
	}
	for i := range src.Links {
		if !haveLink[src.Links[i].ID] {
			dst.Links = append(dst.Links, src.Links[i])
		}
	}
}

// candidate is one expansion result: the subgraph reachable from a seed
// event within the hop bound.
type candidate struct {
	seed     index.Hit
	eventIDs map[string]bool
	linkIDs  map[string]bool
	depth    int
	score    float64
}

// expand walks the graph outward from each retrieved seed event, bounded
// by MaxHops. "causes" walks predecessors, "effects" walks successors,
// "explain" walks both.
func (r *Resolver) expand(ctx context.Context, graph *common.CausalGraph, hits []index.Hit, direction string) ([]*candidate, error) {
	incoming := map[string][]*common.CausalLink{}
	outgoing := map[string][]*common.CausalLink{}
	for i := range graph.Links {
		link := &graph.Links[i]
		incoming[link.EffectID] = append(incoming[link.EffectID], link)
		outgoing[link.CauseID] = append(outgoing[link.CauseID], link)
	}

	var candidates []*candidate
	seenSeeds := map[string]bool{}
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hit.EventID == "" || seenSeeds[hit.EventID] {
			continue
		}
		if graph.EventByID(hit.EventID) == nil {
			continue
		}
		seenSeeds[hit.EventID] = true

		c := &candidate{
			seed:     hit,
			eventIDs: map[string]bool{hit.EventID: true},
			linkIDs:  map[string]bool{},
		}
		frontier := []string{hit.EventID}
		for hop := 1; hop <= r.cfg.MaxHops && len(frontier) > 0; hop++ {
			var next []string
			for _, eventID := range frontier {
				var links []*common.CausalLink
				if direction == DirectionCauses || direction == DirectionExplain {
					links = append(links, incoming[eventID]...)
				}
				if direction == DirectionEffects || direction == DirectionExplain {
					links = append(links, outgoing[eventID]...)
				}
				for _, link := range links {
					if c.linkIDs[link.ID] {
						continue
					}
					c.linkIDs[link.ID] = true
					for _, neighborID := range []string{link.CauseID, link.EffectID} {
						if c.eventIDs[neighborID] {
							continue
						}
						c.eventIDs[neighborID] = true
						c.depth = hop
						next = append(next, neighborID)
					}
				}
			}
			frontier = next
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// rank scores candidates by aggregate link strength times event
// confidence times seed relevance; ties break on more evidence spans,
// then shorter path, then seed event id for determinism.
func rank(graph *common.CausalGraph, candidates []*candidate) {
	var maxHit float64
	for _, c := range candidates {
		if c.seed.Score > maxHit {
			maxHit = c.seed.Score
		}
	}

	for _, c := range candidates {
		var strengthSum float64
		var strengthN int
		for i := range graph.Links {
			if c.linkIDs[graph.Links[i].ID] {
				strengthSum += graph.Links[i].Strength
				strengthN++
			}
		}
		linkStrength := 0.0
		if strengthN > 0 {
			linkStrength = strengthSum / float64(strengthN)
		}

		var confSum float64
		var confN int
		for i := range graph.Events {
			if c.eventIDs[graph.Events[i].ID] {
				confSum += graph.Events[i].Confidence
				confN++
			}
		}
		confidence := 0.0
		if confN > 0 {
			confidence = confSum / float64(confN)
		}

		relevance := 1.0
		if maxHit > 0 {
			relevance = c.seed.Score / maxHit
		}
		c.score = util.Clamp01(linkStrength * confidence * relevance)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ea, eb := evidenceCount(graph, a), evidenceCount(graph, b)
		if ea != eb {
			return ea > eb
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.seed.EventID < b.seed.EventID
	})
}

func evidenceCount(graph *common.CausalGraph, c *candidate) int {
	n := 0
	for i := range graph.Events {
		if c.eventIDs[graph.Events[i].ID] {
			n += len(graph.Events[i].Evidence)
		}
	}
	for i := range graph.Links {
		if c.linkIDs[graph.Links[i].ID] {
			n += len(graph.Links[i].Evidence)
		}
	}
	return n
}

// buildSubgraph materializes a candidate, events in call order, links by
// descending strength, capped at MaxEvents.
func (r *Resolver) buildSubgraph(graph *common.CausalGraph, c *candidate) common.CausalGraph {
	var sub common.CausalGraph

	for i := range graph.Events {
		if c.eventIDs[graph.Events[i].ID] {
			sub.Events = append(sub.Events, graph.Events[i])
		}
	}
	sort.SliceStable(sub.Events, func(i, j int) bool {
		if sub.Events[i].CallID != sub.Events[j].CallID {
			return sub.Events[i].CallID < sub.Events[j].CallID
		}
		return sub.Events[i].Ordinal < sub.Events[j].Ordinal
	})
	if r.cfg.MaxEvents > 0 && len(sub.Events) > r.cfg.MaxEvents {
		sub.Events = sub.Events[:r.cfg.MaxEvents]
	}

	kept := map[string]bool{}
	for i := range sub.Events {
		kept[sub.Events[i].ID] = true
	}
	for i := range graph.Links {
		link := graph.Links[i]
		if c.linkIDs[link.ID] && kept[link.CauseID] && kept[link.EffectID] {
			sub.Links = append(sub.Links, link)
		}
	}
	sort.SliceStable(sub.Links, func(i, j int) bool {
		if sub.Links[i].Strength != sub.Links[j].Strength {
			return sub.Links[i].Strength > sub.Links[j].Strength
		}
		return sub.Links[i].ID < sub.Links[j].ID
	})

	seenCalls := map[string]bool{}
	for i := range sub.Events {
		if !seenCalls[sub.Events[i].CallID] {
			seenCalls[sub.Events[i].CallID] = true
			sub.CallIDs = append(sub.CallIDs, sub.Events[i].CallID)
		}
	}
	return sub
}
