package pgx

import (
	"testing"

	"github.com/OFFIS-RIT/causeway/pkg/common"
)

func TestPruneDanglingLinks_DropsLinksToSupersededEvents(t *testing.T) {
	// A cross-call link stored under the later call's pass survives a
	// reanalysis of the earlier call; its cause then references an event
	// no latest committed pass carries.
	graph := &common.CausalGraph{
		Events: []common.Event{
			{ID: "fail-2", CallID: "call-1", PassID: "pass-2"},
			{ID: "cancel", CallID: "call-2", PassID: "pass-b"},
		},
		Links: []common.CausalLink{
			{ID: "live", CauseID: "fail-2", EffectID: "cancel", Strength: 0.7},
			{ID: "stale-cause", CauseID: "fail-1", EffectID: "cancel", Strength: 0.7},
			{ID: "stale-effect", CauseID: "fail-2", EffectID: "gone", Strength: 0.7},
		},
	}

	pruneDanglingLinks(graph)

	if len(graph.Links) != 1 {
		t.Fatalf("expected only the live link, got %d", len(graph.Links))
	}
	if graph.Links[0].ID != "live" {
		t.Fatalf("wrong link kept: %s", graph.Links[0].ID)
	}
}

func TestPruneDanglingLinks_KeepsCompleteGraph(t *testing.T) {
	graph := &common.CausalGraph{
		Events: []common.Event{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Links: []common.CausalLink{
			{ID: "l1", CauseID: "a", EffectID: "b"},
			{ID: "l2", CauseID: "b", EffectID: "c"},
		},
	}

	pruneDanglingLinks(graph)

	if len(graph.Links) != 2 {
		t.Fatalf("expected both links kept, got %d", len(graph.Links))
	}
}
