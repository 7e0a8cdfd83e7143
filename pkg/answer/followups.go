package answer

import (
	"fmt"
	"sort"

	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/query"
)

// followUps proposes next questions from graph neighbors the answer did
// not cover: events connected to the subgraph by links the expansion
// left out, plus domain prompts for an unresolved outcome. Capped and
// deduplicated by target event.
func (g *Generator) followUps(res *query.Resolution) []common.FollowUpQuestion {
	if res.Graph == nil {
		return nil
	}

	selected := map[string]bool{}
	selectedLinks := map[string]bool{}
	for i := range res.Subgraph.Events {
		selected[res.Subgraph.Events[i].ID] = true
	}
	for i := range res.Subgraph.Links {
		selectedLinks[res.Subgraph.Links[i].ID] = true
	}

	var followUps []common.FollowUpQuestion
	targeted := map[string]bool{}
	add := func(f common.FollowUpQuestion) {
		if f.EventID != "" && targeted[f.EventID] {
			return
		}
		targeted[f.EventID] = true
		followUps = append(followUps, f)
	}

	// Unexplored neighbors: links touching the subgraph on exactly one
	// side, strongest first.
	var frontier []*common.CausalLink
	for i := range res.Graph.Links {
		link := &res.Graph.Links[i]
		if selectedLinks[link.ID] {
			continue
		}
		if selected[link.CauseID] == selected[link.EffectID] {
			continue
		}
		frontier = append(frontier, link)
	}
	sort.SliceStable(frontier, func(i, j int) bool {
		if frontier[i].Strength != frontier[j].Strength {
			return frontier[i].Strength > frontier[j].Strength
		}
		return frontier[i].ID < frontier[j].ID
	})

	for _, link := range frontier {
		outsideID := link.CauseID
		question := "What led to %s?"
		if selected[link.CauseID] {
			outsideID = link.EffectID
			question = "What followed from %s?"
		}
		outside := res.Graph.EventByID(outsideID)
		if outside == nil {
			continue
		}
		add(common.FollowUpQuestion{
			Text:    fmt.Sprintf(question, outside.Description),
			EventID: outside.ID,
			LinkID:  link.ID,
		})
	}

	// An answer about a complaint or cancellation with no resolution in
	// the subgraph invites the obvious next question.
	if needsResolutionFollowUp(&res.Subgraph) {
		anchor := anchorEvent(&res.Subgraph)
		add(common.FollowUpQuestion{
			Text:    "Was a resolution offered to the customer?",
			EventID: anchor,
		})
	}

	if g.cfg.MaxFollowUps > 0 && len(followUps) > g.cfg.MaxFollowUps {
		followUps = followUps[:g.cfg.MaxFollowUps]
	}
	return followUps
}

func needsResolutionFollowUp(sub *common.CausalGraph) bool {
	hasTrouble, hasResolution := false, false
	for i := range sub.Events {
		switch sub.Events[i].Type {
		case common.EventComplaintRaised, common.EventCancellationIntent, common.EventServiceFailure:
			hasTrouble = true
		case common.EventResolutionProvided:
			hasResolution = true
		}
	}
	return hasTrouble && !hasResolution
}

// anchorEvent picks the last trouble event in call order.
func anchorEvent(sub *common.CausalGraph) string {
	id := ""
	for i := range sub.Events {
		switch sub.Events[i].Type {
		case common.EventComplaintRaised, common.EventCancellationIntent, common.EventServiceFailure:
			id = sub.Events[i].ID
		}
	}
	return id
}
