package causal

import (
	"strings"

	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// cue is one causal connective with the relation kind it suggests and
// how strong a signal its presence is.
type cue struct {
	phrase string
	kind   string
	weight float64
}

// The lexicon is ordered: longer, more specific phrases first so "that's
// why" wins over "why".
var cueLexicon = []cue{
	{"that's why", common.RelationTriggering, 1.0},
	{"that is why", common.RelationTriggering, 1.0},
	{"which is why", common.RelationTriggering, 1.0},
	{"because of", common.RelationTriggering, 0.95},
	{"because", common.RelationTriggering, 0.9},
	{"as a result", common.RelationTriggering, 0.9},
	{"so then", common.RelationTriggering, 0.85},
	{"therefore", common.RelationTriggering, 0.85},
	{"due to", common.RelationTriggering, 0.85},
	{"led to", common.RelationTriggering, 0.85},
	{"caused", common.RelationTriggering, 0.85},
	{"thanks to", common.RelationEnabling, 0.75},
	{"now that", common.RelationEnabling, 0.7},
	{"since", common.RelationEnabling, 0.6},
	{"allowed", common.RelationEnabling, 0.6},
	{"made it possible", common.RelationEnabling, 0.7},
	{"on top of that", common.RelationContributing, 0.55},
	{"partly", common.RelationContributing, 0.5},
	{"also", common.RelationContributing, 0.3},
	{"so", common.RelationTriggering, 0.5},
}

// cueMatch is the strongest cue found in a stretch of text, with the
// utterance that contains it.
type cueMatch struct {
	cue     cue
	seq     int
	snippet string
}

// findCue scans utterances [start,end] for causal connectives and
// returns the strongest match, or nil.
func findCue(utterances []common.Utterance, start, end int) *cueMatch {
	var best *cueMatch
	for i := start; i <= end && i < len(utterances); i++ {
		if i < 0 {
			continue
		}
		text := " " + strings.ToLower(utterances[i].Text) + " "
		for _, c := range cueLexicon {
			if !containsPhrase(text, c.phrase) {
				continue
			}
			if best == nil || c.weight > best.cue.weight {
				best = &cueMatch{cue: c, seq: i, snippet: utterances[i].Text}
			}
			break
		}
	}
	return best
}

// containsPhrase matches a phrase on word boundaries, so "so" does not
// fire inside "sorry" or "also".
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], phrase)
		if pos < 0 {
			return false
		}
		abs := idx + pos
		beforeOK := abs == 0 || isBoundary(text[abs-1])
		afterIdx := abs + len(phrase)
		afterOK := afterIdx >= len(text) || isBoundary(text[afterIdx])
		if beforeOK && afterOK {
			return true
		}
		idx = abs + 1
	}
}

func isBoundary(b byte) bool {
	return b == ' ' || b == '.' || b == ',' || b == ';' || b == ':' || b == '!' || b == '?' || b == '\'' || b == '"'
}
