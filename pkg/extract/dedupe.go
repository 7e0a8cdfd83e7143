package extract

import (
	"sort"
	"strings"

	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// MergeDuplicates merges events whose descriptions are near-duplicates
// (Jaccard similarity over description tokens above the threshold) and
// whose evidence spans overlap or are adjacent. The merge keeps the union
// of evidence and the max confidence. Overlapping extraction windows
// routinely propose the same event twice; this is where that collapses.
func MergeDuplicates(events []common.Event, threshold float64) []common.Event {
	if len(events) < 2 {
		return events
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Ordinal != events[j].Ordinal {
			return events[i].Ordinal < events[j].Ordinal
		}
		return events[i].ID < events[j].ID
	})

	merged := make([]common.Event, 0, len(events))
	for _, e := range events {
		target := -1
		for i := range merged {
			m := &merged[i]
			if m.CallID != e.CallID || m.Type != e.Type {
				continue
			}
			if descriptionSimilarity(m.Description, e.Description) < threshold {
				continue
			}
			if !evidenceTouches(m.Evidence, e.Evidence) {
				continue
			}
			target = i
			break
		}
		if target < 0 {
			merged = append(merged, e)
			continue
		}

		m := &merged[target]
		m.Evidence = unionSpans(m.Evidence, e.Evidence)
		if e.Confidence > m.Confidence {
			m.Confidence = e.Confidence
			m.Description = e.Description
		}
		if e.Ordinal < m.Ordinal {
			m.Ordinal = e.Ordinal
		}
	}
	return merged
}

// descriptionSimilarity is token-set Jaccard over lowercased words.
func descriptionSimilarity(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}

	intersection := 0
	for tok := range as {
		if _, ok := bs[tok]; ok {
			intersection++
		}
	}
	union := len(as) + len(bs) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

// evidenceTouches reports whether any span pair overlaps or is adjacent
// (gap of at most one utterance).
func evidenceTouches(a, b []common.EvidenceSpan) bool {
	for _, sa := range a {
		for _, sb := range b {
			if sa.CallID != sb.CallID {
				continue
			}
			if sa.Start <= sb.End+1 && sb.Start <= sa.End+1 {
				return true
			}
		}
	}
	return false
}

// unionSpans merges span lists, collapsing identical ranges.
func unionSpans(a, b []common.EvidenceSpan) []common.EvidenceSpan {
	out := append([]common.EvidenceSpan{}, a...)
	for _, sb := range b {
		dup := false
		for _, sa := range out {
			if sa.CallID == sb.CallID && sa.Start == sb.Start && sa.End == sb.End {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, sb)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
