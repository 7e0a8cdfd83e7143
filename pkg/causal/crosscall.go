package causal

import (
	"context"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
)

// SharedEntity returns the identity key two calls have in common, or ""
// when they share none. An exact customer-id match wins over an
// account-id match.
func SharedEntity(a, b *common.Call) string {
	if a.Metadata.CustomerID != "" && a.Metadata.CustomerID == b.Metadata.CustomerID {
		return "customer:" + a.Metadata.CustomerID
	}
	if a.Metadata.AccountID != "" && a.Metadata.AccountID == b.Metadata.AccountID {
		return "account:" + a.Metadata.AccountID
	}
	return ""
}

// ScoreCrossCall links events of an earlier call to events of a later
// call for the same customer or account. Without a shared entity no
// links are proposed. Cross-call links carry no lexical cue, so their
// strength is the embedding coherence of the two event descriptions
// alone, held to the higher cross-call threshold. Direction always runs
// earlier call to later call.
func (s *Scorer) ScoreCrossCall(
	ctx context.Context,
	earlier, later *common.Call,
	passID string,
	earlierEvents, laterEvents []common.Event,
) ([]common.CausalLink, error) {
	entity := SharedEntity(earlier, later)
	if entity == "" {
		return nil, nil
	}
	if later.IngestedAt.Before(earlier.IngestedAt) {
		earlier, later = later, earlier
		earlierEvents, laterEvents = laterEvents, earlierEvents
	}
	if len(earlierEvents) == 0 || len(laterEvents) == 0 {
		return nil, nil
	}

	causeVecs, err := s.embedDescriptions(ctx, earlierEvents)
	if err != nil {
		return nil, err
	}
	effectVecs, err := s.embedDescriptions(ctx, laterEvents)
	if err != nil {
		return nil, err
	}

	var links []common.CausalLink
	for i := range earlierEvents {
		for j := range laterEvents {
			cause, effect := &earlierEvents[i], &laterEvents[j]
			strength := util.Clamp01(Cosine(causeVecs[cause.ID], effectVecs[effect.ID]))
			if strength < s.cfg.CrossCallMinStrength {
				continue
			}

			linkID, err := util.NewID()
			if err != nil {
				return nil, err
			}
			links = append(links, common.CausalLink{
				ID:           linkID,
				PassID:       passID,
				CauseID:      cause.ID,
				EffectID:     effect.ID,
				Kind:         common.RelationContributing,
				Strength:     strength,
				SharedEntity: entity,
			})
		}
	}

	logger.Debug("[Causal] Scored cross-call pair",
		"earlier", earlier.ID, "later", later.ID, "entity", entity, "links", len(links))
	return links, nil
}
