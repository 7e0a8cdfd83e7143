package queue

import (
	"context"
	"encoding/json"

	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/causal"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessMergeMessage runs the cross-call pass for one customer under
// the merge lock: it scores links between committed graphs of the
// customer's calls and stores only pairs not already linked. It reads
// committed passes only and never blocks per-call extraction.
func ProcessMergeMessage(
	ctx context.Context,
	aiClient ai.CapabilityClient,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(MergeCustomerMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	store := graphstore.NewGraphDBStore(conn)
	scorer := causal.NewScorer(aiClient, causal.ConfigFromEnv())

	return store.WithMergeLock(ctx, func(ctx context.Context) error {
		callIDs, err := store.ListCallIDsByCustomer(ctx, data.CustomerID)
		if err != nil {
			return err
		}
		if len(callIDs) < 2 {
			return nil
		}

		type committedCall struct {
			call   *common.Call
			passID string
			events []common.Event
		}
		var calls []committedCall
		for _, callID := range callIDs {
			call, err := store.GetCall(ctx, callID)
			if err != nil {
				return err
			}
			if call == nil {
				continue
			}
			pass, err := store.LatestCommittedPass(ctx, callID)
			if err != nil {
				return err
			}
			if pass == nil {
				continue
			}
			graph, err := store.GetGraph(ctx, callID)
			if err != nil {
				return err
			}
			calls = append(calls, committedCall{call: call, passID: pass.ID, events: graph.Events})
		}

		existing, err := store.GetMergedGraph(ctx, data.CustomerID)
		if err != nil {
			return err
		}
		linked := map[[2]string]bool{}
		for i := range existing.Links {
			linked[[2]string{existing.Links[i].CauseID, existing.Links[i].EffectID}] = true
		}

		var newLinks []common.CausalLink
		for i := range calls {
			for j := range calls {
				if i == j {
					continue
				}
				earlier, later := calls[i], calls[j]
				if !earlier.call.IngestedAt.Before(later.call.IngestedAt) {
					continue
				}
				links, err := scorer.ScoreCrossCall(ctx, earlier.call, later.call, later.passID, earlier.events, later.events)
				if err != nil {
					return err
				}
				for _, link := range links {
					if linked[[2]string{link.CauseID, link.EffectID}] {
						continue
					}
					linked[[2]string{link.CauseID, link.EffectID}] = true
					newLinks = append(newLinks, link)
				}
			}
		}

		if len(newLinks) == 0 {
			logger.Debug("[Queue] No new cross-call links", "customer_id", data.CustomerID)
			return nil
		}
		if err := store.SaveLinks(ctx, newLinks); err != nil {
			return err
		}
		logger.Info("[Queue] Cross-call merge stored links",
			"customer_id", data.CustomerID, "calls", len(calls), "links", len(newLinks))
		return nil
	})
}
