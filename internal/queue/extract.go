package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/causal"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/extract"
	"github.com/OFFIS-RIT/causeway/pkg/index"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// ProcessExtractMessage runs one extraction pass end to end: windowed
// event extraction, in-call causal scoring, persist, index. The pass is
// committed only after every write lands; any failure marks it failed so
// readers never see a partial pass.
func ProcessExtractMessage(
	ctx context.Context,
	aiClient ai.CapabilityClient,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) (err error) {
	data := new(ExtractCallMsg)
	if err = json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	store := graphstore.NewGraphDBStore(conn)

	defer func() {
		if err == nil || data.PassID == "" {
			return
		}
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if failErr := store.FailPass(failCtx, data.PassID, err.Error()); failErr != nil {
			logger.Warn("[Queue] Failed to mark pass as failed", "pass_id", data.PassID, "err", failErr)
		}
	}()

	call, err := store.GetCall(ctx, data.CallID)
	if err != nil {
		return err
	}
	if call == nil {
		return fmt.Errorf("call %s not found", data.CallID)
	}

	if err = store.MarkPassRunning(ctx, data.PassID); err != nil {
		return err
	}

	extractor := extract.NewExtractor(aiClient, extract.ConfigFromEnv())
	result, err := extractor.ExtractCall(ctx, call, data.PassID)
	if err != nil {
		return err
	}

	scorer := causal.NewScorer(aiClient, causal.ConfigFromEnv())
	links, err := scorer.ScoreCall(ctx, call, data.PassID, result.Events)
	if err != nil {
		return err
	}

	if err = store.SaveEvents(ctx, result.Events); err != nil {
		return err
	}
	if err = store.SaveLinks(ctx, links); err != nil {
		return err
	}

	entries, err := buildIndexEntries(ctx, aiClient, call, data.PassID, result.Events)
	if err != nil {
		return err
	}
	lexWeight := util.GetEnvNumeric("INDEX_LEX_WEIGHT", 0.5)
	evidenceIndex := index.NewPGEvidenceIndex(conn, lexWeight)
	if err = evidenceIndex.IndexSpans(ctx, entries); err != nil {
		return err
	}

	if err = store.CommitPass(ctx, data.PassID, result.Unanalyzed); err != nil {
		return err
	}

	logger.Info("[Queue] Pass committed",
		"call_id", call.ID, "pass_id", data.PassID,
		"events", len(result.Events), "links", len(links),
		"unanalyzed_windows", len(result.Unanalyzed))

	if call.Metadata.CustomerID != "" {
		if err = PublishMerge(ch, MergeCustomerMsg{CustomerID: call.Metadata.CustomerID}); err != nil {
			return err
		}
	}
	return nil
}

// buildIndexEntries embeds every evidence span for the vector side of
// the index, bounded fan-out.
func buildIndexEntries(
	ctx context.Context,
	aiClient ai.CapabilityClient,
	call *common.Call,
	passID string,
	events []common.Event,
) ([]index.Entry, error) {
	var entries []index.Entry
	for i := range events {
		for _, span := range events[i].Evidence {
			entries = append(entries, index.Entry{
				Span:    span,
				EventID: events[i].ID,
				PassID:  passID,
				Speaker: speakerAt(call, span.Start),
			})
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range entries {
		g.Go(func() error {
			vec, err := util.RetryWithBackoff(gCtx, 3, 500*time.Millisecond,
				func(ctx context.Context) ([]float32, error) {
					return aiClient.GenerateEmbedding(ctx, []byte(entries[i].Span.Quote))
				})
			if err != nil {
				return &common.CapabilityUnavailableError{Capability: "embed", Err: err}
			}
			entries[i].Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func speakerAt(call *common.Call, seq int) string {
	for i := range call.Utterances {
		if call.Utterances[i].Seq == seq {
			return call.Utterances[i].Speaker
		}
	}
	return common.SpeakerUnknown
}
