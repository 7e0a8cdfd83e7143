package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/causeway/pkg/logger"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// RecoverStalePasses finds passes stuck in running (a worker died mid
// pass), marks them failed, and enqueues a fresh pass for each affected
// call. Run at worker startup.
func RecoverStalePasses(
	ctx context.Context,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	olderThan time.Duration,
) error {
	store := graphstore.NewGraphDBStore(conn)

	stale, err := store.StaleRunningPasses(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("failed to get stale passes: %w", err)
	}
	if len(stale) == 0 {
		logger.Debug("[Queue] No stale passes found")
		return nil
	}

	logger.Info("[Queue] Found stale passes", "count", len(stale))

	for _, pass := range stale {
		if err := store.FailPass(ctx, pass.ID, "stale running pass recovered at startup"); err != nil {
			logger.Error("[Queue] Failed to mark stale pass as failed", "pass_id", pass.ID, "err", err)
			continue
		}

		fresh, err := store.CreatePass(ctx, pass.CallID)
		if err != nil {
			logger.Error("[Queue] Failed to create replacement pass", "call_id", pass.CallID, "err", err)
			continue
		}

		if err := PublishExtract(ch, ExtractCallMsg{CallID: pass.CallID, PassID: fresh.ID}); err != nil {
			logger.Error("[Queue] Failed to republish extraction", "call_id", pass.CallID, "err", err)
			continue
		}

		logger.Info("[Queue] Recovered stale pass", "call_id", pass.CallID, "stale_pass_id", pass.ID, "new_pass_id", fresh.ID)
	}

	return nil
}
