package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// CreatePass inserts a new pending extraction pass for a call. Prior
// passes are untouched; re-analysis is always a new pass.
func (s *GraphDBStore) CreatePass(ctx context.Context, callID string) (*common.ExtractionPass, error) {
	id, err := util.NewID()
	if err != nil {
		return nil, err
	}

	pass := &common.ExtractionPass{
		ID:        id,
		CallID:    callID,
		Status:    common.PassPending,
		StartedAt: time.Now().UTC(),
	}

	_, err = s.conn.Exec(ctx,
		`INSERT INTO extraction_passes (id, call_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		pass.ID, pass.CallID, pass.Status, pass.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pass: %w", err)
	}
	return pass, nil
}

// MarkPassRunning transitions a pass from pending to running.
func (s *GraphDBStore) MarkPassRunning(ctx context.Context, passID string) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE extraction_passes SET status = $1, started_at = $2 WHERE id = $3 AND status IN ($4, $1)`,
		common.PassRunning, time.Now().UTC(), passID, common.PassPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pass %s not in a runnable state", passID)
	}
	return nil
}

// CommitPass marks the pass committed and records any windows that stayed
// unanalyzed after retries. Committing makes the pass visible to queries.
func (s *GraphDBStore) CommitPass(ctx context.Context, passID string, unanalyzed []common.Window) error {
	var windows []byte
	if len(unanalyzed) > 0 {
		var err error
		windows, err = json.Marshal(unanalyzed)
		if err != nil {
			return err
		}
	}

	tag, err := s.conn.Exec(ctx,
		`UPDATE extraction_passes SET status = $1, committed_at = $2, unanalyzed = $3 WHERE id = $4 AND status = $5`,
		common.PassCommitted, time.Now().UTC(), windows, passID, common.PassRunning,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pass %s not running, cannot commit", passID)
	}
	return nil
}

// FailPass marks the pass failed. Its partial events/links stay in the
// store but are never read, since readers only follow committed passes.
func (s *GraphDBStore) FailPass(ctx context.Context, passID string, reason string) error {
	_, err := s.conn.Exec(ctx,
		`UPDATE extraction_passes SET status = $1, failure_reason = $2 WHERE id = $3`,
		common.PassFailed, reason, passID,
	)
	return err
}

// LatestCommittedPass returns the newest committed pass for a call, or
// nil when the call has none.
func (s *GraphDBStore) LatestCommittedPass(ctx context.Context, callID string) (*common.ExtractionPass, error) {
	var pass common.ExtractionPass
	var windows []byte
	err := s.conn.QueryRow(ctx,
		`SELECT id, call_id, status, unanalyzed, started_at, committed_at
		 FROM extraction_passes
		 WHERE call_id = $1 AND status = $2
		 ORDER BY committed_at DESC
		 LIMIT 1`,
		callID, common.PassCommitted,
	).Scan(&pass.ID, &pass.CallID, &pass.Status, &windows, &pass.StartedAt, &pass.CommittedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(windows) > 0 {
		if err := json.Unmarshal(windows, &pass.Unanalyzed); err != nil {
			return nil, err
		}
	}
	return &pass, nil
}

// StaleRunningPasses lists passes stuck in running longer than olderThan.
// The worker re-queues these after a crash.
func (s *GraphDBStore) StaleRunningPasses(ctx context.Context, olderThan time.Duration) ([]common.ExtractionPass, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.conn.Query(ctx,
		`SELECT id, call_id, status, started_at FROM extraction_passes WHERE status = $1 AND started_at < $2`,
		common.PassRunning, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passes []common.ExtractionPass
	for rows.Next() {
		var p common.ExtractionPass
		if err := rows.Scan(&p.ID, &p.CallID, &p.Status, &p.StartedAt); err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}
