package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// SaveCall inserts a call and its utterances in one transaction. Calls are
// immutable; inserting an existing id is an error.
func (s *GraphDBStore) SaveCall(ctx context.Context, call *common.Call) error {
	metadata, err := json.Marshal(call.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal call metadata: %w", err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO calls (id, metadata, degraded, ingested_at) VALUES ($1, $2, $3, $4)`,
		call.ID, metadata, call.Degraded, call.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call: %w", err)
	}

	rows := make([][]any, 0, len(call.Utterances))
	for _, u := range call.Utterances {
		rows = append(rows, []any{
			call.ID, u.Seq, u.Speaker, util.SanitizePostgresText(u.Text), u.StartSec, u.EndSec,
		})
	}
	_, err = tx.CopyFrom(ctx,
		pgxv5.Identifier{"utterances"},
		[]string{"call_id", "seq", "speaker", "text", "start_sec", "end_sec"},
		pgxv5.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert utterances: %w", err)
	}

	return tx.Commit(ctx)
}

// GetCall loads a call with its utterances in sequence order. Returns nil
// when the call does not exist.
func (s *GraphDBStore) GetCall(ctx context.Context, id string) (*common.Call, error) {
	var call common.Call
	var metadata []byte
	err := s.conn.QueryRow(ctx,
		`SELECT id, metadata, degraded, ingested_at FROM calls WHERE id = $1`,
		id,
	).Scan(&call.ID, &metadata, &call.Degraded, &call.IngestedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &call.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call metadata: %w", err)
	}

	rows, err := s.conn.Query(ctx,
		`SELECT seq, speaker, text, start_sec, end_sec FROM utterances WHERE call_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u common.Utterance
		if err := rows.Scan(&u.Seq, &u.Speaker, &u.Text, &u.StartSec, &u.EndSec); err != nil {
			return nil, err
		}
		call.Utterances = append(call.Utterances, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &call, nil
}

// ListCallIDsByCustomer returns ids of all calls carrying the customer id
// in their metadata, newest first.
func (s *GraphDBStore) ListCallIDsByCustomer(ctx context.Context, customerID string) ([]string, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id FROM calls WHERE metadata->>'customer_id' = $1 ORDER BY ingested_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
