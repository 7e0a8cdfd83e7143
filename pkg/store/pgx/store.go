package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStore implements store.GraphStore on PostgreSQL. All writes are
// inserts; pass status transitions are the only updates.
type GraphDBStore struct {
	conn pgxIConn
}

// NewGraphDBStore creates a GraphDBStore over an existing connection or
// pool.
func NewGraphDBStore(conn pgxIConn) *GraphDBStore {
	return &GraphDBStore{conn: conn}
}

// mergeLockID is the advisory lock key for the cross-call merge pass.
const mergeLockID = 4217

// WithMergeLock runs fn while holding a session advisory lock, so only
// one merge pass runs at a time. Per-call extraction writes do not take
// this lock and are never blocked by it.
func (s *GraphDBStore) WithMergeLock(ctx context.Context, fn func(context.Context) error) error {
	if _, err := s.conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, mergeLockID); err != nil {
		return err
	}
	defer s.conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, mergeLockID)

	return fn(ctx)
}
