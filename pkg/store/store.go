package store

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// GraphStore is the append-only store of calls, extraction passes, events
// and causal links.
//
// Calls and utterances are written once at ingestion. Events and links are
// written under a pass; a pass becomes visible to readers only when it is
// committed, so queries always see a consistent snapshot. Nothing is ever
// updated in place except pass status.
type GraphStore interface {
	SaveCall(ctx context.Context, call *common.Call) error
	GetCall(ctx context.Context, id string) (*common.Call, error)
	ListCallIDsByCustomer(ctx context.Context, customerID string) ([]string, error)

	CreatePass(ctx context.Context, callID string) (*common.ExtractionPass, error)
	MarkPassRunning(ctx context.Context, passID string) error
	CommitPass(ctx context.Context, passID string, unanalyzed []common.Window) error
	FailPass(ctx context.Context, passID string, reason string) error
	LatestCommittedPass(ctx context.Context, callID string) (*common.ExtractionPass, error)
	// StaleRunningPasses returns passes stuck in running longer than
	// olderThan, for worker recovery.
	StaleRunningPasses(ctx context.Context, olderThan time.Duration) ([]common.ExtractionPass, error)

	SaveEvents(ctx context.Context, events []common.Event) error
	SaveLinks(ctx context.Context, links []common.CausalLink) error

	// GetGraph returns the graph of the latest committed pass for a call.
	// A call with no committed pass yields an empty graph, not an error.
	GetGraph(ctx context.Context, callID string) (*common.CausalGraph, error)
	// GetMergedGraph returns the union of the latest committed per-call
	// graphs for all calls sharing the customer id. It groups events; it
	// asserts no links beyond those the scorer stored.
	GetMergedGraph(ctx context.Context, customerID string) (*common.CausalGraph, error)

	// WithMergeLock serializes the cross-call merge pass. The lock must
	// not block per-call extraction writes.
	WithMergeLock(ctx context.Context, fn func(context.Context) error) error
}
