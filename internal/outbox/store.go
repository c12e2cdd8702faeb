// Package outbox defines the durable append-and-mutate log of pending
// mutations (C1 in the engine design) and a reference in-process
// implementation under outbox/memstore.
//
// The concrete embedded SQL engine a production deployment would sit
// on is an external collaborator; this package only specifies the
// minimal key-ordered contract a backing store must satisfy.
package outbox

import (
	"context"

	"github.com/webitel/im-sync-engine/internal/domain/model"
)

// Store is the durable, serialisable contract every backing engine must
// satisfy. All mutating operations are durable before returning, and
// reads observe the effects of prior successful writes from the same
// process (I1–I5 in the design).
type Store interface {
	// Init is idempotent; on recovery any row left in StatusSyncing is
	// promoted to StatusPending with attempts left unchanged (P8).
	Init(ctx context.Context) error

	// Put upserts by entry.ID. A pre-existing non-terminal row resets
	// Attempts to 0 (I1).
	Put(ctx context.Context, entry model.Entry) error

	// NextBatch returns up to limit StatusPending entries ordered by
	// (CreatedAt asc, ID asc) (I3). It does not mark them.
	NextBatch(ctx context.Context, limit int) ([]model.Entry, error)

	// SetStatus atomically transitions id to newStatus. If bumpAttempts
	// is true, Attempts increments exactly once; LastAttemptAt is set
	// to now when newStatus is StatusSyncing.
	SetStatus(ctx context.Context, id string, newStatus model.Status, bumpAttempts bool) error

	Get(ctx context.Context, id string) (model.Entry, bool, error)
	Delete(ctx context.Context, id string) error
	DeleteWhere(ctx context.Context, status model.Status) (int, error)

	// EntriesByStatus lists every entry currently in status, for
	// administrative bulk operations (RetryFailed, status dashboards)
	// that need more than the pending-only, batch-bounded NextBatch.
	EntriesByStatus(ctx context.Context, status model.Status) ([]model.Entry, error)

	// Stats returns counts grouped by status.
	Stats(ctx context.Context) (model.Stats, error)

	// Close releases the backing resource; further calls fail.
	Close() error
}
