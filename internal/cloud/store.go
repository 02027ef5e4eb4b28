// Package cloud implements the authority side of sync: the apply service
// (batch-atomic upsert / soft delete), the query service (changes since a
// store's cursor), and the binlog watcher that wakes stores when the
// authority database changes through any write path.
package cloud

import (
	"context"

	"github.com/just-nadir/justpos-sync/internal/sync"
)

// Store is the authoritative datastore behind the sync API.
type Store interface {
	// Apply applies a store's batch in one transaction; partial application
	// is not acceptable. Changes for tables outside the whitelist are
	// silently skipped so older store clients sending unknown change kinds
	// keep working.
	Apply(ctx context.Context, storeID string, changes []sync.Change) error

	// Changes returns every row in every syncable table scoped to storeID
	// whose last-modified timestamp exceeds since, with the action derived
	// from the soft-delete marker.
	Changes(ctx context.Context, storeID string, since int64) ([]sync.Change, error)

	Close() error
}
