package store

import (
	"context"
)

// LocalStore is the embedded store consumed by the sync engine and by the
// application's write paths (checkout, inventory edits).
//
// Contract: every successful InsertRow/UpdateRow/DeleteRow on a syncable
// table appends exactly one change-queue entry in the same transaction.
// The sync engine's correctness depends on that atomicity.
type LocalStore interface {
	// Write API for syncable tables.
	InsertRow(ctx context.Context, table string, data map[string]any) (serverID string, err error)
	UpdateRow(ctx context.Context, table, serverID string, data map[string]any) error
	DeleteRow(ctx context.Context, table, serverID string) error

	// GetRow returns the current business columns of a row, or nil if the
	// row no longer exists.
	GetRow(ctx context.Context, table, serverID string) (map[string]any, error)
	MarkSynced(ctx context.Context, table string, serverIDs []string) error

	// Change queue consumption.
	PeekBatch(ctx context.Context, limit int) ([]QueueEntry, error)
	RemoveBatch(ctx context.Context, ids []int64) error
	QueueDepth(ctx context.Context) (int, error)

	// Sync cursor, persisted in the settings key-value table.
	Cursor(ctx context.Context) (int64, error)
	SetCursor(ctx context.Context, ts int64) error
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// ApplyRemote applies a pull batch in a single transaction.
	ApplyRemote(ctx context.Context, changes []RemoteChange, serverTime int64) error

	Close() error
}
