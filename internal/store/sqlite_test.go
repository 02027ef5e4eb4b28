package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-nadir/justpos-sync/internal/database"
	"github.com/just-nadir/justpos-sync/internal/schema"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)

	s, err := NewSQLiteStore(db, schema.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func (s *SQLiteStore) rowMeta(t *testing.T, table, serverID string) (isSynced int, updatedAt int64) {
	t.Helper()
	err := s.db.QueryRow(
		"SELECT is_synced, updated_at FROM "+table+" WHERE server_id = ?", serverID).
		Scan(&isSynced, &updatedAt)
	require.NoError(t, err)
	return isSynced, updatedAt
}

func TestInsertRowQueuesChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRow(ctx, "products", map[string]any{
		"name": "Coke 0.5L", "price": 1.5, "stock": int64(12),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	entries, err := s.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "products", entries[0].TableName)
	assert.Equal(t, id, entries[0].RecordID)
	assert.Equal(t, ActionInsert, entries[0].Action)

	data, err := s.GetRow(ctx, "products", id)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "Coke 0.5L", data["name"])
	assert.Equal(t, 1.5, data["price"])

	synced, _ := s.rowMeta(t, "products", id)
	assert.Equal(t, 0, synced)
}

func TestUpdateRowQueuesChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRow(ctx, "products", map[string]any{"name": "Old"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateRow(ctx, "products", id, map[string]any{"name": "New"}))

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	data, err := s.GetRow(ctx, "products", id)
	require.NoError(t, err)
	assert.Equal(t, "New", data["name"])
}

func TestUpdateTimestampsStrictlyIncrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRow(ctx, "products", map[string]any{"name": "A"})
	require.NoError(t, err)
	_, ts0 := s.rowMeta(t, "products", id)

	// Repeated edits land within the same millisecond; ordering must hold
	// anyway.
	var prev = ts0
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpdateRow(ctx, "products", id, map[string]any{"name": "A"}))
		_, ts := s.rowMeta(t, "products", id)
		assert.Greater(t, ts, prev)
		prev = ts
	}
}

func TestUpdateMissingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateRow(ctx, "products", "no-such-id", map[string]any{"name": "X"})
	assert.ErrorIs(t, err, ErrRowNotFound)

	// A failed write must not leave a queue entry behind.
	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestDeleteRowQueuesChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRow(ctx, "products", map[string]any{"name": "Gone"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRow(ctx, "products", id))

	data, err := s.GetRow(ctx, "products", id)
	require.NoError(t, err)
	assert.Nil(t, data)

	entries, err := s.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionDelete, entries[1].Action)

	assert.ErrorIs(t, s.DeleteRow(ctx, "products", id), ErrRowNotFound)
}

func TestUnknownColumnRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertRow(ctx, "products", map[string]any{"nmae": "typo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestUnknownTableRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertRow(ctx, "settings", map[string]any{"key": "x"})
	require.Error(t, err)
}

func TestPeekBatchOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		id, err := s.InsertRow(ctx, "categories", map[string]any{"name": name})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	entries, err := s.PeekBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[0], entries[0].RecordID)
	assert.Equal(t, ids[1], entries[1].RecordID)
	assert.Less(t, entries[0].ID, entries[1].ID)
}

func TestRemoveBatchIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertRow(ctx, "categories", map[string]any{"name": "x"})
	require.NoError(t, err)

	entries, err := s.PeekBatch(ctx, 10)
	require.NoError(t, err)
	ids := []int64{entries[0].ID}

	require.NoError(t, s.RemoveBatch(ctx, ids))
	require.NoError(t, s.RemoveBatch(ctx, ids))
	require.NoError(t, s.RemoveBatch(ctx, nil))

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestMarkSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRow(ctx, "products", map[string]any{"name": "P"})
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(ctx, "products", []string{id}))
	synced, _ := s.rowMeta(t, "products", id)
	assert.Equal(t, 1, synced)

	require.NoError(t, s.MarkSynced(ctx, "products", nil))
}

func TestCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts, "first sync pulls everything")

	require.NoError(t, s.SetCursor(ctx, 1700000000123))
	ts, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetSetting(ctx, "k", "v1"))
	require.NoError(t, s.SetSetting(ctx, "k", "v2"))
	v, err = s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestApplyRemoteInsertAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	changes := []RemoteChange{{
		Table:    "products",
		RecordID: "remote-1",
		Action:   ActionUpdate,
		Data:     map[string]any{"name": "Remote", "price": 2.0},
	}}
	require.NoError(t, s.ApplyRemote(ctx, changes, 5000))

	data, err := s.GetRow(ctx, "products", "remote-1")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "Remote", data["name"])

	synced, ts := s.rowMeta(t, "products", "remote-1")
	assert.Equal(t, 1, synced)
	assert.Equal(t, int64(5000), ts)

	// Same record again takes the update branch.
	changes[0].Data["name"] = "Renamed"
	require.NoError(t, s.ApplyRemote(ctx, changes, 6000))
	data, err = s.GetRow(ctx, "products", "remote-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", data["name"])
}

func TestApplyRemoteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	changes := []RemoteChange{
		{Table: "products", RecordID: "r1", Action: ActionInsert, Data: map[string]any{"name": "A"}},
		{Table: "products", RecordID: "r2", Action: ActionDelete},
	}

	// A crash between commit and cursor advance re-runs the same batch.
	require.NoError(t, s.ApplyRemote(ctx, changes, 7000))
	require.NoError(t, s.ApplyRemote(ctx, changes, 7000))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestApplyRemoteDeleteAbsentRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	changes := []RemoteChange{{Table: "products", RecordID: "never-seen", Action: ActionDelete}}
	require.NoError(t, s.ApplyRemote(ctx, changes, 8000))
}

func TestApplyRemoteSkipsUnknownTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	changes := []RemoteChange{
		{Table: "legacy_stuff", RecordID: "x", Action: ActionUpdate, Data: map[string]any{"a": 1}},
		{Table: "categories", RecordID: "c1", Action: ActionUpdate, Data: map[string]any{"name": "Drinks"}},
	}
	require.NoError(t, s.ApplyRemote(ctx, changes, 9000))

	data, err := s.GetRow(ctx, "categories", "c1")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "Drinks", data["name"])
}

func TestApplyRemoteDoesNotQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	changes := []RemoteChange{{
		Table: "products", RecordID: "r1", Action: ActionUpdate,
		Data: map[string]any{"name": "A"},
	}}
	require.NoError(t, s.ApplyRemote(ctx, changes, 7000))

	// Remote-originated writes must never echo back to the cloud.
	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}
