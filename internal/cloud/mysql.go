package cloud

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/database"
	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/schema"
	"github.com/just-nadir/justpos-sync/internal/store"
	"github.com/just-nadir/justpos-sync/internal/sync"
)

// MySQLStore implements Store on the authority database.
type MySQLStore struct {
	db  *database.Database
	reg *schema.Registry
}

func NewMySQLStore(db *database.Database, reg *schema.Registry) (*MySQLStore, error) {
	s := &MySQLStore{db: db, reg: reg}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) initSchema() error {
	for _, t := range s.reg.Tables() {
		if _, err := s.db.DB.Exec(t.CloudDDL()); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Apply runs the whole batch in one transaction. Timestamps are assigned
// from the authority clock here, never taken from the store: local clocks
// only produce candidate values and the authority overrides them, which is
// what makes last-write-wins ordering trustworthy.
func (s *MySQLStore) Apply(ctx context.Context, storeID string, changes []sync.Change) error {
	now := time.Now().UnixMilli()

	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		for _, change := range changes {
			tbl, ok := s.reg.Lookup(change.Table)
			if !ok {
				logger.Log.Warn("Skipping change for unknown table",
					zap.String("table", change.Table),
					zap.String("store_id", storeID))
				continue
			}

			if change.Action == store.ActionDelete {
				if _, err := tx.ExecContext(ctx, softDeleteSQL(tbl.Name),
					now, now, change.RecordID, storeID); err != nil {
					return fmt.Errorf("failed to soft-delete %s:%s: %w", tbl.Name, change.RecordID, err)
				}
				continue
			}

			var cols []string
			var vals []any
			for _, c := range tbl.Columns {
				if v, ok := change.Data[c.Name]; ok {
					cols = append(cols, c.Name)
					vals = append(vals, v)
				}
			}

			args := append(append([]any{}, vals...), storeID, change.RecordID, now)
			if _, err := tx.ExecContext(ctx, upsertSQL(tbl.Name, cols), args...); err != nil {
				return fmt.Errorf("failed to upsert %s:%s: %w", tbl.Name, change.RecordID, err)
			}
		}
		return nil
	})
}

// Changes scans every syncable table for rows past since. A row whose
// soft-delete marker is set comes back as a DELETE, everything else as an
// UPDATE; the pulling store's insert-or-update branch makes the
// distinction between INSERT and UPDATE irrelevant on this path.
func (s *MySQLStore) Changes(ctx context.Context, storeID string, since int64) ([]sync.Change, error) {
	var all []sync.Change

	for _, tbl := range s.reg.Tables() {
		changes, err := s.tableChanges(ctx, tbl, storeID, since)
		if err != nil {
			return nil, err
		}
		all = append(all, changes...)
	}
	return all, nil
}

func (s *MySQLStore) tableChanges(ctx context.Context, tbl schema.Table, storeID string, since int64) ([]sync.Change, error) {
	rows, err := s.db.DB.QueryContext(ctx, selectSinceSQL(tbl), storeID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s changes: %w", tbl.Name, err)
	}
	defer rows.Close()

	cols := tbl.ColumnNames()
	var changes []sync.Change

	for rows.Next() {
		var serverID string
		var updatedAt int64
		var deletedAt sql.NullInt64

		vals := make([]any, len(cols))
		ptrs := make([]any, 0, len(cols)+3)
		ptrs = append(ptrs, &serverID, &updatedAt, &deletedAt)
		for i := range vals {
			ptrs = append(ptrs, &vals[i])
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", tbl.Name, err)
		}

		change := sync.Change{
			Table:    tbl.Name,
			RecordID: serverID,
			Action:   store.ActionUpdate,
		}
		if deletedAt.Valid {
			change.Action = store.ActionDelete
		} else {
			data := make(map[string]any, len(cols))
			for i, c := range cols {
				if b, ok := vals[i].([]byte); ok {
					data[c] = string(b)
					continue
				}
				data[c] = vals[i]
			}
			change.Data = data
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}
