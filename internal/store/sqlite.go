package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/database"
	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/schema"
)

const cursorKey = "last_pulled_at"

// SQLiteStore implements LocalStore on the embedded store database.
type SQLiteStore struct {
	db  *sql.DB
	reg *schema.Registry
}

// NewSQLiteStore wraps an opened SQLite handle and creates the schema:
// all registry tables, the change queue, and the settings table.
func NewSQLiteStore(db *sql.DB, reg *schema.Registry) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, reg: reg}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			action TEXT NOT NULL CHECK (action IN ('INSERT','UPDATE','DELETE')),
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, t := range s.reg.Tables() {
		stmts = append(stmts, t.LocalDDL())
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nextTimestamp returns an epoch-ms timestamp strictly greater than the
// row's current updated_at, so repeated edits within one millisecond still
// order correctly.
func nextTimestamp(ctx context.Context, tx *sql.Tx, table, serverID string) (int64, error) {
	now := time.Now().UnixMilli()

	var prev sql.NullInt64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT updated_at FROM %s WHERE server_id = ?", table),
		serverID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	if prev.Valid && prev.Int64 >= now {
		return prev.Int64 + 1, nil
	}
	return now, nil
}

// splitData validates the payload against the table descriptor and returns
// column names and values in declaration order. Unknown columns are an
// error: the write API is a local trusted surface and a typo should fail
// loudly rather than silently drop data.
func splitData(tbl schema.Table, data map[string]any) ([]string, []any, error) {
	for k := range data {
		if !tbl.HasColumn(k) {
			return nil, nil, fmt.Errorf("unknown column %q for table %s", k, tbl.Name)
		}
	}

	var cols []string
	var vals []any
	for _, c := range tbl.Columns {
		if v, ok := data[c.Name]; ok {
			cols = append(cols, c.Name)
			vals = append(vals, v)
		}
	}
	return cols, vals, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendQueueEntry(ctx context.Context, tx *sql.Tx, table, serverID string, action Action) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sync_queue (table_name, record_id, action, created_at) VALUES (?, ?, ?, ?)`,
		table, serverID, string(action), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append queue entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertRow(ctx context.Context, table string, data map[string]any) (string, error) {
	tbl, ok := s.reg.Lookup(table)
	if !ok {
		return "", fmt.Errorf("table %s is not syncable", table)
	}
	cols, vals, err := splitData(tbl, data)
	if err != nil {
		return "", err
	}

	serverID := uuid.NewString()
	err = database.ExecTx(ctx, s.db, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		colList := ""
		valList := ""
		if len(cols) > 0 {
			colList = strings.Join(cols, ", ") + ", "
			valList = placeholders(len(cols)) + ", "
		}
		query := fmt.Sprintf("INSERT INTO %s (%sserver_id, is_synced, updated_at) VALUES (%s?, 0, ?)",
			tbl.Name, colList, valList)
		args := append(append([]any{}, vals...), serverID, now)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", tbl.Name, err)
		}
		return appendQueueEntry(ctx, tx, tbl.Name, serverID, ActionInsert)
	})
	if err != nil {
		return "", err
	}
	return serverID, nil
}

func (s *SQLiteStore) UpdateRow(ctx context.Context, table, serverID string, data map[string]any) error {
	tbl, ok := s.reg.Lookup(table)
	if !ok {
		return fmt.Errorf("table %s is not syncable", table)
	}
	cols, vals, err := splitData(tbl, data)
	if err != nil {
		return err
	}

	return database.ExecTx(ctx, s.db, func(tx *sql.Tx) error {
		ts, err := nextTimestamp(ctx, tx, tbl.Name, serverID)
		if err != nil {
			return err
		}

		setList := ""
		if len(cols) > 0 {
			sets := make([]string, len(cols))
			for i, c := range cols {
				sets[i] = c + " = ?"
			}
			setList = strings.Join(sets, ", ") + ", "
		}
		query := fmt.Sprintf("UPDATE %s SET %sis_synced = 0, updated_at = ? WHERE server_id = ?",
			tbl.Name, setList)
		args := append(append([]any{}, vals...), ts, serverID)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", tbl.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRowNotFound
		}
		return appendQueueEntry(ctx, tx, tbl.Name, serverID, ActionUpdate)
	})
}

func (s *SQLiteStore) DeleteRow(ctx context.Context, table, serverID string) error {
	tbl, ok := s.reg.Lookup(table)
	if !ok {
		return fmt.Errorf("table %s is not syncable", table)
	}

	return database.ExecTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE server_id = ?", tbl.Name), serverID)
		if err != nil {
			return fmt.Errorf("failed to delete from %s: %w", tbl.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRowNotFound
		}
		return appendQueueEntry(ctx, tx, tbl.Name, serverID, ActionDelete)
	})
}

func (s *SQLiteStore) GetRow(ctx context.Context, table, serverID string) (map[string]any, error) {
	tbl, ok := s.reg.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("table %s is not syncable", table)
	}

	cols := tbl.ColumnNames()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE server_id = ?",
		strings.Join(cols, ", "), tbl.Name)

	row := s.db.QueryRowContext(ctx, query, serverID)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s row: %w", tbl.Name, err)
	}

	data := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			data[c] = string(b)
			continue
		}
		data[c] = vals[i]
	}
	return data, nil
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, table string, serverIDs []string) error {
	if len(serverIDs) == 0 {
		return nil
	}
	tbl, ok := s.reg.Lookup(table)
	if !ok {
		return fmt.Errorf("table %s is not syncable", table)
	}

	args := make([]any, len(serverIDs))
	for i, id := range serverIDs {
		args[i] = id
	}
	query := fmt.Sprintf("UPDATE %s SET is_synced = 1 WHERE server_id IN (%s)",
		tbl.Name, placeholders(len(serverIDs)))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) PeekBatch(ctx context.Context, limit int) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, table_name, record_id, action, created_at
		 FROM sync_queue ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read change queue: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var action string
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &action, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) RemoveBatch(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	// Deleting an already-removed id is a no-op.
	query := fmt.Sprintf("DELETE FROM sync_queue WHERE id IN (%s)", placeholders(len(ids)))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *SQLiteStore) Cursor(ctx context.Context) (int64, error) {
	v, err := s.GetSetting(ctx, cursorKey)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt sync cursor %q: %w", v, err)
	}
	return ts, nil
}

func (s *SQLiteStore) SetCursor(ctx context.Context, ts int64) error {
	return s.SetSetting(ctx, cursorKey, strconv.FormatInt(ts, 10))
}

// ApplyRemote applies a pull batch in one transaction. Writes here bypass
// the write API on purpose: remote-originated changes must not re-enter the
// change queue.
//
// Application is idempotent: DELETE tolerates absent rows, and the
// insert-if-absent/update-if-present branches converge to the same state
// however many times they run, so a crash between commit and cursor advance
// is healed by re-applying the identical batch.
func (s *SQLiteStore) ApplyRemote(ctx context.Context, changes []RemoteChange, serverTime int64) error {
	return database.ExecTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, change := range changes {
			tbl, ok := s.reg.Lookup(change.Table)
			if !ok {
				logger.Log.Warn("Skipping change for unknown table",
					zap.String("table", change.Table),
					zap.String("record_id", change.RecordID))
				continue
			}

			if change.Action == ActionDelete {
				if _, err := tx.ExecContext(ctx,
					fmt.Sprintf("DELETE FROM %s WHERE server_id = ?", tbl.Name),
					change.RecordID); err != nil {
					return fmt.Errorf("failed to apply delete for %s:%s: %w", tbl.Name, change.RecordID, err)
				}
				continue
			}

			// Bookkeeping columns are set explicitly below; the payload only
			// contributes columns the descriptor knows.
			var cols []string
			var vals []any
			for _, c := range tbl.Columns {
				if v, ok := change.Data[c.Name]; ok {
					cols = append(cols, c.Name)
					vals = append(vals, v)
				}
			}

			var localID int64
			err := tx.QueryRowContext(ctx,
				fmt.Sprintf("SELECT id FROM %s WHERE server_id = ?", tbl.Name),
				change.RecordID).Scan(&localID)
			switch {
			case err == sql.ErrNoRows:
				colList := ""
				valList := ""
				if len(cols) > 0 {
					colList = strings.Join(cols, ", ") + ", "
					valList = placeholders(len(cols)) + ", "
				}
				query := fmt.Sprintf("INSERT INTO %s (%sserver_id, is_synced, updated_at) VALUES (%s?, 1, ?)",
					tbl.Name, colList, valList)
				args := append(append([]any{}, vals...), change.RecordID, serverTime)
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("failed to apply insert for %s:%s: %w", tbl.Name, change.RecordID, err)
				}
			case err != nil:
				return fmt.Errorf("failed to look up %s:%s: %w", tbl.Name, change.RecordID, err)
			default:
				setList := ""
				if len(cols) > 0 {
					sets := make([]string, len(cols))
					for i, c := range cols {
						sets[i] = c + " = ?"
					}
					setList = strings.Join(sets, ", ") + ", "
				}
				query := fmt.Sprintf("UPDATE %s SET %sis_synced = 1, updated_at = ? WHERE id = ?",
					tbl.Name, setList)
				args := append(append([]any{}, vals...), serverTime, localID)
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("failed to apply update for %s:%s: %w", tbl.Name, change.RecordID, err)
				}
			}
		}
		return nil
	})
}
