package cloud

import (
	"fmt"
	"strings"

	"github.com/just-nadir/justpos-sync/internal/schema"
)

// softDeleteSQL marks a row deleted instead of removing it, leaving a
// tombstone other stores observe during their next pull window.
func softDeleteSQL(table string) string {
	return fmt.Sprintf(
		"UPDATE %s SET deleted_at = ?, updated_at = ? WHERE server_id = ? AND store_id = ?",
		table)
}

// upsertSQL builds the insert-or-overwrite statement for the given payload
// columns. A later update clears any prior soft-delete marker: a row can be
// undeleted, which is the intended last-write-wins behavior.
func upsertSQL(table string, cols []string) string {
	colList := ""
	valList := strings.Repeat("?, ", len(cols))
	if len(cols) > 0 {
		colList = strings.Join(cols, ", ") + ", "
	}

	var sets []string
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
	}
	sets = append(sets, "updated_at = VALUES(updated_at)", "deleted_at = NULL")

	return fmt.Sprintf(
		"INSERT INTO %s (%sstore_id, server_id, updated_at) VALUES (%s?, ?, ?) ON DUPLICATE KEY UPDATE %s",
		table, colList, valList, strings.Join(sets, ", "))
}

// selectSinceSQL returns the changes-since query for one table.
func selectSinceSQL(tbl schema.Table) string {
	cols := append([]string{"server_id", "updated_at", "deleted_at"}, tbl.ColumnNames()...)
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE store_id = ? AND updated_at > ?",
		strings.Join(cols, ", "), tbl.Name)
}
