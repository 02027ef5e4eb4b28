// Package schema defines the fixed set of syncable tables and their
// column descriptors. Every data-access path that builds SQL dynamically
// (push row fetch, pull apply, cloud upsert, cloud query) builds it from
// these descriptors, never from names received over the wire.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the portable type of a business column.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Real
)

func (t ColumnType) sqliteType() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (t ColumnType) mysqlType() string {
	switch t {
	case Integer:
		return "BIGINT"
	case Real:
		return "DOUBLE"
	default:
		return "VARCHAR(255)"
	}
}

type Column struct {
	Name string
	Type ColumnType
}

// Table describes one syncable table. Columns lists business columns only;
// bookkeeping columns (id, server_id, store_id, is_synced, updated_at,
// deleted_at) are owned by the sync engine and never accepted from payloads.
type Table struct {
	Name    string
	Columns []Column
}

// HasColumn reports whether name is a business column of the table.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the business column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// LocalDDL returns the SQLite CREATE TABLE statement for the store side.
// The local identifier is an auto-increment key; server_id is the global
// identifier assigned at first creation and never changed afterwards.
func (t Table) LocalDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("\tserver_id TEXT NOT NULL UNIQUE,\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.Name, c.Type.sqliteType())
	}
	b.WriteString("\tis_synced INTEGER NOT NULL DEFAULT 0,\n")
	b.WriteString("\tupdated_at INTEGER NOT NULL DEFAULT 0\n")
	b.WriteString(")")
	return b.String()
}

// CloudDDL returns the MySQL CREATE TABLE statement for the authority side.
// Rows carry a soft-delete marker instead of being removed, so other stores
// can observe tombstones during their next pull window.
func (t Table) CloudDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	b.WriteString("\tserver_id VARCHAR(36) NOT NULL,\n")
	b.WriteString("\tstore_id VARCHAR(64) NOT NULL,\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.Name, c.Type.mysqlType())
	}
	b.WriteString("\tupdated_at BIGINT NOT NULL DEFAULT 0,\n")
	b.WriteString("\tdeleted_at BIGINT NULL,\n")
	b.WriteString("\tPRIMARY KEY (server_id),\n")
	b.WriteString("\tINDEX idx_store_updated (store_id, updated_at)\n")
	b.WriteString(")")
	return b.String()
}

// Registry holds the whitelisted tables. It is built once at startup and
// read-only afterwards.
type Registry struct {
	tables  map[string]Table
	ordered []Table
}

// NewRegistry builds a registry from the given tables.
func NewRegistry(tables []Table) *Registry {
	r := &Registry{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		r.tables[t.Name] = t
		r.ordered = append(r.ordered, t)
	}
	return r
}

// Lookup returns the descriptor for name. Unknown tables are the caller's
// signal to skip the change, not an error.
func (r *Registry) Lookup(name string) (Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns all descriptors in registration order.
func (r *Registry) Tables() []Table {
	return r.ordered
}

// Default returns the registry of the point-of-sale tables that sync
// between stores and the cloud.
//
// The local settings key-value table deliberately isn't listed: it carries
// per-store bookkeeping (the pull cursor, credentials) that must not
// replicate across stores.
func Default() *Registry {
	return NewRegistry([]Table{
		{Name: "products", Columns: []Column{
			{Name: "name", Type: Text},
			{Name: "barcode", Type: Text},
			{Name: "price", Type: Real},
			{Name: "cost", Type: Real},
			{Name: "stock", Type: Integer},
			{Name: "category_id", Type: Text},
		}},
		{Name: "categories", Columns: []Column{
			{Name: "name", Type: Text},
		}},
		{Name: "customers", Columns: []Column{
			{Name: "name", Type: Text},
			{Name: "phone", Type: Text},
			{Name: "email", Type: Text},
			{Name: "balance", Type: Real},
		}},
		{Name: "sales", Columns: []Column{
			{Name: "receipt_no", Type: Text},
			{Name: "customer_id", Type: Text},
			{Name: "user_id", Type: Text},
			{Name: "total", Type: Real},
			{Name: "payment_method", Type: Text},
			{Name: "sold_at", Type: Integer},
		}},
		{Name: "users", Columns: []Column{
			{Name: "name", Type: Text},
			{Name: "role", Type: Text},
			{Name: "pin", Type: Text},
		}},
	})
}
