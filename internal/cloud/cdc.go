package cloud

import (
	"fmt"

	"github.com/go-mysql-org/go-mysql/canal"
	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/config"
	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/schema"
)

// Notifier is how the watcher wakes stores; satisfied by notify.Hub.
type Notifier interface {
	Notify(storeID string)
}

// Watcher follows the authority database's binlog and wakes the affected
// store whenever a syncable row changes through any write path - including
// back-office edits that never touch the apply endpoint.
type Watcher struct {
	canal  *canal.Canal
	hub    Notifier
	tables map[string]bool
}

func NewWatcher(dbCfg config.DatabaseConnection, cdcCfg config.CDCConfig, reg *schema.Registry, hub Notifier) (*Watcher, error) {
	tables := make(map[string]bool)
	var tableRegex []string
	for _, t := range reg.Tables() {
		tables[t.Name] = true
		tableRegex = append(tableRegex, fmt.Sprintf("^%s\\.%s$", dbCfg.Database, t.Name))
	}

	c, err := canal.NewCanal(&canal.Config{
		Addr:     fmt.Sprintf("%s:%d", dbCfg.Host, dbCfg.Port),
		User:     dbCfg.ReplicationUser,
		Password: dbCfg.ReplicationPassword,
		Flavor:   "mysql",
		ServerID: cdcCfg.ServerID,
		Dump: canal.DumpConfig{
			// No initial dump; only follow new changes.
			ExecutionPath: "",
		},
		IncludeTableRegex: tableRegex,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create canal: %w", err)
	}

	w := &Watcher{canal: c, hub: hub, tables: tables}
	c.SetEventHandler(&cdcHandler{watcher: w})
	return w, nil
}

func (w *Watcher) Start() {
	logger.Log.Info("Starting binlog watcher")
	go func() {
		if err := w.canal.Run(); err != nil {
			logger.Log.Error("Binlog watcher stopped", zap.Error(err))
		}
	}()
}

func (w *Watcher) Stop() {
	w.canal.Close()
	logger.Log.Info("Stopped binlog watcher")
}

type cdcHandler struct {
	canal.DummyEventHandler
	watcher *Watcher
}

func (h *cdcHandler) OnRow(e *canal.RowsEvent) error {
	if !h.watcher.tables[e.Table.Name] {
		return nil
	}

	storeIdx := -1
	for i, col := range e.Table.Columns {
		if col.Name == "store_id" {
			storeIdx = i
			break
		}
	}
	if storeIdx < 0 {
		return nil
	}

	// For updates the rows come in old/new pairs; the new image is last.
	row := e.Rows[len(e.Rows)-1]
	if storeIdx >= len(row) {
		return nil
	}

	var storeID string
	switch v := row[storeIdx].(type) {
	case string:
		storeID = v
	case []byte:
		storeID = string(v)
	default:
		return nil
	}

	h.watcher.hub.Notify(storeID)
	return nil
}

func (h *cdcHandler) String() string {
	return "CDCHandler"
}
