package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/store"
)

// Pusher drains the change queue into the cloud apply endpoint.
type Pusher struct {
	store     store.LocalStore
	client    *Client
	batchSize int
}

func NewPusher(st store.LocalStore, client *Client, batchSize int) *Pusher {
	return &Pusher{store: st, client: client, batchSize: batchSize}
}

// Push drains the queue in batches. A batch that came back exactly at the
// configured size means more entries may be waiting, so the next batch is
// pushed immediately; a short batch ends the drain.
func (p *Pusher) Push(ctx context.Context) (*PushResult, error) {
	result := &PushResult{}
	for {
		n, err := p.pushBatch(ctx)
		if err != nil {
			return result, err
		}
		if n > 0 {
			result.Pushed += n
			result.Batches++
		}
		if n < p.batchSize {
			return result, nil
		}
	}
}

// pushBatch transmits one batch and returns the number of queue entries it
// consumed. On any failure the queue is left untouched; the next cycle
// retries with then-current row state, so failed attempts self-heal.
func (p *Pusher) pushBatch(ctx context.Context) (int, error) {
	entries, err := p.store.PeekBatch(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read change queue: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(entries))
	changes := make([]Change, 0, len(entries))
	pushedByTable := make(map[string][]string)

	for _, e := range entries {
		ids = append(ids, e.ID)

		if e.Action == store.ActionDelete {
			changes = append(changes, Change{Table: e.TableName, RecordID: e.RecordID, Action: e.Action})
			continue
		}

		// Row state is fetched once at push time, so three queued edits to
		// the same row all carry the same (current) state.
		data, err := p.store.GetRow(ctx, e.TableName, e.RecordID)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch row state for %s:%s: %w", e.TableName, e.RecordID, err)
		}
		if data == nil {
			// Row was deleted after this entry was queued; a DELETE entry
			// follows it in the queue. Consume the entry as a no-op.
			logger.Log.Debug("Queue entry references missing row, skipping",
				zap.String("table", e.TableName),
				zap.String("record_id", e.RecordID))
			continue
		}

		changes = append(changes, Change{Table: e.TableName, RecordID: e.RecordID, Action: e.Action, Data: data})
		pushedByTable[e.TableName] = append(pushedByTable[e.TableName], e.RecordID)
	}

	if len(changes) > 0 {
		if err := p.client.Push(ctx, changes); err != nil {
			return 0, err
		}
	}

	// Acknowledged: consume the entries and flag the rows. The is_synced
	// flag is informational only; losing it never loses data.
	if err := p.store.RemoveBatch(ctx, ids); err != nil {
		return 0, fmt.Errorf("failed to remove pushed queue entries: %w", err)
	}
	for table, recordIDs := range pushedByTable {
		if err := p.store.MarkSynced(ctx, table, recordIDs); err != nil {
			logger.Log.Warn("Failed to mark rows synced",
				zap.String("table", table), zap.Error(err))
		}
	}

	logger.Log.Info("Pushed changes to cloud",
		zap.Int("entries", len(entries)),
		zap.Int("changes", len(changes)))

	return len(entries), nil
}
