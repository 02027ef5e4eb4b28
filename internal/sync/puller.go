package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/store"
)

// Puller fetches remote changes past the sync cursor and applies them to
// the local store.
type Puller struct {
	store  store.LocalStore
	client *Client

	// onApplied is called after a batch of remote changes committed, with
	// the number of changes applied. Used for UI refresh; may be nil.
	onApplied func(int)
}

func NewPuller(st store.LocalStore, client *Client, onApplied func(int)) *Puller {
	return &Puller{store: st, client: client, onApplied: onApplied}
}

// Pull performs one pull: read cursor, fetch, apply in one transaction,
// advance cursor. The cursor only moves after a successful commit, so a
// failure partway re-runs the identical (idempotent) batch next cycle.
func (p *Puller) Pull(ctx context.Context) (*PullResult, error) {
	since, err := p.store.Cursor(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Pull(ctx, since)
	if err != nil {
		return nil, err
	}

	if len(resp.Changes) == 0 {
		// Still advance to server time so the cursor doesn't starve while
		// nothing changes.
		if err := p.store.SetCursor(ctx, resp.ServerTime); err != nil {
			return nil, fmt.Errorf("failed to advance sync cursor: %w", err)
		}
		return &PullResult{Applied: 0, ServerTime: resp.ServerTime}, nil
	}

	remote := make([]store.RemoteChange, len(resp.Changes))
	for i, c := range resp.Changes {
		remote[i] = store.RemoteChange{
			Table:    c.Table,
			RecordID: c.RecordID,
			Action:   c.Action,
			Data:     c.Data,
		}
	}

	if err := p.store.ApplyRemote(ctx, remote, resp.ServerTime); err != nil {
		return nil, fmt.Errorf("failed to apply pulled changes: %w", err)
	}
	if err := p.store.SetCursor(ctx, resp.ServerTime); err != nil {
		return nil, fmt.Errorf("failed to advance sync cursor: %w", err)
	}

	logger.Log.Info("Applied remote changes",
		zap.Int("count", len(remote)),
		zap.Int64("server_time", resp.ServerTime))

	if p.onApplied != nil {
		p.onApplied(len(remote))
	}

	return &PullResult{Applied: len(remote), ServerTime: resp.ServerTime}, nil
}
