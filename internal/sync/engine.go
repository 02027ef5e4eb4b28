package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/logger"
)

// ErrSyncRunning is returned when a cycle is requested while another is in
// flight. The request is dropped, not queued.
var ErrSyncRunning = errors.New("sync cycle already running")

// Engine serializes sync cycles for one store. A cycle always pushes before
// pulling, so this store's own writes reach the authority before it re-reads
// state that could otherwise appear to regress its own edits.
type Engine struct {
	pusher *Pusher
	puller *Puller

	mu      sync.Mutex
	syncing bool
}

func NewEngine(pusher *Pusher, puller *Puller) *Engine {
	return &Engine{pusher: pusher, puller: puller}
}

// Sync runs one push-then-pull cycle.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return ErrSyncRunning
	}
	e.syncing = true
	e.mu.Unlock()

	// Released on every path, including failure; a stuck flag would lock
	// out all future cycles.
	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	if _, err := e.pusher.Push(ctx); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	if _, err := e.puller.Pull(ctx); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	return nil
}

// Wake triggers an immediate cycle without blocking the caller. Errors stay
// inside the sync boundary: a failed cycle is retried by the next scheduled
// one.
func (e *Engine) Wake(ctx context.Context) {
	go func() {
		if err := e.Sync(ctx); err != nil && !errors.Is(err, ErrSyncRunning) {
			logger.Log.Warn("Sync cycle error", zap.Error(err))
		}
	}()
}
