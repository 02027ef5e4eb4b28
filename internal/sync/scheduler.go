package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/logger"
)

// Scheduler drives the engine on a fixed interval.
type Scheduler struct {
	interval string
	engine   *Engine
	cron     *cron.Cron
	entryID  cron.EntryID
}

func NewScheduler(interval string, engine *Engine) *Scheduler {
	return &Scheduler{
		interval: interval,
		engine:   engine,
		cron:     cron.New(),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	logger.Log.Info("Starting sync scheduler", zap.String("interval", s.interval))

	id, err := s.cron.AddFunc(s.interval, func() {
		err := s.engine.Sync(ctx)
		switch {
		case errors.Is(err, ErrSyncRunning):
			logger.Log.Info("Sync already running, skipping scheduled cycle")
		case err != nil:
			logger.Log.Warn("Scheduled sync cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Log.Error("Failed to schedule sync job", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped sync scheduler")
}
