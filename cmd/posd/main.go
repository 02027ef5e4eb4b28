package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/api"
	"github.com/just-nadir/justpos-sync/internal/config"
	"github.com/just-nadir/justpos-sync/internal/database"
	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/notify"
	"github.com/just-nadir/justpos-sync/internal/schema"
	"github.com/just-nadir/justpos-sync/internal/store"
	"github.com/just-nadir/justpos-sync/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.ID == "" {
		fmt.Println("store.id is required")
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting store sync agent", zap.String("store_id", cfg.Store.ID))

	// Init Local Store
	db, err := database.OpenSQLite(cfg.Store.DBPath)
	if err != nil {
		logger.Log.Fatal("Failed to open local database", zap.Error(err))
	}

	localStore, err := store.NewSQLiteStore(db, schema.Default())
	if err != nil {
		logger.Log.Fatal("Failed to init local store", zap.Error(err))
	}
	defer localStore.Close()

	// Init Sync Engine
	client := sync.NewClient(cfg.Store)
	pusher := sync.NewPusher(localStore, client, cfg.Sync.BatchSize)
	puller := sync.NewPuller(localStore, client, nil)
	engine := sync.NewEngine(pusher, puller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catch up on whatever accumulated while the agent was down.
	if err := engine.Sync(ctx); err != nil {
		logger.Log.Warn("Initial sync failed", zap.Error(err))
	}

	scheduler := sync.NewScheduler(cfg.Sync.Interval, engine)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Listen for wake notifications from the cloud.
	listener := notify.NewListener(cfg.Store, cfg.Sync, func() {
		engine.Wake(ctx)
	})
	go listener.Run(ctx)

	// Local status surface for the POS frontend.
	statusAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	statusServer := &http.Server{
		Addr:    statusAddr,
		Handler: api.NewAgentHandler(localStore).Routes(),
	}
	go func() {
		logger.Log.Info("Status server listening", zap.String("addr", statusAddr))
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Status server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down sync agent...")
	cancel()
	_ = statusServer.Close()
}
