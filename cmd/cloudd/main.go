package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/api"
	"github.com/just-nadir/justpos-sync/internal/cloud"
	"github.com/just-nadir/justpos-sync/internal/config"
	"github.com/just-nadir/justpos-sync/internal/database"
	"github.com/just-nadir/justpos-sync/internal/logger"
	"github.com/just-nadir/justpos-sync/internal/notify"
	"github.com/just-nadir/justpos-sync/internal/schema"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting cloud sync server")

	reg := schema.Default()

	// Init Authority Database
	db, err := database.NewMySQL(cfg.Cloud.Database)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}

	cloudStore, err := cloud.NewMySQLStore(db, reg)
	if err != nil {
		logger.Log.Fatal("Failed to init cloud store", zap.Error(err))
	}
	defer cloudStore.Close()

	// Init Notifier Hub
	hub := notify.NewHub()
	hub.Start()
	defer hub.Stop()

	// Init Binlog Watcher
	if cfg.Cloud.CDC.Enabled {
		watcher, err := cloud.NewWatcher(cfg.Cloud.Database, cfg.Cloud.CDC, reg, hub)
		if err != nil {
			logger.Log.Fatal("Failed to init binlog watcher", zap.Error(err))
		}
		watcher.Start()
		defer watcher.Stop()
	}

	// Init API
	handler := api.NewHandler(cloudStore, hub, cfg.Server.AuthToken)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Warn("Server shutdown failed", zap.Error(err))
	}
}
