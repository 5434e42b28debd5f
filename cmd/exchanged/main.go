package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/avoskov/rubex/params"
	"github.com/avoskov/rubex/pkg/api"
	"github.com/avoskov/rubex/pkg/exchange"
	"github.com/avoskov/rubex/pkg/storage"
	"github.com/avoskov/rubex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := newLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Store ----
	var store exchange.Store
	if cfg.Storage.DBPath == "" {
		sugar.Info("using in-memory store, state will not survive restart")
		store = storage.NewMemStore()
	} else {
		ps, err := storage.NewPebbleStore(cfg.Storage.DBPath)
		if err != nil {
			sugar.Fatalw("store_open_failed", "path", cfg.Storage.DBPath, "err", err)
		}
		defer ps.Close()
		store = ps
		sugar.Infow("store_opened", "path", cfg.Storage.DBPath)
	}

	// ---- Engine ----
	engine, err := exchange.New(store, sugar)
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	admin, created, err := engine.SeedAdmin(cfg.AdminAPIKey)
	if err != nil {
		sugar.Fatalw("admin_seed_failed", "err", err)
	}
	if created {
		sugar.Infow("admin_created", "api_key", admin.APIKey)
	} else {
		sugar.Infow("admin_exists", "api_key", admin.APIKey)
	}

	// ---- API server ----
	server := api.NewServer(engine, sugar, cfg.Server.SnapshotDepth)
	go func() {
		if err := server.Start(cfg.Server.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	sugar.Info("shutting down")
}

func newLogger(logFile string) (*zap.Logger, error) {
	if logFile != "" {
		return util.NewLoggerWithFile(logFile)
	}
	return util.NewLogger()
}
