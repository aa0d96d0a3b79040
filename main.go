package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"insurecharge/config"
	"insurecharge/db"
	qhttp "insurecharge/http"
	"insurecharge/logger"
	"insurecharge/ml"
	"insurecharge/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	zl, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	// 3. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	zl.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 4. Load model assets. A failure here is not fatal: each request
	// retries the load until one succeeds.
	store := ml.NewAssetStore(cfg.AssetSource())
	if assets, err := store.Load(); err != nil {
		zl.Error("model assets unavailable", zap.Error(err))
	} else {
		zl.Info("model assets loaded",
			zap.String("model", cfg.Model.Path),
			zap.Int("features", assets.Model.FeatureCount()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitoring.NewMetricsCollector()
	hub := qhttp.NewFeedHub(cfg.Http.AllowedOrigins, zl)
	go hub.Run(ctx)

	if cfg.Model.Watch {
		watcher, err := ml.NewWatcher(store, zl)
		if err != nil {
			zl.Warn("asset watcher disabled", zap.Error(err))
		} else {
			watcher.OnReload = func(a *ml.Assets) {
				metrics.RecordReload(a.Generation)
				hub.Publish(qhttp.ModelReloaded, map[string]interface{}{
					"generation":    a.Generation,
					"feature_count": a.Model.FeatureCount(),
				})
			}
			go watcher.Run(ctx)
		}
	}

	service := ml.NewService(store, cfg.Validation,
		ml.WithLogger(zl),
		ml.WithCache(cfg.Cache.Size))

	// 5. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, &qhttp.Handlers{
		Predictor: service,
		Assets:    store,
		Bounds:    cfg.Validation,
		Feed:      hub,
		Metrics:   metrics,
		Logger:    zl,
	}, zl)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			zl.Error("HTTP server failed", zap.Error(err))
		}
	}
	zl.Info("shutting down")

	if err := server.Stop(); err != nil {
		zl.Warn("server forced to shutdown", zap.Error(err))
	}
	cancel()

	zl.Info("exiting")
}
