package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/bootstrap"
	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/store"
)

// Worker drops records whose lease lapsed. The engine already treats them
// as absent; purging only reclaims space.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Open(ctx, cfg, bootstrap.Options{}, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer rt.Close()

	interval := cfg.PurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	log.Info("worker started", zap.String("store", cfg.StoreBackend), zap.Duration("purge_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runPurge(ctx, rt.Store, log)
	for {
		select {
		case <-ticker.C:
			runPurge(ctx, rt.Store, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runPurge(ctx context.Context, st store.Store, log *zap.Logger) {
	start := time.Now()
	purged, err := st.PurgeExpired(ctx)
	if err != nil {
		log.Error("failed to purge expired records", zap.Error(err))
		return
	}
	if purged > 0 {
		log.Info("purged expired records", zap.Int64("count", purged), zap.Duration("took", time.Since(start)))
	}
}
