package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/db"
	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/notify"
)

// Notify Bridge subscribes to settlement events in Redis and forwards the
// ones that concern a party to NOTIFY_WEBHOOK_URL.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.NotifyWebhookURL == "" {
		log.Fatal("NOTIFY_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	webhook := notify.NewWebhookClient(cfg.NotifyWebhookURL, log)

	err = events.SubscribeAll(ctx, subscriber, func(stream string, event events.Event) {
		log.Info("forwarding event", zap.String("stream", stream), zap.String("type", event.Type))
		if err := webhook.Forward(ctx, stream, event); err != nil {
			log.Warn("failed to forward notification", zap.String("type", event.Type), zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("notify-bridge started", zap.Strings("streams", events.AllStreams))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}
