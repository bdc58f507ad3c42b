package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// connect retries fn with linear backoff; services often start before
// their databases accept connections.
func connect(ctx context.Context, what string, log *zap.Logger, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		log.Warn("connection attempt failed",
			zap.String("target", what),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * connectBackoff):
		}
	}
	return err
}
