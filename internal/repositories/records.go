package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

// save writes value and renews the key's lease.
func save(ctx context.Context, tx store.Tx, key string, value any, ttl time.Duration) error {
	if err := tx.Set(ctx, key, value); err != nil {
		return err
	}
	return tx.ExtendTTL(ctx, key, ttl)
}

// persist writes value and clears the key's expiry.
func persist(ctx context.Context, tx store.Tx, key string, value any) error {
	if err := tx.Set(ctx, key, value); err != nil {
		return err
	}
	return tx.Persist(ctx, key)
}

// load decodes key into dst, returning models.ErrNotFound when it is absent.
func load(ctx context.Context, tx store.Tx, key string, dst any) error {
	found, err := tx.Get(ctx, key, dst)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	return nil
}
