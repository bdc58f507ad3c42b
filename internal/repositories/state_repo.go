package repositories

import (
	"context"
	"fmt"
	"math"

	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

var counterKeys = []string{
	store.KeyAgreementCount,
	store.KeyPaymentCount,
	store.KeyDisputeCount,
	store.KeyPropertyCount,
	store.KeyEscrowCount,
}

// StateRepo holds the protocol singletons: admin, config and the global
// counters. They are written without expiry, so initialization cannot lapse.
type StateRepo struct{}

func NewStateRepo() *StateRepo {
	return &StateRepo{}
}

func (r *StateRepo) IsInitialized(ctx context.Context, tx store.Tx) (bool, error) {
	return tx.Has(ctx, store.KeyAdmin)
}

// Admin returns the protocol admin, or models.ErrNotInitialized.
func (r *StateRepo) Admin(ctx context.Context, tx store.Tx) (string, error) {
	var admin string
	found, err := tx.Get(ctx, store.KeyAdmin, &admin)
	if err != nil {
		return "", err
	}
	if !found {
		return "", models.ErrNotInitialized
	}
	return admin, nil
}

func (r *StateRepo) Config(ctx context.Context, tx store.Tx) (*models.ProtocolConfig, error) {
	var cfg models.ProtocolConfig
	found, err := tx.Get(ctx, store.KeyConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.ErrNotInitialized
	}
	return &cfg, nil
}

// Initialize writes admin, config and zeroed counters.
func (r *StateRepo) Initialize(ctx context.Context, tx store.Tx, admin string, cfg models.ProtocolConfig) error {
	if err := persist(ctx, tx, store.KeyAdmin, admin); err != nil {
		return err
	}
	if err := r.SaveConfig(ctx, tx, cfg); err != nil {
		return err
	}
	for _, key := range counterKeys {
		if err := persist(ctx, tx, key, uint32(0)); err != nil {
			return err
		}
	}
	return nil
}

func (r *StateRepo) SaveConfig(ctx context.Context, tx store.Tx, cfg models.ProtocolConfig) error {
	return persist(ctx, tx, store.KeyConfig, cfg)
}

func (r *StateRepo) Counter(ctx context.Context, tx store.Tx, key string) (uint32, error) {
	var n uint32
	if _, err := tx.Get(ctx, key, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Increment bumps a counter and returns its new value.
func (r *StateRepo) Increment(ctx context.Context, tx store.Tx, key string) (uint32, error) {
	n, err := r.Counter(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	if n == math.MaxUint32 {
		return 0, fmt.Errorf("%w: counter %s overflow", models.ErrInvalidState, key)
	}
	n++
	if err := persist(ctx, tx, key, n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *StateRepo) Counters(ctx context.Context, tx store.Tx) (models.Counters, error) {
	var c models.Counters
	targets := map[string]*uint32{
		store.KeyAgreementCount: &c.Agreements,
		store.KeyPaymentCount:   &c.Payments,
		store.KeyDisputeCount:   &c.Disputes,
		store.KeyPropertyCount:  &c.Properties,
		store.KeyEscrowCount:    &c.Escrows,
	}
	for key, dst := range targets {
		n, err := r.Counter(ctx, tx, key)
		if err != nil {
			return c, err
		}
		*dst = n
	}
	return c, nil
}
