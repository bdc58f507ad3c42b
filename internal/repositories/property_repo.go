package repositories

import (
	"context"
	"time"

	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

type PropertyRepo struct {
	ttl time.Duration
}

func NewPropertyRepo(ttl time.Duration) *PropertyRepo {
	return &PropertyRepo{ttl: ttl}
}

func (r *PropertyRepo) GetByID(ctx context.Context, tx store.Tx, id string) (*models.PropertyDetails, error) {
	var p models.PropertyDetails
	if err := load(ctx, tx, store.PropertyKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PropertyRepo) Exists(ctx context.Context, tx store.Tx, id string) (bool, error) {
	return tx.Has(ctx, store.PropertyKey(id))
}

func (r *PropertyRepo) Save(ctx context.Context, tx store.Tx, p *models.PropertyDetails) error {
	return save(ctx, tx, store.PropertyKey(p.PropertyID), p, r.ttl)
}
