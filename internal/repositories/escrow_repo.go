package repositories

import (
	"context"
	"time"

	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

type EscrowRepo struct {
	ttl time.Duration
}

func NewEscrowRepo(ttl time.Duration) *EscrowRepo {
	return &EscrowRepo{ttl: ttl}
}

func (r *EscrowRepo) GetByID(ctx context.Context, tx store.Tx, id models.EscrowID) (*models.Escrow, error) {
	var e models.Escrow
	if err := load(ctx, tx, store.EscrowKey(id.String()), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) Exists(ctx context.Context, tx store.Tx, id models.EscrowID) (bool, error) {
	return tx.Has(ctx, store.EscrowKey(id.String()))
}

// Save leases an escrow until it is funded. From then on it holds custodied
// funds or is settled, and the record is kept without expiry.
func (r *EscrowRepo) Save(ctx context.Context, tx store.Tx, e *models.Escrow) error {
	key := store.EscrowKey(e.ID.String())
	if e.Status == models.EscrowStatusCreated {
		return save(ctx, tx, key, e, r.ttl)
	}
	return persist(ctx, tx, key, e)
}
