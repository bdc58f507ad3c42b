package repositories

import (
	"context"
	"time"

	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

type AgreementRepo struct {
	ttl time.Duration
}

func NewAgreementRepo(ttl time.Duration) *AgreementRepo {
	return &AgreementRepo{ttl: ttl}
}

func (r *AgreementRepo) GetByID(ctx context.Context, tx store.Tx, id string) (*models.RentAgreement, error) {
	var a models.RentAgreement
	if err := load(ctx, tx, store.AgreementKey(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AgreementRepo) Exists(ctx context.Context, tx store.Tx, id string) (bool, error) {
	return tx.Has(ctx, store.AgreementKey(id))
}

// Save leases draft and pending agreements. Active agreements hold the
// deposit and closed ones are kept for audit, so both are stored without expiry.
func (r *AgreementRepo) Save(ctx context.Context, tx store.Tx, a *models.RentAgreement) error {
	key := store.AgreementKey(a.AgreementID)
	switch a.Status {
	case models.AgreementStatusDraft, models.AgreementStatusPending:
		return save(ctx, tx, key, a, r.ttl)
	}
	return persist(ctx, tx, key, a)
}
