package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

func newStore(clock *time.Time) *store.Memory {
	return store.NewMemory(store.Options{DefaultTTL: time.Minute, Now: func() time.Time { return *clock }})
}

func TestSaveRenewsLease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newStore(&now)
	repo := NewEscrowRepo(24 * time.Hour)
	e := &models.Escrow{ID: models.NewEscrowID(1, "D", "B", "A", 10, "USDC"), Amount: 10, Status: models.EscrowStatusCreated}

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return repo.Save(ctx, tx, e)
	}))

	// Well past the store default, inside the repository lease.
	now = now.Add(12 * time.Hour)
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := repo.GetByID(ctx, tx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.Amount, got.Amount)
		return nil
	}))
}

func TestGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := newStore(&now)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		_, err := NewAgreementRepo(time.Hour).GetByID(ctx, tx, "nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = NewPropertyRepo(time.Hour).GetByID(ctx, tx, "nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = NewStateRepo().Admin(ctx, tx)
		assert.ErrorIs(t, err, models.ErrNotInitialized)
		return nil
	}))
}

func TestStateRepoCounters(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := newStore(&now)
	repo := NewStateRepo()

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		if err := repo.Initialize(ctx, tx, "ADMIN", models.ProtocolConfig{FeeBPS: 250, FeeCollector: "FEE"}); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if _, err := repo.Increment(ctx, tx, store.KeyPaymentCount); err != nil {
				return err
			}
		}
		n, err := repo.Increment(ctx, tx, store.KeyEscrowCount)
		assert.Equal(t, uint32(1), n)
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		c, err := repo.Counters(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, models.Counters{Payments: 3, Escrows: 1}, c)

		admin, err := repo.Admin(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, "ADMIN", admin)

		cfg, err := repo.Config(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, uint32(250), cfg.FeeBPS)
		return nil
	}))
}

func TestRetentionFollowsStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newStore(&now)
	escrows := NewEscrowRepo(time.Hour)
	agreements := NewAgreementRepo(time.Hour)

	created := &models.Escrow{ID: models.NewEscrowID(1, "D", "B", "A", 10, "USDC"), Amount: 10, Status: models.EscrowStatusCreated}
	funded := &models.Escrow{ID: models.NewEscrowID(2, "D", "B", "A", 10, "USDC"), Amount: 10, Status: models.EscrowStatusCreated}
	draft := &models.RentAgreement{AgreementID: "draft", Status: models.AgreementStatusDraft}
	active := &models.RentAgreement{AgreementID: "active", Status: models.AgreementStatusPending}

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		for _, e := range []*models.Escrow{created, funded} {
			if err := escrows.Save(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, a := range []*models.RentAgreement{draft, active} {
			if err := agreements.Save(ctx, tx, a); err != nil {
				return err
			}
		}
		funded.Status = models.EscrowStatusFunded
		if err := escrows.Save(ctx, tx, funded); err != nil {
			return err
		}
		active.Status = models.AgreementStatusActive
		return agreements.Save(ctx, tx, active)
	}))

	now = now.Add(24 * time.Hour)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		_, err := escrows.GetByID(ctx, tx, created.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = escrows.GetByID(ctx, tx, funded.ID)
		assert.NoError(t, err)
		_, err = agreements.GetByID(ctx, tx, draft.AgreementID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = agreements.GetByID(ctx, tx, active.AgreementID)
		assert.NoError(t, err)
		return nil
	}))
}

func TestStateRepoNeverLapses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newStore(&now)
	repo := NewStateRepo()

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return repo.Initialize(ctx, tx, "ADMIN", models.ProtocolConfig{FeeBPS: 250, FeeCollector: "FEE"})
	}))

	now = now.Add(365 * 24 * time.Hour)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		ok, err := repo.IsInitialized(ctx, tx)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))
}
