package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/models"
)

func TestInitializeOnce(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 250)
	before := h.counters(t)

	err := h.protocol.Initialize(h.ctx, "GOTHER", models.ProtocolConfig{FeeBPS: 100, FeeCollector: collector})
	require.ErrorIs(t, err, models.ErrAlreadyInitialized)

	st, err := h.protocol.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, st.Admin)
	assert.Equal(t, uint32(250), st.Config.FeeBPS)
	assert.Equal(t, before, st.Counters)
	assert.Equal(t, "1.0.0", st.Version)
	assert.Equal(t, []string{events.EventProtocolInitialized}, h.recorder.Types(events.StreamProtocol))
}

func TestInitializeValidation(t *testing.T) {
	h := newHarness(t)

	require.ErrorIs(t, h.protocol.Initialize(h.ctx, "", models.ProtocolConfig{FeeCollector: collector}), models.ErrInvalidInput)
	require.ErrorIs(t, h.protocol.Initialize(h.ctx, admin, models.ProtocolConfig{FeeBPS: 10001, FeeCollector: collector}), models.ErrInvalidConfig)
	require.ErrorIs(t, h.protocol.Initialize(h.ctx, admin, models.ProtocolConfig{FeeBPS: 10}), models.ErrInvalidConfig)

	// Failed attempts leave the protocol uninitialized.
	_, err := h.protocol.State(h.ctx)
	require.ErrorIs(t, err, models.ErrNotInitialized)
}

func TestCallsBeforeInitialize(t *testing.T) {
	h := newHarness(t)

	_, err := h.escrows.Open(h.ctx, depositor, OpenEscrowInput{
		Depositor: depositor, Beneficiary: beneficiary, Arbiter: arbiter, Amount: 10, Token: token,
	})
	require.ErrorIs(t, err, models.ErrNotInitialized)

	_, err = h.properties.Register(h.ctx, landlord, "prop-1", "hash")
	require.ErrorIs(t, err, models.ErrNotInitialized)

	_, err = h.protocol.UpdateConfig(h.ctx, admin, 100, collector)
	require.ErrorIs(t, err, models.ErrNotInitialized)
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 250)

	_, err := h.protocol.UpdateConfig(h.ctx, outsider, 100, collector)
	require.ErrorIs(t, err, models.ErrNotAuthorized)

	_, err = h.protocol.UpdateConfig(h.ctx, admin, 20000, collector)
	require.ErrorIs(t, err, models.ErrInvalidConfig)

	cfg, err := h.protocol.UpdateConfig(h.ctx, admin, 100, "GNEWFEES")
	require.NoError(t, err)
	assert.Equal(t, uint32(100), cfg.FeeBPS)
	assert.Equal(t, "GNEWFEES", cfg.FeeCollector)
	assert.False(t, cfg.Paused)
}

func TestPauseBlocksMutations(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 250)
	h.ledger.Mint(token, depositor, 1000)

	e, err := h.escrows.Open(h.ctx, depositor, OpenEscrowInput{
		Depositor: depositor, Beneficiary: beneficiary, Arbiter: arbiter, Amount: 1000, Token: token,
	})
	require.NoError(t, err)

	require.ErrorIs(t, h.protocol.SetPaused(h.ctx, depositor, true), models.ErrNotAuthorized)
	require.NoError(t, h.protocol.SetPaused(h.ctx, admin, true))

	_, err = h.escrows.Fund(h.ctx, depositor, e.ID)
	require.ErrorIs(t, err, models.ErrPaused)
	_, err = h.properties.Register(h.ctx, landlord, "prop-1", "hash")
	require.ErrorIs(t, err, models.ErrPaused)

	// Admin setters and reads still work while paused.
	_, err = h.protocol.UpdateConfig(h.ctx, admin, 300, collector)
	require.NoError(t, err)
	got, err := h.escrows.GetByID(h.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusCreated, got.Status)

	require.NoError(t, h.protocol.SetPaused(h.ctx, admin, false))
	_, err = h.escrows.Fund(h.ctx, depositor, e.ID)
	require.NoError(t, err)
}

func TestInitializationOutlivesRecordTTL(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 250)
	_, err := h.properties.Register(h.ctx, landlord, "prop-a", "hash")
	require.NoError(t, err)

	// No writes for well past the record lease.
	h.clock.Set(h.clock.Now().Add(72 * time.Hour))
	purged, err := h.store.PurgeExpired(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged, "only the idle property lapses")

	err = h.protocol.Initialize(h.ctx, outsider, models.ProtocolConfig{FeeBPS: 10000, FeeCollector: outsider})
	require.ErrorIs(t, err, models.ErrAlreadyInitialized)

	st, err := h.protocol.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, st.Admin)
	assert.Equal(t, uint32(250), st.Config.FeeBPS)
	assert.Equal(t, uint32(1), st.Counters.Properties)
}

func TestWritesRenewRecordLeases(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 250)

	_, err := h.properties.Register(h.ctx, landlord, "prop-a", "hash")
	require.NoError(t, err)
	h.clock.Set(h.clock.Now().Add(20 * time.Hour))
	_, err = h.properties.Verify(h.ctx, admin, "prop-a")
	require.NoError(t, err)

	// Verification pushed the lease 24h past the second write.
	h.clock.Set(h.clock.Now().Add(20 * time.Hour))
	ok, err := h.properties.Has(h.ctx, "prop-a")
	require.NoError(t, err)
	assert.True(t, ok)

	h.clock.Set(h.clock.Now().Add(5 * time.Hour))
	ok, err = h.properties.Has(h.ctx, "prop-a")
	require.NoError(t, err)
	assert.False(t, ok)
}
