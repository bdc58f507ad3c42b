package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/custody"
	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

const (
	admin     = "GADMIN"
	collector = "GFEES"
	custodian = "platform:custody"
	token     = "USDC"

	depositor   = "GDEPOSITOR"
	beneficiary = "GBENEFICIARY"
	arbiter     = "GARBITER"
	outsider    = "GOUTSIDER"

	landlord = "GLANDLORD"
	tenant   = "GTENANT"
	agent    = "GAGENT"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// switchTransferer delegates to the ledger until fail is set.
type switchTransferer struct {
	*custody.Ledger
	mu   sync.Mutex
	fail bool
}

func (s *switchTransferer) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *switchTransferer) Transfer(ctx context.Context, t custody.Transfer) (custody.Receipt, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return custody.Receipt{}, errors.New("asset host unavailable")
	}
	return s.Ledger.Transfer(ctx, t)
}

type harness struct {
	ctx        context.Context
	clock      *clock
	ledger     *custody.Ledger
	transferer *switchTransferer
	recorder   *events.Recorder
	store      *store.Memory

	protocol   *ProtocolService
	escrows    *EscrowService
	agreements *AgreementService
	properties *PropertyService
}

// harnessWrap lets a test decorate the store and transferer the engine sees.
type harnessWrap struct {
	store      func(*store.Memory) store.Store
	transferer func(*switchTransferer) custody.Transferer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newWrappedHarness(t, harnessWrap{})
}

func newWrappedHarness(t *testing.T, w harnessWrap) *harness {
	t.Helper()
	clk := &clock{t: epoch}
	ledger := custody.NewLedger()
	tr := &switchTransferer{Ledger: ledger}
	rec := events.NewRecorder()
	st := store.NewMemory(store.Options{DefaultTTL: time.Hour, Now: clk.Now})

	tokens, err := config.ParseTokens([]byte("tokens:\n  - symbol: USDC\n    precision: 6\n"))
	require.NoError(t, err)

	var engineStore store.Store = st
	if w.store != nil {
		engineStore = w.store(st)
	}
	var engineTransferer custody.Transferer = tr
	if w.transferer != nil {
		engineTransferer = w.transferer(tr)
	}

	engine, err := NewEngine(engineStore, engineTransferer, rec, tokens, Settings{
		RecordTTL:      24 * time.Hour,
		PaymentPeriod:  30 * 24 * time.Hour,
		PaymentGrace:   5 * 24 * time.Hour,
		CustodyAccount: custodian,
	}, zap.NewNop())
	require.NoError(t, err)
	engine.SetClock(clk.Now)

	return &harness{
		ctx:        context.Background(),
		clock:      clk,
		ledger:     ledger,
		transferer: tr,
		recorder:   rec,
		store:      st,
		protocol:   NewProtocolService(engine),
		escrows:    NewEscrowService(engine),
		agreements: NewAgreementService(engine),
		properties: NewPropertyService(engine),
	}
}

func (h *harness) initialize(t *testing.T, feeBPS uint32) {
	t.Helper()
	require.NoError(t, h.protocol.Initialize(h.ctx, admin, models.ProtocolConfig{FeeBPS: feeBPS, FeeCollector: collector}))
}

func (h *harness) balance(account string) int64 {
	return h.ledger.Balance(token, account)
}

func (h *harness) counters(t *testing.T) models.Counters {
	t.Helper()
	st, err := h.protocol.State(h.ctx)
	require.NoError(t, err)
	return st.Counters
}
