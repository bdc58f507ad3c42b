package ton

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/custody"
	"github.com/chioma/settlement/internal/models"
)

type memCredits map[string]int64

func (m memCredits) Add(_ context.Context, addr string, nano int64) (int64, error) {
	m[addr] += nano
	return m[addr], nil
}

func (m memCredits) Spend(_ context.Context, addr string, nano int64) error {
	if m[addr] < nano {
		return fmt.Errorf("%w: %s", ErrInsufficientCredit, addr)
	}
	m[addr] -= nano
	return nil
}

// memPayouts is a PayoutQueue keyed by state.
type memPayouts struct {
	held, ready, inflight map[string]Payout
	holdErr               error
}

func newMemPayouts() *memPayouts {
	return &memPayouts{held: map[string]Payout{}, ready: map[string]Payout{}, inflight: map[string]Payout{}}
}

func (q *memPayouts) Hold(_ context.Context, p Payout) error {
	if q.holdErr != nil {
		return q.holdErr
	}
	q.held[p.ID] = p
	return nil
}

func (q *memPayouts) Cancel(_ context.Context, id string) (bool, error) {
	_, ok := q.held[id]
	delete(q.held, id)
	return ok, nil
}

func move(from, to map[string]Payout, id string) *Payout {
	p, ok := from[id]
	if !ok {
		return nil
	}
	delete(from, id)
	to[id] = p
	return &p
}

func (q *memPayouts) Release(_ context.Context, id string) error {
	move(q.held, q.ready, id)
	return nil
}

func (q *memPayouts) Claim(_ context.Context, id string) (*Payout, error) {
	return move(q.ready, q.inflight, id), nil
}

func (q *memPayouts) Done(_ context.Context, id string) error {
	delete(q.inflight, id)
	return nil
}

func (q *memPayouts) Requeue(_ context.Context, id string) error {
	move(q.inflight, q.ready, id)
	return nil
}

func (q *memPayouts) ReadyIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(q.ready))
	for id := range q.ready {
		ids = append(ids, id)
	}
	return ids, nil
}

// recordingPayer fails the payouts whose 1-based position is in failOn.
type recordingPayer struct {
	calls  int
	failOn map[int]bool
	paid   []int64
}

func (p *recordingPayer) Pay(_ context.Context, to string, nano int64, comment string) error {
	p.calls++
	if p.failOn[p.calls] {
		return errors.New("liteserver timeout")
	}
	p.paid = append(p.paid, nano)
	return nil
}

const custodyAddr = "CUSTODY"

func TestCustodyDepositConsumesCredit(t *testing.T) {
	ctx := context.Background()
	credits := memCredits{"0:aa": 1500}
	c := NewCustody(custodyAddr, credits, newMemPayouts(), &recordingPayer{}, zap.NewNop())

	r, err := c.Transfer(ctx, custody.Transfer{Token: "TON", From: "0:aa", To: custodyAddr, Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(500), credits["0:aa"])

	_, err = c.Transfer(ctx, custody.Transfer{Token: "TON", From: "0:aa", To: custodyAddr, Amount: 1000})
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	require.NoError(t, c.Reverse(ctx, r))
	assert.Equal(t, int64(1500), credits["0:aa"])
}

func TestCustodyPayoutWaitsForSettle(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{}
	queue := newMemPayouts()
	c := NewCustody(custodyAddr, memCredits{}, queue, payer, zap.NewNop())

	r, err := c.Transfer(ctx, custody.Transfer{Token: "ton", From: custodyAddr, To: "0:bb", Amount: 975})
	require.NoError(t, err)
	assert.Empty(t, payer.paid)
	assert.Len(t, queue.held, 1)

	require.NoError(t, c.Settle(ctx, []custody.Receipt{r}))
	assert.Equal(t, []int64{975}, payer.paid)
	assert.Empty(t, queue.held)
	assert.Empty(t, queue.inflight)

	assert.ErrorIs(t, c.Reverse(ctx, r), ErrPayoutIrreversible)
}

func TestRentBatchFailingLegMovesNothing(t *testing.T) {
	ctx := context.Background()
	credits := memCredits{"0:tenant": 1000}
	queue := newMemPayouts()
	payer := &recordingPayer{}
	c := NewCustody(custodyAddr, credits, queue, payer, zap.NewNop())

	b := custody.NewBatch(c, zap.NewNop())
	b.Add(custody.Transfer{Token: "TON", From: "0:tenant", To: "0:landlord", Amount: 925, Reference: "rent:0:landlord"})
	b.Add(custody.Transfer{Token: "TON", From: "0:tenant", To: "0:fees", Amount: 25, Reference: "rent:0:platform"})
	b.Add(custody.Transfer{Token: "TON", From: "0:tenant", To: "0:agent", Amount: 100, Reference: "rent:0:agent"})

	err := b.Execute(ctx)
	require.ErrorIs(t, err, models.ErrTransferFailed)
	assert.Empty(t, payer.paid)
	assert.Empty(t, queue.held)
	assert.Equal(t, int64(1000), credits["0:tenant"])
}

func TestSettleKeepsFailedPayoutForFlush(t *testing.T) {
	ctx := context.Background()
	credits := memCredits{"0:tenant": 1000}
	queue := newMemPayouts()
	payer := &recordingPayer{failOn: map[int]bool{2: true}}
	c := NewCustody(custodyAddr, credits, queue, payer, zap.NewNop())

	b := custody.NewBatch(c, zap.NewNop())
	b.Add(custody.Transfer{Token: "TON", From: "0:tenant", To: "0:landlord", Amount: 975})
	b.Add(custody.Transfer{Token: "TON", From: "0:tenant", To: "0:fees", Amount: 25})
	require.NoError(t, b.Execute(ctx))

	err := c.Settle(ctx, b.Executed())
	require.Error(t, err)
	assert.Equal(t, []int64{975}, payer.paid)
	assert.Len(t, queue.ready, 1)

	sent, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{975, 25}, payer.paid)

	// Nothing left to send twice.
	sent, err = c.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, queue.ready)
	assert.Empty(t, queue.inflight)
}

func TestCompensatedAttemptSendsNothing(t *testing.T) {
	ctx := context.Background()
	credits := memCredits{"0:tenant": 1000}
	queue := newMemPayouts()
	payer := &recordingPayer{}
	c := NewCustody(custodyAddr, credits, queue, payer, zap.NewNop())
	leg := custody.Transfer{Token: "TON", From: "0:tenant", To: "0:landlord", Amount: 1000}

	first := custody.NewBatch(c, zap.NewNop())
	first.Add(leg)
	require.NoError(t, first.Execute(ctx))
	first.Compensate(ctx)
	assert.Empty(t, queue.held)
	assert.Equal(t, int64(1000), credits["0:tenant"])

	second := custody.NewBatch(c, zap.NewNop())
	second.Add(leg)
	require.NoError(t, second.Execute(ctx))
	require.NoError(t, c.Settle(ctx, second.Executed()))
	assert.Equal(t, []int64{1000}, payer.paid)
	assert.Zero(t, credits["0:tenant"])
}

func TestCustodyRestoresCreditWhenPayoutCannotQueue(t *testing.T) {
	ctx := context.Background()
	credits := memCredits{"0:aa": 100}
	queue := newMemPayouts()
	queue.holdErr = errors.New("redis down")
	c := NewCustody(custodyAddr, credits, queue, &recordingPayer{}, zap.NewNop())

	_, err := c.Transfer(ctx, custody.Transfer{Token: "TON", From: "0:aa", To: "0:bb", Amount: 100})
	require.Error(t, err)
	assert.Equal(t, int64(100), credits["0:aa"])
}

func TestCustodyRejectsOtherTokens(t *testing.T) {
	c := NewCustody(custodyAddr, memCredits{}, newMemPayouts(), &recordingPayer{}, zap.NewNop())
	_, err := c.Transfer(context.Background(), custody.Transfer{Token: "USDC", From: "0:aa", To: custodyAddr, Amount: 1})
	assert.Error(t, err)
}

func TestParseAddressRaw(t *testing.T) {
	raw := "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"
	addr, err := ParseAddress(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, RawAddress(addr))

	_, err = ParseAddress("not-an-address")
	assert.Error(t, err)
}
