package ton

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/custody"
)

const Token = "TON"

var ErrPayoutIrreversible = errors.New("on-chain payout cannot be reversed")

// Payer sends nanoTON from the custody hot wallet.
type Payer interface {
	Pay(ctx context.Context, to string, nano int64, comment string) error
}

// Custody is a custody.Transferer for the TON token. Funds entering custody
// consume the sender's indexed deposit credit. Funds leaving custody are held
// as queued payouts and sent by the hot wallet only after the operation
// commits, so every leg stays reversible until then.
type Custody struct {
	account string
	credits CreditStore
	payouts PayoutQueue
	payer   Payer
	now     func() time.Time
	log     *zap.Logger
}

// CreditStore is implemented by Credits.
type CreditStore interface {
	Add(ctx context.Context, addr string, nano int64) (int64, error)
	Spend(ctx context.Context, addr string, nano int64) error
}

var (
	_ custody.Transferer = (*Custody)(nil)
	_ custody.Settler    = (*Custody)(nil)
)

func NewCustody(account string, credits CreditStore, payouts PayoutQueue, payer Payer, log *zap.Logger) *Custody {
	return &Custody{account: account, credits: credits, payouts: payouts, payer: payer, now: time.Now, log: log}
}

func (c *Custody) Transfer(ctx context.Context, t custody.Transfer) (custody.Receipt, error) {
	if !strings.EqualFold(t.Token, Token) {
		return custody.Receipt{}, fmt.Errorf("token %s is not supported by the TON backend", t.Token)
	}
	if t.Amount <= 0 {
		return custody.Receipt{}, fmt.Errorf("amount must be positive, got %d", t.Amount)
	}

	r := custody.Receipt{Transfer: t, ID: uuid.NewString()}
	fromParty := t.From != c.account
	toParty := t.To != c.account

	if fromParty {
		if err := c.credits.Spend(ctx, t.From, t.Amount); err != nil {
			return custody.Receipt{}, err
		}
	}
	if toParty {
		err := c.payouts.Hold(ctx, Payout{
			ID:       r.ID,
			To:       t.To,
			Nano:     t.Amount,
			Comment:  strings.TrimSpace("settlement " + t.Reference),
			QueuedAt: c.now(),
		})
		if err != nil {
			if fromParty {
				c.restoreCredit(ctx, t.From, t.Amount)
			}
			return custody.Receipt{}, fmt.Errorf("queue payout to %s: %w", t.To, err)
		}
	}

	c.log.Info("ton transfer accepted",
		zap.String("id", r.ID),
		zap.String("from", t.From),
		zap.String("to", t.To),
		zap.Int64("nano", t.Amount),
		zap.String("ref", t.Reference))
	return r, nil
}

// Reverse drops a held payout and restores a consumed deposit credit. A
// payout that already left the held state is final.
func (c *Custody) Reverse(ctx context.Context, r custody.Receipt) error {
	if r.To != c.account {
		held, err := c.payouts.Cancel(ctx, r.ID)
		if err != nil {
			return err
		}
		if !held {
			c.log.Error("cannot reverse released ton payout",
				zap.String("receipt", r.ID),
				zap.String("to", r.To),
				zap.Int64("nano", r.Amount))
			return ErrPayoutIrreversible
		}
	}
	if r.From == c.account {
		return nil
	}
	_, err := c.credits.Add(ctx, r.From, r.Amount)
	return err
}

// Settle releases the payouts of a committed operation and sends them.
// Payouts that fail to send stay ready for Flush.
func (c *Custody) Settle(ctx context.Context, receipts []custody.Receipt) error {
	var errs []error
	for _, r := range receipts {
		if r.To == c.account {
			continue
		}
		if err := c.payouts.Release(ctx, r.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.send(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush sends every ready payout.
func (c *Custody) Flush(ctx context.Context) (int, error) {
	ids, err := c.payouts.ReadyIDs(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, id := range ids {
		if err := c.send(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return len(ids) - len(errs), errors.Join(errs...)
}

// send claims one ready payout so concurrent senders never pay it twice.
func (c *Custody) send(ctx context.Context, id string) error {
	p, err := c.payouts.Claim(ctx, id)
	if err != nil || p == nil {
		return err
	}
	if err := c.payer.Pay(ctx, p.To, p.Nano, p.Comment); err != nil {
		if rerr := c.payouts.Requeue(ctx, id); rerr != nil {
			c.log.Error("failed to requeue payout", zap.String("id", id), zap.Error(rerr))
		}
		return fmt.Errorf("payout %s to %s: %w", id, p.To, err)
	}
	if err := c.payouts.Done(ctx, id); err != nil {
		c.log.Error("payout sent but not marked done", zap.String("id", id), zap.Error(err))
	}
	return nil
}

func (c *Custody) restoreCredit(ctx context.Context, addr string, nano int64) {
	if _, err := c.credits.Add(ctx, addr, nano); err != nil {
		c.log.Error("failed to restore credit", zap.String("addr", addr), zap.Int64("nano", nano), zap.Error(err))
	}
}

// HotWallet pays out from a seed-phrase wallet.
type HotWallet struct {
	w   *wallet.Wallet
	log *zap.Logger
}

func NewHotWallet(api wallet.TonAPI, seed string, log *zap.Logger) (*HotWallet, error) {
	w, err := wallet.FromSeed(api, strings.Fields(seed), wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("open hot wallet: %w", err)
	}
	log.Info("hot wallet opened", zap.String("address", w.WalletAddress().String()))
	return &HotWallet{w: w, log: log}, nil
}

// Address is the wallet's user-friendly address.
func (h *HotWallet) Address() *address.Address {
	return h.w.WalletAddress()
}

func (h *HotWallet) Pay(ctx context.Context, to string, nano int64, comment string) error {
	dst, err := ParseAddress(to)
	if err != nil {
		return err
	}
	amount := tlb.FromNanoTON(big.NewInt(nano))
	if err := h.w.Transfer(ctx, dst, amount, comment, true); err != nil {
		return err
	}
	h.log.Info("payout sent", zap.String("to", dst.String()), zap.String("amount", amount.String()))
	return nil
}

// ParseAddress accepts raw ("0:hex") or user-friendly addresses.
func ParseAddress(s string) (*address.Address, error) {
	if strings.Contains(s, ":") {
		wc, hash, err := ParseRawAddress(s)
		if err != nil {
			return nil, err
		}
		return address.NewAddress(0, byte(wc), hash), nil
	}
	addr, err := address.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("invalid TON address %q: %w", s, err)
	}
	return addr, nil
}

// RawAddress returns the canonical raw form of addr.
func RawAddress(addr *address.Address) string {
	return FormatRawAddress(addr.Workchain(), addr.Data())
}
