// Package custody is the asset-transfer primitive settlement operations move
// funds through, plus an in-memory ledger backend.
package custody

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/models"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Transfer is one movement of Amount units of Token.
type Transfer struct {
	Token     string `json:"token"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// Receipt identifies an executed transfer so it can be reversed.
type Receipt struct {
	Transfer
	ID string `json:"id"`
}

type Transferer interface {
	Transfer(ctx context.Context, t Transfer) (Receipt, error)
	// Reverse undoes an executed transfer.
	Reverse(ctx context.Context, r Receipt) error
}

// Settler is implemented by backends that finish a transfer only once the
// operation that made it has committed. Until Settle, Reverse must succeed.
type Settler interface {
	Settle(ctx context.Context, receipts []Receipt) error
}

// Batch collects the transfers of one operation and runs them together.
// A failing leg reverses every leg that already ran.
type Batch struct {
	transferer Transferer
	log        *zap.Logger
	pending    []Transfer
	done       []Receipt
}

func NewBatch(t Transferer, log *zap.Logger) *Batch {
	return &Batch{transferer: t, log: log}
}

// Add queues a leg. Zero-amount legs are dropped.
func (b *Batch) Add(t Transfer) {
	if t.Amount == 0 {
		return
	}
	b.pending = append(b.pending, t)
}

func (b *Batch) Len() int {
	return len(b.pending)
}

// Execute runs the queued legs in order. On failure, executed legs are
// reversed and an error wrapping models.ErrTransferFailed is returned.
func (b *Batch) Execute(ctx context.Context) error {
	for _, t := range b.pending {
		if t.Amount < 0 {
			b.Compensate(ctx)
			return fmt.Errorf("%w: negative amount %d", models.ErrTransferFailed, t.Amount)
		}
		r, err := b.transferer.Transfer(ctx, t)
		if err != nil {
			b.Compensate(ctx)
			return fmt.Errorf("%w: %s %d %s -> %s: %v", models.ErrTransferFailed, t.Token, t.Amount, t.From, t.To, err)
		}
		b.done = append(b.done, r)
	}
	b.pending = nil
	return nil
}

// Compensate reverses executed legs newest first. Reversal failures are
// logged; the batch is empty afterwards.
func (b *Batch) Compensate(ctx context.Context) {
	for i := len(b.done) - 1; i >= 0; i-- {
		r := b.done[i]
		if err := b.transferer.Reverse(ctx, r); err != nil {
			b.log.Error("transfer reversal failed",
				zap.String("receipt", r.ID),
				zap.String("token", r.Token),
				zap.String("from", r.From),
				zap.String("to", r.To),
				zap.Int64("amount", r.Amount),
				zap.Error(err),
			)
		}
	}
	b.done = nil
	b.pending = nil
}

// Executed returns the receipts of legs that ran.
func (b *Batch) Executed() []Receipt {
	return b.done
}
