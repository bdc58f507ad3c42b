package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Ledger is an in-memory Transferer keeping balances per token and account.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]map[string]int64
}

var _ Transferer = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[string]int64)}
}

// Mint credits amount of token to account.
func (l *Ledger) Mint(token, account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(token, account, amount)
}

func (l *Ledger) Balance(token, account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[token][account]
}

func (l *Ledger) add(token, account string, amount int64) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[string]int64)
	}
	l.balances[token][account] += amount
}

func (l *Ledger) move(token, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	if l.balances[token][from] < amount {
		return fmt.Errorf("%w: %s has %d %s, needs %d", ErrInsufficientFunds, from, l.balances[token][from], token, amount)
	}
	l.add(token, from, -amount)
	l.add(token, to, amount)
	return nil
}

func (l *Ledger) Transfer(_ context.Context, t Transfer) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.move(t.Token, t.From, t.To, t.Amount); err != nil {
		return Receipt{}, err
	}
	return Receipt{Transfer: t, ID: uuid.NewString()}, nil
}

func (l *Ledger) Reverse(_ context.Context, r Receipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(r.Token, r.To, r.From, r.Amount)
}
