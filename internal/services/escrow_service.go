package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/custody"
	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/rbac"
	"github.com/chioma/settlement/internal/store"
)

type EscrowService struct {
	*Engine
}

func NewEscrowService(e *Engine) *EscrowService {
	return &EscrowService{Engine: e}
}

type OpenEscrowInput struct {
	Depositor   string `json:"depositor"`
	Beneficiary string `json:"beneficiary"`
	Arbiter     string `json:"arbiter"`
	Amount      int64  `json:"amount"`
	Token       string `json:"token"`
}

// transition moves an escrow to newStatus, saves it and queues the event.
func (s *EscrowService) transition(ctx context.Context, o *op, e *models.Escrow, newStatus models.EscrowStatus, eventType string, payload map[string]any) error {
	if !e.Status.CanTransition(newStatus) {
		return fmt.Errorf("%w: escrow %s cannot move from %s to %s", models.ErrInvalidState, e.ID, e.Status, newStatus)
	}
	oldStatus := e.Status
	e.Status = newStatus
	if err := s.escrows.Save(ctx, o.tx, e); err != nil {
		return err
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["escrow_id"] = e.ID.String()
	payload["old_status"] = oldStatus
	payload["new_status"] = newStatus
	o.emit(events.StreamEscrow, eventType, []string{e.Depositor, e.Beneficiary, e.Arbiter}, payload)

	s.log.Info("escrow status changed",
		zap.String("escrow_id", e.ID.String()),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)))
	return nil
}

// load runs the common guards of every escrow call and returns the record.
func (s *EscrowService) load(ctx context.Context, o *op, id models.EscrowID) (*models.Escrow, error) {
	if _, err := s.requireLive(ctx, o.tx); err != nil {
		return nil, err
	}
	return s.escrows.GetByID(ctx, o.tx, id)
}

// Open creates an escrow in Created. The caller must be the depositor.
func (s *EscrowService) Open(ctx context.Context, caller string, in OpenEscrowInput) (*models.Escrow, error) {
	var escrow *models.Escrow
	err := s.mutate(ctx, "escrow.open", func(ctx context.Context, o *op) error {
		if _, err := s.requireLive(ctx, o.tx); err != nil {
			return err
		}
		parties := models.Parties{Depositor: in.Depositor, Beneficiary: in.Beneficiary, Arbiter: in.Arbiter}
		if err := rbac.IsDepositor(parties, caller); err != nil {
			return err
		}
		if !parties.Distinct() {
			return fmt.Errorf("%w: depositor, beneficiary and arbiter must be distinct", models.ErrInvalidInput)
		}
		if in.Amount <= 0 {
			return fmt.Errorf("%w: escrow amount must be positive, got %d", models.ErrInvalidAmount, in.Amount)
		}
		if err := s.requireToken(in.Token); err != nil {
			return err
		}

		seq, err := s.state.Increment(ctx, o.tx, store.KeyEscrowCount)
		if err != nil {
			return err
		}
		id := models.NewEscrowID(seq, in.Depositor, in.Beneficiary, in.Arbiter, in.Amount, in.Token)
		exists, err := s.escrows.Exists(ctx, o.tx, id)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: escrow %s", models.ErrAlreadyExists, id)
		}

		escrow = &models.Escrow{
			ID:          id,
			Depositor:   in.Depositor,
			Beneficiary: in.Beneficiary,
			Arbiter:     in.Arbiter,
			Amount:      in.Amount,
			Token:       in.Token,
			Status:      models.EscrowStatusCreated,
			CreatedAt:   o.now,
		}
		if err := s.escrows.Save(ctx, o.tx, escrow); err != nil {
			return err
		}
		o.emit(events.StreamEscrow, events.EventEscrowCreated, []string{in.Depositor, in.Beneficiary, in.Arbiter}, map[string]any{
			"escrow_id": id.String(),
			"amount":    in.Amount,
			"token":     in.Token,
		})
		s.log.Info("escrow opened", zap.String("escrow_id", id.String()), zap.Int64("amount", in.Amount), zap.String("token", in.Token))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

// Fund moves the escrow amount from the depositor into custody.
func (s *EscrowService) Fund(ctx context.Context, caller string, id models.EscrowID) (*models.Escrow, error) {
	return s.apply(ctx, "escrow.fund", id, func(ctx context.Context, o *op, e *models.Escrow) error {
		if err := rbac.IsDepositor(e.Parties(), caller); err != nil {
			return err
		}
		if e.Status != models.EscrowStatusCreated {
			return fmt.Errorf("%w: escrow %s is %s, not created", models.ErrInvalidState, e.ID, e.Status)
		}
		o.transfer(custody.Transfer{
			Token:     e.Token,
			From:      e.Depositor,
			To:        s.settings.CustodyAccount,
			Amount:    e.Amount,
			Reference: "escrow:" + e.ID.String() + ":fund",
		})
		e.FundedAt = timePtr(o.now)
		return s.transition(ctx, o, e, models.EscrowStatusFunded, events.EventEscrowFunded, nil)
	})
}

// Release pays the custodied amount to the beneficiary. A disputed escrow
// can only be settled through Resolve.
func (s *EscrowService) Release(ctx context.Context, caller string, id models.EscrowID) (*models.Escrow, error) {
	return s.apply(ctx, "escrow.release", id, func(ctx context.Context, o *op, e *models.Escrow) error {
		if err := rbac.Authorize(e.Parties(), caller, rbac.OpRelease); err != nil {
			return err
		}
		if e.Status != models.EscrowStatusFunded {
			return fmt.Errorf("%w: escrow %s is %s, release requires funded", models.ErrInvalidState, e.ID, e.Status)
		}
		s.payout(o, e, e.Beneficiary, "release")
		e.SettledAt = timePtr(o.now)
		return s.transition(ctx, o, e, models.EscrowStatusReleased, events.EventEscrowReleased, map[string]any{"by": caller})
	})
}

// Refund returns the custodied amount to the depositor.
func (s *EscrowService) Refund(ctx context.Context, caller string, id models.EscrowID) (*models.Escrow, error) {
	return s.apply(ctx, "escrow.refund", id, func(ctx context.Context, o *op, e *models.Escrow) error {
		if err := rbac.Authorize(e.Parties(), caller, rbac.OpRefund); err != nil {
			return err
		}
		if e.Status != models.EscrowStatusFunded {
			return fmt.Errorf("%w: escrow %s is %s, refund requires funded", models.ErrInvalidState, e.ID, e.Status)
		}
		s.payout(o, e, e.Depositor, "refund")
		e.SettledAt = timePtr(o.now)
		return s.transition(ctx, o, e, models.EscrowStatusRefunded, events.EventEscrowRefunded, map[string]any{"by": caller})
	})
}

// Dispute freezes a funded escrow until the arbiter resolves it.
func (s *EscrowService) Dispute(ctx context.Context, caller string, id models.EscrowID, reason string) (*models.Escrow, error) {
	return s.apply(ctx, "escrow.dispute", id, func(ctx context.Context, o *op, e *models.Escrow) error {
		if err := rbac.IsPrimaryParty(e.Parties(), caller); err != nil {
			return err
		}
		if e.Status != models.EscrowStatusFunded {
			return fmt.Errorf("%w: escrow %s is %s, dispute requires funded", models.ErrInvalidState, e.ID, e.Status)
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return fmt.Errorf("%w: dispute reason is required", models.ErrInvalidInput)
		}
		if _, err := s.state.Increment(ctx, o.tx, store.KeyDisputeCount); err != nil {
			return err
		}
		e.DisputeReason = strPtr(reason)
		return s.transition(ctx, o, e, models.EscrowStatusDisputed, events.EventEscrowDisputed, map[string]any{
			"by":     caller,
			"reason": reason,
		})
	})
}

// Resolve settles a disputed escrow to the beneficiary or the depositor.
func (s *EscrowService) Resolve(ctx context.Context, caller string, id models.EscrowID, outcome models.Resolution) (*models.Escrow, error) {
	return s.apply(ctx, "escrow.resolve", id, func(ctx context.Context, o *op, e *models.Escrow) error {
		if err := rbac.IsArbiter(e.Parties(), caller); err != nil {
			return err
		}
		if e.Status != models.EscrowStatusDisputed {
			return fmt.Errorf("%w: escrow %s is %s, resolve requires disputed", models.ErrInvalidState, e.ID, e.Status)
		}
		if !outcome.Valid() {
			return fmt.Errorf("%w: unknown resolution %q", models.ErrInvalidInput, outcome)
		}

		next := models.EscrowStatusReleased
		recipient := e.Beneficiary
		if outcome == models.ResolutionRefund {
			next = models.EscrowStatusRefunded
			recipient = e.Depositor
		}
		s.payout(o, e, recipient, "resolve")

		e.DisputeReason = nil
		e.Resolution = &outcome
		e.SettledAt = timePtr(o.now)
		return s.transition(ctx, o, e, next, events.EventDisputeResolved, map[string]any{
			"outcome":   outcome,
			"recipient": recipient,
		})
	})
}

func (s *EscrowService) GetByID(ctx context.Context, id models.EscrowID) (*models.Escrow, error) {
	var escrow *models.Escrow
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		escrow, err = s.escrows.GetByID(ctx, tx, id)
		return err
	})
	return escrow, err
}

func (s *EscrowService) apply(ctx context.Context, name string, id models.EscrowID, fn func(ctx context.Context, o *op, e *models.Escrow) error) (*models.Escrow, error) {
	var escrow *models.Escrow
	err := s.mutate(ctx, name, func(ctx context.Context, o *op) error {
		e, err := s.load(ctx, o, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, o, e); err != nil {
			return err
		}
		escrow = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

func (s *EscrowService) payout(o *op, e *models.Escrow, to, action string) {
	o.transfer(custody.Transfer{
		Token:     e.Token,
		From:      s.settings.CustodyAccount,
		To:        to,
		Amount:    e.Amount,
		Reference: "escrow:" + e.ID.String() + ":" + action,
	})
}
