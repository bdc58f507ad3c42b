package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/custody"
	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/rbac"
	"github.com/chioma/settlement/internal/split"
	"github.com/chioma/settlement/internal/store"
)

// AgreementService runs the rent agreement lifecycle. The protocol admin is
// the arbiter of every agreement.
type AgreementService struct {
	*Engine
}

func NewAgreementService(e *Engine) *AgreementService {
	return &AgreementService{Engine: e}
}

type CreateAgreementInput struct {
	AgreementID         string    `json:"agreement_id"`
	PropertyID          string    `json:"property_id,omitempty"`
	Landlord            string    `json:"landlord"`
	Tenant              string    `json:"tenant"`
	Agent               string    `json:"agent,omitempty"`
	MonthlyRent         int64     `json:"monthly_rent"`
	SecurityDeposit     int64     `json:"security_deposit"`
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	AgentCommissionRate uint32    `json:"agent_commission_rate"`
	PaymentToken        string    `json:"payment_token"`
}

// Create stores a new agreement in Draft. Either the landlord or the tenant
// may create it; both still have to sign.
func (s *AgreementService) Create(ctx context.Context, caller string, in CreateAgreementInput) (*models.RentAgreement, error) {
	var agreement *models.RentAgreement
	err := s.mutate(ctx, "agreement.create", func(ctx context.Context, o *op) error {
		p, err := s.requireLive(ctx, o.tx)
		if err != nil {
			return err
		}
		if caller == "" || (caller != in.Landlord && caller != in.Tenant) {
			return fmt.Errorf("%w: caller must be the landlord or the tenant", models.ErrNotAuthorized)
		}
		if err := s.validateCreate(p, in); err != nil {
			return err
		}
		exists, err := s.agreements.Exists(ctx, o.tx, in.AgreementID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: agreement %s", models.ErrAlreadyExists, in.AgreementID)
		}

		a := &models.RentAgreement{
			AgreementID:         in.AgreementID,
			Landlord:            in.Landlord,
			Tenant:              in.Tenant,
			MonthlyRent:         in.MonthlyRent,
			SecurityDeposit:     in.SecurityDeposit,
			StartDate:           in.StartDate,
			EndDate:             in.EndDate,
			AgentCommissionRate: in.AgentCommissionRate,
			PlatformFeeBPS:      p.config.FeeBPS,
			Status:              models.AgreementStatusDraft,
			PaymentToken:        in.PaymentToken,
			NextPaymentDue:      in.StartDate,
			CreatedAt:           o.now,
			UpdatedAt:           o.now,
			PaymentHistory:      []models.PaymentSplit{},
		}
		if in.Agent != "" {
			a.Agent = strPtr(in.Agent)
		}
		if in.PropertyID != "" {
			prop, err := s.properties.GetByID(ctx, o.tx, in.PropertyID)
			if err != nil {
				return err
			}
			if prop.Landlord != in.Landlord {
				return fmt.Errorf("%w: property %s does not belong to the landlord", models.ErrInvalidInput, in.PropertyID)
			}
			a.PropertyID = strPtr(in.PropertyID)
		}

		if _, err := s.state.Increment(ctx, o.tx, store.KeyAgreementCount); err != nil {
			return err
		}
		if err := s.agreements.Save(ctx, o.tx, a); err != nil {
			return err
		}
		o.emit(events.StreamAgreement, events.EventAgreementCreated, s.audience(a), map[string]any{
			"agreement_id": a.AgreementID,
			"monthly_rent": a.MonthlyRent,
			"token":        a.PaymentToken,
		})
		s.log.Info("agreement created", zap.String("agreement_id", a.AgreementID), zap.String("landlord", a.Landlord), zap.String("tenant", a.Tenant))
		agreement = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agreement, nil
}

func (s *AgreementService) validateCreate(p *protocol, in CreateAgreementInput) error {
	if strings.TrimSpace(in.AgreementID) == "" {
		return fmt.Errorf("%w: agreement_id is required", models.ErrInvalidInput)
	}
	if !in.StartDate.Before(in.EndDate) {
		return fmt.Errorf("%w: start_date must be before end_date", models.ErrInvalidInput)
	}
	if in.MonthlyRent <= 0 {
		return fmt.Errorf("%w: monthly_rent must be positive, got %d", models.ErrInvalidAmount, in.MonthlyRent)
	}
	if in.SecurityDeposit <= 0 {
		return fmt.Errorf("%w: security_deposit must be positive, got %d", models.ErrInvalidAmount, in.SecurityDeposit)
	}
	if (in.Agent != "") != (in.AgentCommissionRate > 0) {
		return fmt.Errorf("%w: an agent requires a commission rate and a commission rate requires an agent", models.ErrInvalidConfig)
	}
	if err := split.ValidateRates(p.config.FeeBPS, in.AgentCommissionRate); err != nil {
		return err
	}

	parties := models.Parties{Depositor: in.Tenant, Beneficiary: in.Landlord, Arbiter: p.admin}
	if !parties.Distinct() {
		return fmt.Errorf("%w: landlord, tenant and admin must be distinct", models.ErrInvalidInput)
	}
	if in.Agent != "" && (in.Agent == in.Landlord || in.Agent == in.Tenant || in.Agent == p.admin) {
		return fmt.Errorf("%w: agent must differ from landlord, tenant and admin", models.ErrInvalidInput)
	}
	return s.requireToken(in.PaymentToken)
}

// Sign records the caller's signature. The second signature moves the
// agreement to Pending.
func (s *AgreementService) Sign(ctx context.Context, caller, id string) (*models.RentAgreement, error) {
	return s.apply(ctx, "agreement.sign", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if err := rbac.Authorize(parties, caller, rbac.OpSign); err != nil {
			return err
		}
		if a.Status != models.AgreementStatusDraft {
			return fmt.Errorf("%w: agreement %s is %s, signing requires draft", models.ErrInvalidState, a.AgreementID, a.Status)
		}

		isLandlord := caller == a.Landlord
		if (isLandlord && a.LandlordSigned) || (!isLandlord && a.TenantSigned) {
			return fmt.Errorf("%w: caller already signed agreement %s", models.ErrInvalidState, a.AgreementID)
		}
		if isLandlord {
			a.LandlordSigned = true
		} else {
			a.TenantSigned = true
		}
		o.emit(events.StreamAgreement, events.EventAgreementSigned, s.audience(a), map[string]any{
			"agreement_id": a.AgreementID,
			"signer":       caller,
		})

		if !a.LandlordSigned || !a.TenantSigned {
			return s.save(ctx, o, a)
		}
		a.SignedAt = timePtr(o.now)
		return s.transition(ctx, o, a, models.AgreementStatusPending, "", nil)
	})
}

// FundDeposit moves the security deposit from the tenant into custody and
// activates the agreement.
func (s *AgreementService) FundDeposit(ctx context.Context, caller, id string) (*models.RentAgreement, error) {
	return s.apply(ctx, "agreement.fund_deposit", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if err := rbac.Authorize(parties, caller, rbac.OpDeposit); err != nil {
			return err
		}
		if a.Status != models.AgreementStatusPending {
			return fmt.Errorf("%w: agreement %s is %s, deposit requires pending", models.ErrInvalidState, a.AgreementID, a.Status)
		}
		o.transfer(custody.Transfer{
			Token:     a.PaymentToken,
			From:      a.Tenant,
			To:        s.settings.CustodyAccount,
			Amount:    a.SecurityDeposit,
			Reference: "agreement:" + a.AgreementID + ":deposit",
		})
		a.DepositHeld = a.SecurityDeposit
		return s.transition(ctx, o, a, models.AgreementStatusActive, events.EventAgreementActivated, map[string]any{
			"deposit": a.SecurityDeposit,
		})
	})
}

// PayRent pays exactly one period of rent, split between landlord, platform
// and agent. Payment opens PaymentGrace before the due date.
func (s *AgreementService) PayRent(ctx context.Context, caller, id string, amount int64) (*models.PaymentSplit, error) {
	var recorded models.PaymentSplit
	_, err := s.apply(ctx, "agreement.pay_rent", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if err := rbac.Authorize(parties, caller, rbac.OpPayRent); err != nil {
			return err
		}
		if a.Status != models.AgreementStatusActive {
			return fmt.Errorf("%w: agreement %s is %s, rent requires active", models.ErrInvalidState, a.AgreementID, a.Status)
		}
		if amount != a.MonthlyRent {
			return fmt.Errorf("%w: rent must be exactly %d, got %d", models.ErrInvalidAmount, a.MonthlyRent, amount)
		}
		if !a.NextPaymentDue.Before(a.EndDate) {
			return fmt.Errorf("%w: agreement %s has no rent periods left", models.ErrInvalidState, a.AgreementID)
		}
		if opens := a.NextPaymentDue.Add(-s.settings.PaymentGrace); o.now.Before(opens) {
			return fmt.Errorf("%w: next payment opens at %s", models.ErrPaymentTooEarly, opens.UTC().Format(time.RFC3339))
		}

		shares, err := split.Split(amount, a.PlatformFeeBPS, a.AgentCommissionRate)
		if err != nil {
			return err
		}
		p, err := s.requireLive(ctx, o.tx)
		if err != nil {
			return err
		}

		ref := fmt.Sprintf("agreement:%s:rent:%d", a.AgreementID, len(a.PaymentHistory))
		o.transfer(custody.Transfer{Token: a.PaymentToken, From: a.Tenant, To: a.Landlord, Amount: shares.Landlord, Reference: ref + ":landlord"})
		o.transfer(custody.Transfer{Token: a.PaymentToken, From: a.Tenant, To: p.config.FeeCollector, Amount: shares.Platform, Reference: ref + ":platform"})
		if a.Agent != nil {
			o.transfer(custody.Transfer{Token: a.PaymentToken, From: a.Tenant, To: *a.Agent, Amount: shares.Agent, Reference: ref + ":agent"})
		}

		paidAt := o.now
		if n := len(a.PaymentHistory); n > 0 && paidAt.Before(a.PaymentHistory[n-1].PaymentDate) {
			paidAt = a.PaymentHistory[n-1].PaymentDate
		}
		recorded = a.AppendPayment(models.PaymentSplit{
			LandlordAmount: shares.Landlord,
			PlatformAmount: shares.Platform,
			AgentAmount:    shares.Agent,
			Token:          a.PaymentToken,
			PaymentDate:    paidAt,
			Payer:          caller,
		})
		a.NextPaymentDue = a.NextPaymentDue.Add(s.settings.PaymentPeriod)

		if _, err := s.state.Increment(ctx, o.tx, store.KeyPaymentCount); err != nil {
			return err
		}
		if err := s.save(ctx, o, a); err != nil {
			return err
		}
		o.emit(events.StreamAgreement, events.EventRentPaid, s.audience(a), map[string]any{
			"agreement_id":     a.AgreementID,
			"index":            recorded.Index,
			"landlord_amount":  recorded.LandlordAmount,
			"platform_amount":  recorded.PlatformAmount,
			"agent_amount":     recorded.AgentAmount,
			"next_payment_due": a.NextPaymentDue,
		})
		s.log.Info("rent paid",
			zap.String("agreement_id", a.AgreementID),
			zap.Uint32("index", recorded.Index),
			zap.Int64("amount", amount))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &recorded, nil
}

// Terminate ends the tenancy and returns the deposit to the tenant. From
// Active any party may terminate; from Disputed only the arbiter.
func (s *AgreementService) Terminate(ctx context.Context, caller, id string) (*models.RentAgreement, error) {
	return s.apply(ctx, "agreement.terminate", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if err := rbac.Authorize(parties, caller, rbac.OpTerminate); err != nil {
			return err
		}
		switch a.Status {
		case models.AgreementStatusActive:
		case models.AgreementStatusDisputed:
			if err := rbac.IsArbiter(parties, caller); err != nil {
				return fmt.Errorf("%w: disputed agreements are terminated by the arbiter", models.ErrNotAuthorized)
			}
		default:
			return fmt.Errorf("%w: agreement %s is %s, terminate requires active or disputed", models.ErrInvalidState, a.AgreementID, a.Status)
		}
		s.releaseDeposit(o, a, a.Tenant, "terminate")
		a.DisputeReason = nil
		a.ClosedAt = timePtr(o.now)
		return s.transition(ctx, o, a, models.AgreementStatusTerminated, events.EventAgreementTerminated, map[string]any{"by": caller})
	})
}

// Complete closes an agreement that reached its end date and returns the
// deposit to the tenant. Any party may call it.
func (s *AgreementService) Complete(ctx context.Context, caller, id string) (*models.RentAgreement, error) {
	return s.apply(ctx, "agreement.complete", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if a.Status != models.AgreementStatusActive {
			return fmt.Errorf("%w: agreement %s is %s, complete requires active", models.ErrInvalidState, a.AgreementID, a.Status)
		}
		if o.now.Before(a.EndDate) {
			return fmt.Errorf("%w: agreement %s runs until %s", models.ErrInvalidState, a.AgreementID, a.EndDate.UTC().Format(time.RFC3339))
		}
		s.releaseDeposit(o, a, a.Tenant, "complete")
		a.ClosedAt = timePtr(o.now)
		return s.transition(ctx, o, a, models.AgreementStatusCompleted, events.EventAgreementCompleted, map[string]any{"by": caller})
	})
}

// Cancel abandons an agreement before any funds were deposited.
func (s *AgreementService) Cancel(ctx context.Context, caller, id string) (*models.RentAgreement, error) {
	return s.apply(ctx, "agreement.cancel", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if err := rbac.Authorize(parties, caller, rbac.OpCancel); err != nil {
			return err
		}
		if a.Status != models.AgreementStatusDraft && a.Status != models.AgreementStatusPending {
			return fmt.Errorf("%w: agreement %s is %s, cancel requires draft or pending", models.ErrInvalidState, a.AgreementID, a.Status)
		}
		a.ClosedAt = timePtr(o.now)
		return s.transition(ctx, o, a, models.AgreementStatusCancelled, events.EventAgreementCancelled, map[string]any{"by": caller})
	})
}

// Dispute freezes an active agreement until the arbiter resolves it.
func (s *AgreementService) Dispute(ctx context.Context, caller, id, reason string) (*models.RentAgreement, error) {
	return s.apply(ctx, "agreement.dispute", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if err := rbac.IsPrimaryParty(parties, caller); err != nil {
			return err
		}
		if a.Status != models.AgreementStatusActive {
			return fmt.Errorf("%w: agreement %s is %s, dispute requires active", models.ErrInvalidState, a.AgreementID, a.Status)
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return fmt.Errorf("%w: dispute reason is required", models.ErrInvalidInput)
		}
		if _, err := s.state.Increment(ctx, o.tx, store.KeyDisputeCount); err != nil {
			return err
		}
		a.DisputeReason = strPtr(reason)
		return s.transition(ctx, o, a, models.AgreementStatusDisputed, events.EventAgreementDisputed, map[string]any{
			"by":     caller,
			"reason": reason,
		})
	})
}

// Resolve rules on a disputed agreement: continue the tenancy, terminate it
// with the deposit returned, or terminate it with the deposit forfeited to
// the landlord.
func (s *AgreementService) Resolve(ctx context.Context, caller, id string, outcome models.AgreementResolution) (*models.RentAgreement, error) {
	return s.apply(ctx, "agreement.resolve", id, caller, func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error {
		if err := rbac.IsArbiter(parties, caller); err != nil {
			return err
		}
		if a.Status != models.AgreementStatusDisputed {
			return fmt.Errorf("%w: agreement %s is %s, resolve requires disputed", models.ErrInvalidState, a.AgreementID, a.Status)
		}
		if !outcome.Valid() {
			return fmt.Errorf("%w: unknown resolution %q", models.ErrInvalidInput, outcome)
		}

		a.DisputeReason = nil
		next := models.AgreementStatusTerminated
		switch outcome {
		case models.AgreementResolutionContinue:
			next = models.AgreementStatusActive
		case models.AgreementResolutionTerminate:
			s.releaseDeposit(o, a, a.Tenant, "resolve")
			a.ClosedAt = timePtr(o.now)
		case models.AgreementResolutionForfeit:
			s.releaseDeposit(o, a, a.Landlord, "forfeit")
			a.ClosedAt = timePtr(o.now)
		}
		return s.transition(ctx, o, a, next, events.EventDisputeResolved, map[string]any{"outcome": outcome})
	})
}

func (s *AgreementService) GetByID(ctx context.Context, id string) (*models.RentAgreement, error) {
	var agreement *models.RentAgreement
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		agreement, err = s.agreements.GetByID(ctx, tx, id)
		return err
	})
	return agreement, err
}

func (s *AgreementService) Payments(ctx context.Context, id string) ([]models.PaymentSplit, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.PaymentHistory, nil
}

func (s *AgreementService) Payment(ctx context.Context, id string, index uint32) (*models.PaymentSplit, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, ok := a.Payment(index)
	if !ok {
		return nil, fmt.Errorf("%w: payment %d of agreement %s", models.ErrNotFound, index, id)
	}
	return &p, nil
}

// apply loads the agreement, rejects outsiders with ErrInvalidSigner and
// hands the record to fn.
func (s *AgreementService) apply(ctx context.Context, name, id, caller string, fn func(ctx context.Context, o *op, a *models.RentAgreement, parties models.Parties) error) (*models.RentAgreement, error) {
	var agreement *models.RentAgreement
	err := s.mutate(ctx, name, func(ctx context.Context, o *op) error {
		p, err := s.requireLive(ctx, o.tx)
		if err != nil {
			return err
		}
		a, err := s.agreements.GetByID(ctx, o.tx, id)
		if err != nil {
			return err
		}
		parties := a.Parties(p.admin)
		if err := rbac.IsParty(parties, caller); err != nil {
			return err
		}
		if err := fn(ctx, o, a, parties); err != nil {
			return err
		}
		agreement = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agreement, nil
}

func (s *AgreementService) save(ctx context.Context, o *op, a *models.RentAgreement) error {
	a.UpdatedAt = o.now
	return s.agreements.Save(ctx, o.tx, a)
}

func (s *AgreementService) transition(ctx context.Context, o *op, a *models.RentAgreement, next models.AgreementStatus, eventType string, payload map[string]any) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("%w: agreement %s cannot move from %s to %s", models.ErrInvalidState, a.AgreementID, a.Status, next)
	}
	prev := a.Status
	a.Status = next
	if err := s.save(ctx, o, a); err != nil {
		return err
	}
	if eventType != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["agreement_id"] = a.AgreementID
		payload["old_status"] = prev
		payload["new_status"] = next
		o.emit(events.StreamAgreement, eventType, s.audience(a), payload)
	}
	s.log.Info("agreement status changed",
		zap.String("agreement_id", a.AgreementID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	return nil
}

func (s *AgreementService) releaseDeposit(o *op, a *models.RentAgreement, to, action string) {
	o.transfer(custody.Transfer{
		Token:     a.PaymentToken,
		From:      s.settings.CustodyAccount,
		To:        to,
		Amount:    a.DepositHeld,
		Reference: "agreement:" + a.AgreementID + ":" + action,
	})
	a.DepositHeld = 0
}

func (s *AgreementService) audience(a *models.RentAgreement) []string {
	parties := []string{a.Landlord, a.Tenant}
	if a.Agent != nil {
		parties = append(parties, *a.Agent)
	}
	return parties
}
