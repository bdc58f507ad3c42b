package models

import (
	"time"
)

type AgreementStatus string

// Agreement statuses
const (
	AgreementStatusDraft      AgreementStatus = "draft"
	AgreementStatusPending    AgreementStatus = "pending"
	AgreementStatusActive     AgreementStatus = "active"
	AgreementStatusCompleted  AgreementStatus = "completed"
	AgreementStatusCancelled  AgreementStatus = "cancelled"
	AgreementStatusTerminated AgreementStatus = "terminated"
	AgreementStatusDisputed   AgreementStatus = "disputed"
)

// Valid agreement transitions: from -> []to
var ValidAgreementTransitions = map[AgreementStatus][]AgreementStatus{
	AgreementStatusDraft:      {AgreementStatusPending, AgreementStatusCancelled},
	AgreementStatusPending:    {AgreementStatusActive, AgreementStatusCancelled},
	AgreementStatusActive:     {AgreementStatusCompleted, AgreementStatusTerminated, AgreementStatusDisputed},
	AgreementStatusDisputed:   {AgreementStatusActive, AgreementStatusTerminated},
	AgreementStatusCompleted:  {},
	AgreementStatusCancelled:  {},
	AgreementStatusTerminated: {},
}

func (s AgreementStatus) CanTransition(to AgreementStatus) bool {
	for _, allowed := range ValidAgreementTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s AgreementStatus) IsTerminal() bool {
	next, ok := ValidAgreementTransitions[s]
	return ok && len(next) == 0
}

// AgreementResolution is the arbiter's ruling on a disputed tenancy.
type AgreementResolution string

const (
	// AgreementResolutionContinue returns the tenancy to active.
	AgreementResolutionContinue AgreementResolution = "continue"
	// AgreementResolutionTerminate ends the tenancy and returns the deposit to the tenant.
	AgreementResolutionTerminate AgreementResolution = "terminate"
	// AgreementResolutionForfeit ends the tenancy and pays the deposit to the landlord.
	AgreementResolutionForfeit AgreementResolution = "forfeit"
)

func (r AgreementResolution) Valid() bool {
	switch r {
	case AgreementResolutionContinue, AgreementResolutionTerminate, AgreementResolutionForfeit:
		return true
	}
	return false
}

// PaymentSplit is the immutable record of one rent payment.
// LandlordAmount + PlatformAmount + AgentAmount equals the gross payment.
type PaymentSplit struct {
	Index          uint32    `json:"index"`
	LandlordAmount int64     `json:"landlord_amount"`
	PlatformAmount int64     `json:"platform_amount"`
	AgentAmount    int64     `json:"agent_amount"`
	Token          string    `json:"token"`
	PaymentDate    time.Time `json:"payment_date"`
	Payer          string    `json:"payer"`
}

func (p PaymentSplit) Gross() int64 {
	return p.LandlordAmount + p.PlatformAmount + p.AgentAmount
}

type RentAgreement struct {
	AgreementID         string          `json:"agreement_id"`
	PropertyID          *string         `json:"property_id,omitempty"`
	Landlord            string          `json:"landlord"`
	Tenant              string          `json:"tenant"`
	Agent               *string         `json:"agent,omitempty"`
	MonthlyRent         int64           `json:"monthly_rent"`
	SecurityDeposit     int64           `json:"security_deposit"`
	StartDate           time.Time       `json:"start_date"`
	EndDate             time.Time       `json:"end_date"`
	AgentCommissionRate uint32          `json:"agent_commission_rate"`
	PlatformFeeBPS      uint32          `json:"platform_fee_bps"` // snapshot at creation
	Status              AgreementStatus `json:"status"`
	TotalRentPaid       int64           `json:"total_rent_paid"`
	PaymentCount        uint32          `json:"payment_count"`
	LandlordSigned      bool            `json:"landlord_signed"`
	TenantSigned        bool            `json:"tenant_signed"`
	SignedAt            *time.Time      `json:"signed_at,omitempty"`
	PaymentToken        string          `json:"payment_token"`
	NextPaymentDue      time.Time       `json:"next_payment_due"`
	DepositHeld         int64           `json:"deposit_held"`
	DisputeReason       *string         `json:"dispute_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ClosedAt            *time.Time      `json:"closed_at,omitempty"`

	// Append-only; a payment's index is its position.
	PaymentHistory []PaymentSplit `json:"payment_history"`
}

// Parties maps the tenancy onto the three settlement roles with the given arbiter.
func (a *RentAgreement) Parties(arbiter string) Parties {
	return Parties{Depositor: a.Tenant, Beneficiary: a.Landlord, Arbiter: arbiter}
}

func (a *RentAgreement) Payment(index uint32) (PaymentSplit, bool) {
	if int(index) >= len(a.PaymentHistory) {
		return PaymentSplit{}, false
	}
	return a.PaymentHistory[index], true
}

// AppendPayment records a split at the next index and updates the running totals.
func (a *RentAgreement) AppendPayment(p PaymentSplit) PaymentSplit {
	p.Index = uint32(len(a.PaymentHistory))
	a.PaymentHistory = append(a.PaymentHistory, p)
	a.TotalRentPaid += p.Gross()
	a.PaymentCount = uint32(len(a.PaymentHistory))
	return p
}
