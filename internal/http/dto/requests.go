package dto

import "time"

type InitializeRequest struct {
	FeeBPS       uint32 `json:"fee_bps"`
	FeeCollector string `json:"fee_collector"`
	Paused       bool   `json:"paused"`
}

type UpdateConfigRequest struct {
	FeeBPS       uint32 `json:"fee_bps"`
	FeeCollector string `json:"fee_collector"`
}

// Escrows

type OpenEscrowRequest struct {
	Depositor   string `json:"depositor,omitempty"` // defaults to the caller
	Beneficiary string `json:"beneficiary"`
	Arbiter     string `json:"arbiter"`
	Amount      int64  `json:"amount"`
	Token       string `json:"token"`
}

type DisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveRequest struct {
	Outcome string `json:"outcome"` // escrow: release/refund; agreement: continue/terminate/forfeit
}

// Agreements

type CreateAgreementRequest struct {
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

type PayRentRequest struct {
	Amount int64 `json:"amount"`
}

// Properties

type RegisterPropertyRequest struct {
	PropertyID   string `json:"property_id"`
	MetadataHash string `json:"metadata_hash"`
}
