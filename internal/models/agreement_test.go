package models

import (
	"testing"
	"time"
)

func TestAgreementTransitions(t *testing.T) {
	tests := []struct {
		from     AgreementStatus
		to       AgreementStatus
		expected bool
	}{
		// Happy path
		{AgreementStatusDraft, AgreementStatusPending, true},
		{AgreementStatusPending, AgreementStatusActive, true},
		{AgreementStatusActive, AgreementStatusCompleted, true},
		{AgreementStatusActive, AgreementStatusTerminated, true},

		// Cancellation before funds move
		{AgreementStatusDraft, AgreementStatusCancelled, true},
		{AgreementStatusPending, AgreementStatusCancelled, true},

		// Dispute loop
		{AgreementStatusActive, AgreementStatusDisputed, true},
		{AgreementStatusDisputed, AgreementStatusActive, true},
		{AgreementStatusDisputed, AgreementStatusTerminated, true},

		// Invalid transitions
		{AgreementStatusDraft, AgreementStatusActive, false},
		{AgreementStatusActive, AgreementStatusCancelled, false},
		{AgreementStatusDisputed, AgreementStatusCompleted, false},
		{AgreementStatusCompleted, AgreementStatusActive, false},
		{AgreementStatusTerminated, AgreementStatusActive, false},
		{AgreementStatusCancelled, AgreementStatusDraft, false},
		{"nonexistent", AgreementStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			result := tt.from.CanTransition(tt.to)
			if result != tt.expected {
				t.Errorf("%q.CanTransition(%q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAgreementTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []AgreementStatus{AgreementStatusCompleted, AgreementStatusCancelled, AgreementStatusTerminated}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("status %q should be terminal, transitions %v", status, ValidAgreementTransitions[status])
		}
	}
}

func TestAppendPaymentKeepsTotals(t *testing.T) {
	a := &RentAgreement{}
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := a.AppendPayment(PaymentSplit{LandlordAmount: 975, PlatformAmount: 25, PaymentDate: day})
	second := a.AppendPayment(PaymentSplit{LandlordAmount: 900, PlatformAmount: 25, AgentAmount: 75, PaymentDate: day.AddDate(0, 1, 0)})

	if first.Index != 0 || second.Index != 1 {
		t.Errorf("indexes = %d, %d, want 0, 1", first.Index, second.Index)
	}
	if a.PaymentCount != 2 {
		t.Errorf("PaymentCount = %d, want 2", a.PaymentCount)
	}
	if a.TotalRentPaid != 2000 {
		t.Errorf("TotalRentPaid = %d, want 2000", a.TotalRentPaid)
	}
	if p, ok := a.Payment(1); !ok || p.AgentAmount != 75 {
		t.Errorf("Payment(1) = %+v, %v", p, ok)
	}
	if _, ok := a.Payment(2); ok {
		t.Errorf("Payment(2) should not exist")
	}
}

func TestAgreementParties(t *testing.T) {
	a := &RentAgreement{Landlord: "L", Tenant: "T"}
	p := a.Parties("ADMIN")
	if p.Depositor != "T" || p.Beneficiary != "L" || p.Arbiter != "ADMIN" {
		t.Errorf("Parties = %+v", p)
	}
}
