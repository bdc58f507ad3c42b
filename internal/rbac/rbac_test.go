package rbac

import (
	"errors"
	"testing"

	"github.com/chioma/settlement/internal/models"
)

var parties = models.Parties{Depositor: "D", Beneficiary: "B", Arbiter: "A"}

func TestPredicates(t *testing.T) {
	type check func(models.Parties, string) error

	tests := []struct {
		name   string
		fn     check
		caller string
		want   error
	}{
		{"depositor ok", IsDepositor, "D", nil},
		{"depositor wrong role", IsDepositor, "B", models.ErrNotAuthorized},
		{"depositor outsider", IsDepositor, "X", models.ErrNotAuthorized},
		{"beneficiary ok", IsBeneficiary, "B", nil},
		{"beneficiary wrong role", IsBeneficiary, "A", models.ErrNotAuthorized},
		{"arbiter ok", IsArbiter, "A", nil},
		{"arbiter wrong role", IsArbiter, "D", models.ErrNotAuthorized},
		{"party depositor", IsParty, "D", nil},
		{"party beneficiary", IsParty, "B", nil},
		{"party arbiter", IsParty, "A", nil},
		{"party outsider", IsParty, "X", models.ErrInvalidSigner},
		{"party empty", IsParty, "", models.ErrInvalidSigner},
		{"primary depositor", IsPrimaryParty, "D", nil},
		{"primary beneficiary", IsPrimaryParty, "B", nil},
		{"primary arbiter", IsPrimaryParty, "A", models.ErrNotAuthorized},
		{"primary outsider", IsPrimaryParty, "X", models.ErrNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(parties, tt.caller)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOutsiderAndInsiderGetDifferentErrors(t *testing.T) {
	outsider := IsParty(parties, "X")
	insider := IsDepositor(parties, "B")
	if errors.Is(outsider, models.ErrNotAuthorized) || errors.Is(insider, models.ErrInvalidSigner) {
		t.Errorf("outsider %v and wrong-role insider %v must not share a kind", outsider, insider)
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role, op string
		expected bool
	}{
		{RoleBeneficiary, OpRelease, true},
		{RoleArbiter, OpRelease, true},
		{RoleDepositor, OpRelease, false},
		{RoleDepositor, OpRefund, true},
		{RoleArbiter, OpRefund, true},
		{RoleBeneficiary, OpRefund, false},
		{RoleArbiter, OpDispute, false},
		{RoleArbiter, OpResolve, true},
		{RoleDepositor, OpResolve, false},
		{RoleArbiter, OpTerminate, true},
		{RoleBeneficiary, OpPayRent, false},
		{RoleDepositor, "unknown", false},
		{"nonexistent", OpFund, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"_"+tt.op, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.op); got != tt.expected {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.op, got, tt.expected)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	if err := Authorize(parties, "A", OpRelease); err != nil {
		t.Errorf("arbiter release: %v", err)
	}
	if err := Authorize(parties, "D", OpRelease); !errors.Is(err, models.ErrNotAuthorized) {
		t.Errorf("depositor release: %v, want ErrNotAuthorized", err)
	}
	if err := Authorize(parties, "X", OpTerminate); !errors.Is(err, models.ErrNotAuthorized) {
		t.Errorf("outsider terminate: %v, want ErrNotAuthorized", err)
	}
}

func TestRolesOfOverlappingAddresses(t *testing.T) {
	// Escrows reject overlapping parties, but the predicates still behave on them.
	p := models.Parties{Depositor: "D", Beneficiary: "D", Arbiter: "A"}
	roles := RolesOf(p, "D")
	if len(roles) != 2 {
		t.Errorf("RolesOf = %v, want depositor and beneficiary", roles)
	}
	if len(RolesOf(p, "")) != 0 {
		t.Errorf("empty caller must hold no roles")
	}
}
